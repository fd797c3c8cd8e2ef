package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingSettings is returned when a required setting has no value.
var ErrMissingSettings = errors.New("missing required settings")

// Options tells Load where to look besides the process environment.
type Options struct {
	// ConfigFile is an explicit YAML/TOML/JSON file. When empty the
	// standard locations are searched and a missing file is not an error.
	ConfigFile string
	// EnvFile is a dotenv file loaded into the environment before anything
	// else is read. Existing variables win. A missing file is ignored.
	EnvFile string
}

// envBindings maps config keys to the environment variables that feed them.
// The lower-case names are the ones operators already have in their .env.
var envBindings = map[string][]string{
	"credentials.portal_username":      {"ws_username", "WS_USERNAME"},
	"credentials.portal_password":      {"ws_password", "WS_PASSWORD"},
	"credentials.qbittorrent_username": {"qbt_username", "QBT_USERNAME"},
	"credentials.qbittorrent_password": {"qbt_password", "QBT_PASSWORD"},
	"qbittorrent.host":                 {"qbt_host", "QBT_HOST"},
	"qbittorrent.port":                 {"qbt_port", "QBT_PORT"},
	"notify.webhook_url":               {"discord_webhook_url", "DISCORD_WEBHOOK_URL", "WEBHOOK_URL"},
	"docker.path":                      {"docker_path", "DOCKER_PATH"},
}

// requiredEnv lists required keys with the variable name shown to the user.
var requiredEnv = []struct {
	key string
	env string
}{
	{"credentials.portal_username", "ws_username"},
	{"credentials.portal_password", "ws_password"},
	{"qbittorrent.host", "qbt_host"},
	{"qbittorrent.port", "qbt_port"},
	{"credentials.qbittorrent_username", "qbt_username"},
	{"credentials.qbittorrent_password", "qbt_password"},
}

// Load resolves the configuration for one run. The returned Credentials
// hold secrets in locked memory; callers must Destroy them when done.
func Load(opts Options) (Config, *Credentials, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil, fmt.Errorf("error reading env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()

	// Set default values
	setDefaults(v)

	v.SetEnvPrefix("WSPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return Config{}, nil, fmt.Errorf("error binding %s: %w", key, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, nil, fmt.Errorf("error reading config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "windscribe-port"))
		}
		v.AddConfigPath("/etc/windscribe-port/")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, nil, fmt.Errorf("error reading config: %w", err)
			}
		}
	}

	var missing []string
	for _, r := range requiredEnv {
		if strings.TrimSpace(v.GetString(r.key)) == "" {
			missing = append(missing, r.env)
		}
	}
	if len(missing) > 0 {
		return Config{}, nil, fmt.Errorf("%w: %s", ErrMissingSettings, strings.Join(missing, ", "))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	creds := newCredentials(
		v.GetString("credentials.portal_username"),
		v.GetString("credentials.portal_password"),
		v.GetString("credentials.qbittorrent_username"),
		v.GetString("credentials.qbittorrent_password"),
	)

	return cfg, creds, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Portal defaults
	v.SetDefault("portal.login_url", "https://windscribe.com/login")
	v.SetDefault("portal.port_url", "https://windscribe.com/myaccount#porteph")
	v.SetDefault("portal.headless", false)
	v.SetDefault("portal.challenge_timeout", 60*time.Second)
	v.SetDefault("portal.element_timeout", 20*time.Second)
	v.SetDefault("portal.poll_interval", time.Second)
	v.SetDefault("portal.chrome_path", "")
	v.SetDefault("portal.user_agent", "")

	// qBittorrent defaults
	v.SetDefault("qbittorrent.timeout", 10*time.Second)
	v.SetDefault("qbittorrent.retries", 3)
	v.SetDefault("qbittorrent.insecure_skip_verify", false)

	// Docker defaults
	v.SetDefault("docker.port_variable", "FIREWALL_VPN_INPUT_PORTS")
	v.SetDefault("docker.containers", []string{"gluetun", "qbittorrent", "prowlarr"})
	v.SetDefault("docker.health_timeout", 60*time.Second)
	v.SetDefault("docker.poll_interval", 5*time.Second)
	v.SetDefault("docker.stop_timeout", 10*time.Second)

	// Notification defaults
	v.SetDefault("notify.format", "discord")
	v.SetDefault("notify.username", "Windscribe Port Manager")
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("notify.retries", 2)

	v.SetDefault("diagnostics.dir", "img")
	v.SetDefault("lock.dir", os.TempDir())
	v.SetDefault("lock.name", "windscribe-port")
	v.SetDefault("metrics.textfile", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
	v.SetDefault("logging.file", "")
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.Portal.LoginURL == "" || cfg.Portal.PortURL == "" {
		return fmt.Errorf("portal.login_url and portal.port_url are required")
	}

	if p, err := strconv.Atoi(cfg.QBittorrent.Port); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid qbt_port: %q", cfg.QBittorrent.Port)
	}

	if cfg.Portal.ChallengeTimeout <= 0 || cfg.Portal.ElementTimeout <= 0 || cfg.Portal.PollInterval <= 0 {
		return fmt.Errorf("portal timeouts and poll interval must be positive")
	}

	if cfg.QBittorrent.Timeout <= 0 {
		return fmt.Errorf("qbittorrent.timeout must be positive")
	}

	if cfg.DockerEnabled() {
		if strings.TrimSpace(cfg.Docker.PortVariable) == "" {
			return fmt.Errorf("docker.port_variable is required when docker_path is set")
		}
		if cfg.Docker.HealthTimeout <= 0 || cfg.Docker.PollInterval <= 0 {
			return fmt.Errorf("docker health timeout and poll interval must be positive")
		}
	}

	validNotifyFormats := map[string]bool{
		"discord": true,
		"json":    true,
	}
	if !validNotifyFormats[cfg.Notify.Format] {
		return fmt.Errorf("invalid notify.format: %s (must be 'discord' or 'json')", cfg.Notify.Format)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}

func hasScheme(host string) bool {
	return strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://")
}
