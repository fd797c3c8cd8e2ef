package config

import "time"

// Config represents the resolved settings for one run. It is built once by
// Load and handed to constructors by value; nothing mutates it afterwards.
type Config struct {
	Portal      PortalConfig      `mapstructure:"portal"`
	QBittorrent QBittorrentConfig `mapstructure:"qbittorrent"`
	Docker      DockerConfig      `mapstructure:"docker"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Lock        LockConfig        `mapstructure:"lock"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// PortalConfig holds the VPN provider portal endpoints and browser settings
type PortalConfig struct {
	LoginURL         string        `mapstructure:"login_url"`
	PortURL          string        `mapstructure:"port_url"`
	Headless         bool          `mapstructure:"headless"`
	ChallengeTimeout time.Duration `mapstructure:"challenge_timeout"`
	ElementTimeout   time.Duration `mapstructure:"element_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	// ChromePath overrides the browser binary lookup.
	ChromePath string `mapstructure:"chrome_path"`
	UserAgent  string `mapstructure:"user_agent"`
}

// QBittorrentConfig holds qBittorrent Web UI connection details
type QBittorrentConfig struct {
	Host    string        `mapstructure:"host"`
	Port    string        `mapstructure:"port"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries uint          `mapstructure:"retries"`
	// InsecureSkipVerify accepts self-signed Web UI certificates.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// URL returns the Web UI base URL built from host and port.
func (c QBittorrentConfig) URL() string {
	host := c.Host
	if !hasScheme(host) {
		host = "http://" + host
	}
	if c.Port == "" {
		return host
	}
	return host + ":" + c.Port
}

// DockerConfig describes the compose stack whose env file carries the port
type DockerConfig struct {
	Path          string        `mapstructure:"path"`
	PortVariable  string        `mapstructure:"port_variable"`
	Containers    []string      `mapstructure:"containers"`
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	StopTimeout   time.Duration `mapstructure:"stop_timeout"`
}

// NotifyConfig configures the operator webhook
type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Format     string        `mapstructure:"format"`
	Username   string        `mapstructure:"username"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Retries    int           `mapstructure:"retries"`
}

// DiagnosticsConfig controls where failure artifacts are written
type DiagnosticsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LockConfig controls the run lock that prevents overlapping invocations
type LockConfig struct {
	Dir  string `mapstructure:"dir"`
	Name string `mapstructure:"name"`
}

// MetricsConfig enables the node_exporter textfile output
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
	File   string `mapstructure:"file"`
}

// DockerEnabled reports whether the env file and restart stages run.
func (c Config) DockerEnabled() bool { return c.Docker.Path != "" }

// NotifyEnabled reports whether a webhook is configured.
func (c Config) NotifyEnabled() bool { return c.Notify.WebhookURL != "" }

// MetricsEnabled reports whether run metrics are exported.
func (c Config) MetricsEnabled() bool { return c.Metrics.Textfile != "" }

// LogFileEnabled reports whether logs are also appended to a file.
func (c Config) LogFileEnabled() bool { return c.Logging.File != "" }
