package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ws_username", "portal-user")
	t.Setenv("ws_password", "portal-secret")
	t.Setenv("qbt_username", "admin")
	t.Setenv("qbt_password", "qbt-secret")
	t.Setenv("qbt_host", "localhost")
	t.Setenv("qbt_port", "8080")
}

func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func TestLoadRequiresSettings(t *testing.T) {
	isolate(t)
	t.Setenv("ws_username", "portal-user")

	_, _, err := Load(Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingSettings)
	assert.Contains(t, err.Error(), "ws_password")
	assert.Contains(t, err.Error(), "qbt_host")
	assert.NotContains(t, err.Error(), "ws_username")
}

func TestLoadDefaultsAndCapabilities(t *testing.T) {
	isolate(t)
	setRequiredEnv(t)

	cfg, creds, err := Load(Options{})
	require.NoError(t, err)
	defer creds.Destroy()

	assert.False(t, cfg.DockerEnabled())
	assert.False(t, cfg.NotifyEnabled())
	assert.False(t, cfg.MetricsEnabled())
	assert.Equal(t, 60*time.Second, cfg.Portal.ChallengeTimeout)
	assert.Equal(t, []string{"gluetun", "qbittorrent", "prowlarr"}, cfg.Docker.Containers)
	assert.Equal(t, "FIREWALL_VPN_INPUT_PORTS", cfg.Docker.PortVariable)
	assert.Equal(t, "http://localhost:8080", cfg.QBittorrent.URL())
	assert.Equal(t, "portal-user", creds.PortalUsername.String())
	assert.Equal(t, "qbt-secret", creds.QBittorrentPassword.String())
}

func TestLoadOptionalFeatures(t *testing.T) {
	isolate(t)
	setRequiredEnv(t)
	t.Setenv("docker_path", "/opt/stack")
	t.Setenv("discord_webhook_url", "https://discord.example/webhook")
	t.Setenv("WSPORT_DOCKER_CONTAINERS", "gluetun,qbittorrent")
	t.Setenv("WSPORT_PORTAL_CHALLENGE_TIMEOUT", "90s")
	t.Setenv("WSPORT_METRICS_TEXTFILE", "/var/lib/node_exporter/windscribe.prom")
	t.Setenv("WSPORT_QBITTORRENT_INSECURE_SKIP_VERIFY", "true")

	cfg, creds, err := Load(Options{})
	require.NoError(t, err)
	defer creds.Destroy()

	assert.True(t, cfg.DockerEnabled())
	assert.True(t, cfg.NotifyEnabled())
	assert.Equal(t, "/opt/stack", cfg.Docker.Path)
	assert.Equal(t, []string{"gluetun", "qbittorrent"}, cfg.Docker.Containers)
	assert.Equal(t, 90*time.Second, cfg.Portal.ChallengeTimeout)
	assert.True(t, cfg.MetricsEnabled())
	assert.True(t, cfg.QBittorrent.InsecureSkipVerify)
}

func TestLoadEnvFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "ws_username=file-user\nws_password=file-pass\nqbt_username=admin\nqbt_password=pw\nqbt_host=qbt.lan\nqbt_port=8090\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	for _, name := range []string{"ws_username", "ws_password", "qbt_username", "qbt_password", "qbt_host", "qbt_port"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}

	cfg, creds, err := Load(Options{EnvFile: envFile})
	require.NoError(t, err)
	defer creds.Destroy()

	assert.Equal(t, "http://qbt.lan:8090", cfg.QBittorrent.URL())
	assert.Equal(t, "file-user", creds.PortalUsername.String())
}

func TestLoadMissingEnvFileIgnored(t *testing.T) {
	isolate(t)
	setRequiredEnv(t)

	_, creds, err := Load(Options{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
	require.NoError(t, err)
	creds.Destroy()
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Portal: PortalConfig{
				LoginURL:         "https://windscribe.com/login",
				PortURL:          "https://windscribe.com/myaccount#porteph",
				ChallengeTimeout: time.Minute,
				ElementTimeout:   time.Second,
				PollInterval:     time.Second,
			},
			QBittorrent: QBittorrentConfig{Host: "localhost", Port: "8080", Timeout: time.Second},
			Notify:      NotifyConfig{Format: "discord"},
			Logging:     LoggingConfig{Level: "info", Format: "console"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "non numeric qbt port",
			mutate:  func(c *Config) { c.QBittorrent.Port = "http" },
			wantErr: true,
		},
		{
			name:    "qbt port out of range",
			mutate:  func(c *Config) { c.QBittorrent.Port = "70000" },
			wantErr: true,
		},
		{
			name: "docker enabled without variable",
			mutate: func(c *Config) {
				c.Docker.Path = "/opt/stack"
				c.Docker.HealthTimeout = time.Minute
				c.Docker.PollInterval = time.Second
			},
			wantErr: true,
		},
		{
			name:    "invalid notify format",
			mutate:  func(c *Config) { c.Notify.Format = "slack" },
			wantErr: true,
		},
		{
			name:    "invalid logging level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)

			err := validate(&cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCredentialsRedact(t *testing.T) {
	creds := newCredentials("portal-user", "hunter22", "admin", "qbt-secret")

	got := creds.Redact("login as portal-user with hunter22 failed")
	assert.Equal(t, "login as [REDACTED] with [REDACTED] failed", got)

	creds.Destroy()
	assert.Equal(t, "hunter22", creds.Redact("hunter22"))
	assert.NotPanics(t, creds.Destroy)
}
