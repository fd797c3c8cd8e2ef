package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/config"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/pipeline"
)

var (
	cfgFile  string
	envFile  string
	logLevel string

	cfg     config.Config
	creds   *config.Credentials
	logger  zerolog.Logger
	logFile io.Closer

	version   = "dev"
	buildTime = "unknown"
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "windscribe-port",
	Short: "Renew a Windscribe ephemeral port and propagate it to qBittorrent and Docker",
	Long: `windscribe-port logs into the Windscribe account portal, requests a new
ephemeral port-forwarding port, points qBittorrent at it, rewrites the port
variable in a Docker compose env file, restarts the VPN stack and reports the
outcome to a webhook.

Running it without a subcommand performs a sync.`,
	PersistentPreRunE: initializeApp,
	RunE:              runSync,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// SetVersion records the build version for the version and update commands.
func SetVersion(v, built string) {
	version = v
	buildTime = built
}

// Execute runs the root command and returns the process exit code.
// SIGINT and SIGTERM cancel the running command.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	defer shutdownApp()

	if err == nil {
		return pipeline.ExitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", redact(exitErr.err.Error()))
		}
		return exitErr.code
	}

	fmt.Fprintln(os.Stderr, "Error:", redact(err.Error()))
	if errors.Is(err, context.Canceled) {
		return pipeline.ExitInterrupted
	}
	return pipeline.ExitConfig
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
}

// initializeApp loads the configuration and sets up logging
func initializeApp(cmd *cobra.Command, args []string) error {
	if cmd.Annotations["skipConfig"] == "true" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		return nil
	}

	var err error
	cfg, creds, err = config.Load(config.Options{ConfigFile: cfgFile, EnvFile: envFile})
	if err != nil {
		return &exitError{code: pipeline.ExitConfig, err: fmt.Errorf("failed to load config: %w", err)}
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, logFile, err = setupLogger(cfg.Logging)
	if err != nil {
		return &exitError{code: pipeline.ExitConfig, err: err}
	}

	return nil
}

// shutdownApp wipes secrets and closes the log file
func shutdownApp() {
	creds.Destroy()
	if logFile != nil {
		logFile.Close()
	}
}

// setupLogger configures the zerolog logger. When a log file is configured
// every entry is also appended to it as JSON.
func setupLogger(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	// Set log level
	level := zerolog.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "trace":
		level = zerolog.TraceLevel
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output format
	var out io.Writer = os.Stderr
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    !cfg.Color || !isatty.IsTerminal(os.Stderr.Fd()),
		}
	}

	if cfg.File == "" {
		return zerolog.New(out).With().Timestamp().Logger(), nil, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	multi := zerolog.MultiLevelWriter(out, f)
	return zerolog.New(multi).With().Timestamp().Logger(), f, nil
}

// redact scrubs loaded secrets from s.
func redact(s string) string {
	return creds.Redact(s)
}
