package cmd

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/config"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/containers"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/diagnostics"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/dockerenv"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/lock"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/metrics"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/notify"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/pipeline"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/portal"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/qbittorrent"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Request a new port and propagate it",
	Long: `Log into the Windscribe portal, request a new ephemeral port, set it as
qBittorrent's listening port, update the Docker env file and restart the
configured containers.

Exit codes: 0 success, 1 login or configuration failure, 2 port request
failure, 3 qBittorrent failure, 4 Docker failure, 5 another run in progress,
130 interrupted.`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	runLock := lock.New(cfg.Lock.Dir, cfg.Lock.Name)
	if err := runLock.Acquire(); err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return &exitError{code: pipeline.ExitLocked, err: err}
		}
		return &exitError{code: pipeline.ExitConfig, err: err}
	}
	defer func() {
		if err := runLock.Release(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release run lock")
		}
	}()

	runID := uuid.NewString()
	log := logger.With().Str("run_id", runID).Logger()

	settings := portal.Settings{
		LoginURL:         cfg.Portal.LoginURL,
		PortURL:          cfg.Portal.PortURL,
		ChallengeTimeout: cfg.Portal.ChallengeTimeout,
		ElementTimeout:   cfg.Portal.ElementTimeout,
		PollInterval:     cfg.Portal.PollInterval,
		Selectors:        portal.DefaultSelectors,
	}
	launcher := portal.ChromeLauncher{
		Headless:  cfg.Portal.Headless,
		UserAgent: cfg.Portal.UserAgent,
		ExecPath:  cfg.Portal.ChromePath,
		Logger:    log,
	}

	deps := pipeline.Deps{
		Auth:     portal.NewAgent(launcher, settings, log),
		Ports:    portal.NewExtractor(settings, log),
		Torrent:  newQBittorrentClient(cfg.QBittorrent, creds.QBittorrentUsername.String(), creds.QBittorrentPassword.String(), log),
		Reporter: diagnostics.NewReporter(cfg.Diagnostics.Dir, runID, creds.Redact, log),
	}

	if cfg.DockerEnabled() {
		deps.Env = dockerenv.NewUpdater(cfg.Docker.PortVariable, log)

		dockerClient, err := containers.NewDockerClient()
		if err != nil {
			return &exitError{code: pipeline.ExitDocker, err: err}
		}
		defer dockerClient.Close()

		deps.Restarter = containers.NewRestarter(dockerClient, containers.Options{
			HealthTimeout: cfg.Docker.HealthTimeout,
			PollInterval:  cfg.Docker.PollInterval,
			StopTimeout:   cfg.Docker.StopTimeout,
		}, log)
	}

	if cfg.NotifyEnabled() {
		hook, err := notify.NewWebhook(cfg.Notify.WebhookURL, log,
			notify.WithFormat(cfg.Notify.Format),
			notify.WithUsername(cfg.Notify.Username),
			notify.WithTimeout(cfg.Notify.Timeout),
			notify.WithRetries(cfg.Notify.Retries),
		)
		if err != nil {
			return &exitError{code: pipeline.ExitConfig, err: err}
		}
		deps.Notifier = hook
	}

	orchestrator := pipeline.New(deps, pipeline.Options{
		RunID: runID,
		Credentials: func() portal.Credentials {
			return portal.Credentials{
				Username: creds.PortalUsername.String(),
				Password: creds.PortalPassword.String(),
			}
		},
		EnvPath:    cfg.Docker.Path,
		Containers: cfg.Docker.Containers,
		Redact:     creds.Redact,
	}, log)

	report := orchestrator.Run(ctx)

	if cfg.MetricsEnabled() {
		writeMetrics(report)
	}

	if !report.Succeeded() {
		return &exitError{
			code: report.ExitCode(),
			err:  fmt.Errorf("%s failed: %s", report.FailedStage.Label(), report.Error),
		}
	}
	return nil
}

func newQBittorrentClient(qbt config.QBittorrentConfig, username, password string, log zerolog.Logger) *qbittorrent.Client {
	opts := []qbittorrent.Option{
		qbittorrent.WithTimeout(qbt.Timeout),
		qbittorrent.WithMaxRetries(qbt.Retries),
	}
	if qbt.InsecureSkipVerify {
		opts = append(opts, qbittorrent.WithInsecureSkipVerify())
	}

	return qbittorrent.NewClient(qbt.URL(), username, password, log, opts...)
}

func writeMetrics(report pipeline.Report) {
	err := metrics.NewTextfile(cfg.Metrics.Textfile).Write(metrics.Run{
		Success:    report.Succeeded(),
		ExitCode:   report.ExitCode(),
		Port:       report.Port.Port,
		Duration:   report.Duration(),
		FinishedAt: report.FinishedAt,
		Stages:     report.Stages,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to write metrics")
	}
}
