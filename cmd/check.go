package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/containers"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/dockerenv"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/lock"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/pipeline"
)

const probeTimeout = 15 * time.Second

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check connectivity to every configured service",
	Long: `Probe the Windscribe portal, qBittorrent, the Docker engine and the env
file without changing anything. Probes run concurrently.`,
	RunE: runCheck,
}

type probe struct {
	name string
	run  func(ctx context.Context) (string, error)
}

type probeResult struct {
	detail string
	err    error
}

func runCheck(cmd *cobra.Command, args []string) error {
	probes := []probe{
		{name: "Windscribe portal", run: probePortal},
		{name: "qBittorrent", run: probeQBittorrent},
	}
	if cfg.DockerEnabled() {
		probes = append(probes,
			probe{name: "Docker env file", run: probeEnvFile},
			probe{name: "Docker engine", run: probeDocker},
		)
	}

	results := make([]probeResult, len(probes))
	g, ctx := errgroup.WithContext(cmd.Context())
	for i, p := range probes {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			detail, err := p.run(ctx)
			results[i] = probeResult{detail: detail, err: err}
			// Keep the other probes running.
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, p := range probes {
		r := results[i]
		if r.err != nil {
			failed++
			color.Red("✖ %s: %s", p.name, redact(r.err.Error()))
			continue
		}
		color.Green("✓ %s: %s", p.name, r.detail)
	}

	printOptional()

	return checkResult(failed, len(probes))
}

// checkResult maps failed probes to the configuration exit code.
func checkResult(failed, total int) error {
	if failed > 0 {
		return &exitError{code: pipeline.ExitConfig, err: fmt.Errorf("%d of %d checks failed", failed, total)}
	}
	return nil
}

// printOptional lists features that are configured but not probed.
func printOptional() {
	if cfg.NotifyEnabled() {
		color.Cyan("• Webhook: configured (%s format)", cfg.Notify.Format)
	} else {
		color.Yellow("• Webhook: not configured, notifications disabled")
	}
	if !cfg.DockerEnabled() {
		color.Yellow("• Docker: path not configured, env file and restarts disabled")
	}
	if cfg.MetricsEnabled() {
		color.Cyan("• Metrics textfile: %s", cfg.Metrics.Textfile)
	}
	if pid := lock.New(cfg.Lock.Dir, cfg.Lock.Name).HolderPID(); pid > 0 {
		color.Yellow("• A sync run is in progress (PID %d)", pid)
	}
}

func probePortal(ctx context.Context) (string, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.Logger = nil

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, cfg.Portal.LoginURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// A challenge page still proves the portal is reachable.
	return fmt.Sprintf("reachable (HTTP %d)", resp.StatusCode), nil
}

func probeQBittorrent(ctx context.Context) (string, error) {
	client := newQBittorrentClient(cfg.QBittorrent, creds.QBittorrentUsername.String(), creds.QBittorrentPassword.String(), logger)
	if err := client.Login(ctx); err != nil {
		return "", err
	}
	port, err := client.ListenPort(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s, listening on port %d", cfg.QBittorrent.URL(), port), nil
}

func probeEnvFile(ctx context.Context) (string, error) {
	value, err := dockerenv.NewUpdater(cfg.Docker.PortVariable, logger).Current(cfg.Docker.Path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s=%s", cfg.Docker.PortVariable, value), nil
}

func probeDocker(ctx context.Context) (string, error) {
	cli, err := containers.NewDockerClient()
	if err != nil {
		return "", err
	}
	defer cli.Close()

	ping, err := cli.Ping(ctx)
	if err != nil {
		return "", fmt.Errorf("engine unreachable: %w", err)
	}

	for _, name := range cfg.Docker.Containers {
		info, err := cli.ContainerInspect(ctx, name)
		if err != nil {
			return "", fmt.Errorf("container %s: %w", name, err)
		}
		if info.ContainerJSONBase == nil || info.State == nil || !info.State.Running {
			return "", fmt.Errorf("container %s is not running", name)
		}
	}

	return fmt.Sprintf("API %s, %d containers running", ping.APIVersion, len(cfg.Docker.Containers)), nil
}
