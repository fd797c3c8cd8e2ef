package containers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/poll"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/stage"
)

// Runtime is the part of the Docker Engine API the restarter uses.
// *client.Client satisfies it.
type Runtime interface {
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// NewDockerClient connects to the engine described by the DOCKER_HOST family
// of environment variables, negotiating the API version.
func NewDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

// Options bounds each restart.
type Options struct {
	// HealthTimeout is how long a restarted container has to become ready.
	HealthTimeout time.Duration
	// PollInterval is the delay between state checks.
	PollInterval time.Duration
	// StopTimeout is passed to the engine as the graceful stop period.
	StopTimeout time.Duration
}

// Restarter restarts containers one at a time, in order.
type Restarter struct {
	rt     Runtime
	opts   Options
	logger zerolog.Logger
}

// NewRestarter creates a Restarter. Zero option values fall back to a 60s
// health timeout polled every 5s.
func NewRestarter(rt Runtime, opts Options, logger zerolog.Logger) *Restarter {
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 60 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Restarter{rt: rt, opts: opts, logger: logger}
}

// Restart restarts names in order and waits for each to be ready before
// moving on. The first failure stops the sequence.
func (r *Restarter) Restart(ctx context.Context, names []string) (stage.Result, error) {
	var done []string
	for _, name := range names {
		r.logger.Info().Str("container", name).Msg("Restarting container")

		if err := r.restartOne(ctx, name); err != nil {
			rerr := &RestartError{Container: name, Succeeded: done, Err: err}
			return stage.Failed(stage.Restart, rerr), rerr
		}

		r.logger.Info().Str("container", name).Msg("Container is ready")
		done = append(done, name)
	}

	return stage.Success(stage.Restart, strings.Join(done, ", ")), nil
}

func (r *Restarter) restartOne(ctx context.Context, name string) error {
	stop := container.StopOptions{}
	if r.opts.StopTimeout > 0 {
		seconds := int(r.opts.StopTimeout.Seconds())
		stop.Timeout = &seconds
	}

	if err := r.rt.ContainerRestart(ctx, name, stop); err != nil {
		return fmt.Errorf("restart: %w", err)
	}

	return poll.Until(ctx, poll.Options{Timeout: r.opts.HealthTimeout, Interval: r.opts.PollInterval},
		func(ctx context.Context) (bool, error) {
			return r.ready(ctx, name)
		})
}

// ready reports whether name is healthy, or running when it defines no
// healthcheck. An unhealthy or stopped container is a hard failure.
func (r *Restarter) ready(ctx context.Context, name string) (bool, error) {
	info, err := r.rt.ContainerInspect(ctx, name)
	if err != nil {
		return false, fmt.Errorf("inspect: %w", err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return false, nil
	}

	state := info.State
	if state.Health != nil {
		r.logger.Debug().Str("container", name).Str("health", string(state.Health.Status)).Msg("Health status")
		switch state.Health.Status {
		case container.Healthy:
			return true, nil
		case container.Unhealthy:
			return false, ErrUnhealthy
		}
	}

	switch state.Status {
	case "exited", "dead":
		return false, fmt.Errorf("%w: %s (exit code %d)", ErrNotRunning, state.Status, state.ExitCode)
	}

	return state.Health == nil && state.Running && !state.Restarting, nil
}
