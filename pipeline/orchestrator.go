// Package pipeline drives one port sync run from portal login to the final
// notification.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/diagnostics"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/notify"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/portal"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/stage"
)

// Authenticator opens a logged-in portal session.
type Authenticator interface {
	Launch(ctx context.Context) (*portal.Session, error)
	Login(ctx context.Context, s *portal.Session, creds portal.Credentials) error
}

// PortRequester obtains a new forwarded port.
type PortRequester interface {
	RequestNewPort(ctx context.Context, s *portal.Session) (portal.PortAssignment, error)
}

// TorrentSyncer points the torrent client at a port.
type TorrentSyncer interface {
	Sync(ctx context.Context, port int) (stage.Result, error)
}

// EnvUpdater writes the port into the compose env file.
type EnvUpdater interface {
	Update(port int, path string) (stage.Result, error)
}

// Restarter restarts containers in order.
type Restarter interface {
	Restart(ctx context.Context, names []string) (stage.Result, error)
}

// Reporter captures failure diagnostics.
type Reporter interface {
	Capture(ctx context.Context, name stage.Name, err error, shot diagnostics.Screenshotter) *diagnostics.Artifact
}

// Deps are the stage implementations. Env, Restarter and Notifier may be
// nil, which disables their stages.
type Deps struct {
	Auth      Authenticator
	Ports     PortRequester
	Torrent   TorrentSyncer
	Env       EnvUpdater
	Restarter Restarter
	Notifier  notify.Notifier
	Reporter  Reporter
}

// Options tune a run.
type Options struct {
	RunID string
	// Credentials is called once, right before login.
	Credentials func() portal.Credentials
	// EnvPath is the docker env file or its directory.
	EnvPath    string
	Containers []string
	// Redact scrubs secrets from any text that leaves the process.
	Redact func(string) string
	// CaptureTimeout bounds failure handling once the run context is gone.
	CaptureTimeout time.Duration
}

// Orchestrator runs the stages in order and stops at the first failure.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New creates an Orchestrator.
func New(deps Deps, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Redact == nil {
		opts.Redact = func(s string) string { return s }
	}
	if opts.Credentials == nil {
		opts.Credentials = func() portal.Credentials { return portal.Credentials{} }
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = 30 * time.Second
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("run_id", opts.RunID).Logger(),
		now:    time.Now,
	}
}

// run is the mutable state of one Run call.
type run struct {
	report  Report
	session *portal.Session
}

// Run executes the pipeline. It never returns an error; the outcome,
// including the failed stage, is in the Report.
func (o *Orchestrator) Run(ctx context.Context) Report {
	r := &run{report: Report{RunID: o.opts.RunID, State: StateInit, StartedAt: o.now()}}
	defer func() {
		if err := r.session.Close(); err != nil {
			o.logger.Warn().Err(err).Msg("Failed to close browser")
		}
	}()

	o.logger.Info().Msg("Starting port sync")

	if !o.execute(ctx, r) {
		o.fail(ctx, r)
	} else {
		o.notify(ctx, r, o.event(r, notify.OutcomeSuccess))
		o.transition(r, StateNotified)
		o.transition(r, StateDone)
		o.logger.Info().Int("port", r.report.Port.Port).Msg("Port sync completed successfully")
	}

	r.report.FinishedAt = o.now()
	return r.report
}

// execute runs every stage up to notification. It reports false as soon as
// one fails.
func (o *Orchestrator) execute(ctx context.Context, r *run) bool {
	ok := o.step(ctx, r, stage.Authentication, func() (stage.Result, error) {
		session, err := o.deps.Auth.Launch(ctx)
		if err != nil {
			return stage.Result{}, err
		}
		r.session = session
		if err := o.deps.Auth.Login(ctx, session, o.opts.Credentials()); err != nil {
			return stage.Result{}, err
		}
		return stage.Success(stage.Authentication, "logged in"), nil
	})
	if !ok {
		return false
	}
	o.transition(r, StateAuthenticated)

	ok = o.step(ctx, r, stage.PortRequest, func() (stage.Result, error) {
		assignment, err := o.deps.Ports.RequestNewPort(ctx, r.session)
		if err != nil {
			return stage.Result{}, err
		}
		r.report.Port = assignment
		if assignment.Previous != 0 {
			return stage.Success(stage.PortRequest, fmt.Sprintf("%d -> %d", assignment.Previous, assignment.Port)), nil
		}
		return stage.Success(stage.PortRequest, fmt.Sprintf("%d", assignment.Port)), nil
	})
	if !ok {
		return false
	}
	o.transition(r, StatePortObtained)

	// The browser is no longer needed once the port is known.
	if err := r.session.Close(); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to close browser")
	}

	port := r.report.Port.Port
	if !o.step(ctx, r, stage.QBittorrent, func() (stage.Result, error) {
		return o.deps.Torrent.Sync(ctx, port)
	}) {
		return false
	}
	o.transition(r, StateQBTSynced)

	if o.deps.Env == nil || o.opts.EnvPath == "" {
		o.record(r, stage.Skipped(stage.DockerEnv, "docker path not configured"))
		o.transition(r, StateDockerSynced)
		o.record(r, stage.Skipped(stage.Restart, "docker path not configured"))
		o.transition(r, StateContainersRestarted)
		return true
	}

	var envResult stage.Result
	if !o.step(ctx, r, stage.DockerEnv, func() (stage.Result, error) {
		res, err := o.deps.Env.Update(port, o.opts.EnvPath)
		envResult = res
		return res, err
	}) {
		return false
	}
	o.transition(r, StateDockerSynced)

	switch {
	case envResult.Status != stage.StatusSuccess:
		o.record(r, stage.Skipped(stage.Restart, "env file unchanged"))
	case o.deps.Restarter == nil || len(o.opts.Containers) == 0:
		o.record(r, stage.Skipped(stage.Restart, "no containers configured"))
	default:
		if !o.step(ctx, r, stage.Restart, func() (stage.Result, error) {
			return o.deps.Restarter.Restart(ctx, o.opts.Containers)
		}) {
			return false
		}
	}
	o.transition(r, StateContainersRestarted)
	return true
}

// step runs fn as stage name and records its result. A cancelled context
// fails the stage without calling fn.
func (o *Orchestrator) step(ctx context.Context, r *run, name stage.Name, fn func() (stage.Result, error)) bool {
	start := o.now()
	o.logger.Info().Str("stage", string(name)).Msg("Running " + name.Label())

	var (
		res stage.Result
		err = ctx.Err()
	)
	if err == nil {
		res, err = fn()
	}
	if err != nil {
		res = stage.Failed(name, err)
	}
	res.Stage = name
	res.Duration = o.now().Sub(start)
	o.record(r, res)

	if err != nil {
		r.report.FailedStage = name
		r.report.Err = err
		r.report.Error = o.opts.Redact(err.Error())
		return false
	}
	return true
}

func (o *Orchestrator) record(r *run, res stage.Result) {
	res.Detail = o.opts.Redact(res.Detail)
	res.Error = o.opts.Redact(res.Error)
	r.report.Stages = append(r.report.Stages, res)

	ev := o.logger.Info()
	if res.Status == stage.StatusFailed {
		ev = o.logger.Error().Str("error", res.Error)
	}
	ev.Str("stage", string(res.Stage)).
		Str("status", string(res.Status)).
		Str("detail", res.Detail).
		Dur("duration", res.Duration).
		Msg(res.Marker() + " " + res.Stage.Label())
}

func (o *Orchestrator) transition(r *run, next State) {
	o.logger.Debug().Str("from", r.report.State.String()).Str("to", next.String()).Msg("State transition")
	r.report.State = next
}

// fail captures diagnostics and sends a failure event. Both run on a context
// detached from cancellation so an interrupted run is still reported.
func (o *Orchestrator) fail(ctx context.Context, r *run) {
	o.transition(r, StateFailed)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CaptureTimeout)
	defer cancel()

	if o.deps.Reporter != nil {
		var shot diagnostics.Screenshotter
		if r.session.Open() {
			shot = r.session
		}
		r.report.Artifact = o.deps.Reporter.Capture(ctx, r.report.FailedStage, r.report.Err, shot)
	}

	o.notify(ctx, r, o.event(r, notify.OutcomeFailure))
}

func (o *Orchestrator) event(r *run, outcome notify.Outcome) notify.Event {
	ev := notify.Event{
		RunID:        r.report.RunID,
		Outcome:      outcome,
		Port:         r.report.Port.Port,
		PreviousPort: r.report.Port.Previous,
		FinalState:   StateDone.String(),
		Stages:       append([]stage.Result(nil), r.report.Stages...),
		StartedAt:    r.report.StartedAt,
		FinishedAt:   o.now(),
	}
	if outcome == notify.OutcomeFailure {
		ev.FinalState = StateFailed.String()
		ev.FailedStage = r.report.FailedStage
		ev.Error = r.report.Error
		if r.report.Artifact != nil {
			ev.Diagnostic = r.report.Artifact.Screenshot
			if ev.Diagnostic == "" {
				ev.Diagnostic = r.report.Artifact.Path
			}
		}
	}
	return ev
}

// notify delivers ev. Delivery problems are logged and never fail the run.
func (o *Orchestrator) notify(ctx context.Context, r *run, ev notify.Event) {
	if o.deps.Notifier == nil {
		o.record(r, stage.Skipped(stage.Notification, "webhook not configured"))
		return
	}

	start := o.now()
	err := o.deps.Notifier.Notify(ctx, ev)
	res := stage.Success(stage.Notification, string(ev.Outcome))
	if err != nil {
		res = stage.Failed(stage.Notification, err)
	}
	res.Duration = o.now().Sub(start)
	o.record(r, res)
}
