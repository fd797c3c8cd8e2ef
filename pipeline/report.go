package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/diagnostics"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/portal"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/stage"
)

// Report is the outcome of one run.
type Report struct {
	RunID string
	State State
	// Port is set once the portal handed out a port.
	Port   portal.PortAssignment
	Stages []stage.Result

	FailedStage stage.Name
	// Err is the unredacted cause of the failure; Error is safe to log.
	Err      error
	Error    string
	Artifact *diagnostics.Artifact

	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the run reached DONE.
func (r Report) Succeeded() bool {
	return r.State == StateDone
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stage returns the result recorded for name.
func (r Report) Stage(name stage.Name) (stage.Result, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return stage.Result{}, false
}

// ExitCode maps the run outcome to the process exit code.
func (r Report) ExitCode() int {
	if r.State != StateFailed {
		return ExitOK
	}
	if errors.Is(r.Err, context.Canceled) {
		return ExitInterrupted
	}
	switch r.FailedStage {
	case stage.Authentication:
		return ExitAuth
	case stage.PortRequest:
		return ExitExtraction
	case stage.QBittorrent:
		return ExitQBittorrent
	case stage.DockerEnv, stage.Restart:
		return ExitDocker
	}
	return ExitAuth
}
