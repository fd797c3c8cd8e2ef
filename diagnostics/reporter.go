// Package diagnostics records what was on screen and what went wrong when a
// run fails.
package diagnostics

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/stage"
)

// Screenshotter is anything that can capture the current page as PNG.
// *portal.Session satisfies it.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Artifact describes one captured failure.
type Artifact struct {
	RunID      string     `json:"run_id"`
	Stage      stage.Name `json:"stage"`
	Error      string     `json:"error"`
	Screenshot string     `json:"screenshot,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	// Path is where the artifact itself was written, empty if that failed.
	Path string `json:"-"`
}

// Reporter writes failure artifacts to a directory.
type Reporter struct {
	dir    string
	runID  string
	redact func(string) string
	logger zerolog.Logger
	now    func() time.Time
}

// NewReporter creates a Reporter. redact is applied to error text before it
// is stored; nil leaves text unchanged.
func NewReporter(dir, runID string, redact func(string) string, logger zerolog.Logger) *Reporter {
	if redact == nil {
		redact = func(s string) string { return s }
	}
	return &Reporter{
		dir:    dir,
		runID:  runID,
		redact: redact,
		logger: logger,
		now:    time.Now,
	}
}

// Capture records a failure of name. shot may be nil when no browser page is
// available. Capture never fails: problems writing files are logged and the
// artifact is returned with whatever could be gathered.
func (r *Reporter) Capture(ctx context.Context, name stage.Name, err error, shot Screenshotter) *Artifact {
	a := &Artifact{
		RunID:     r.runID,
		Stage:     name,
		Timestamp: r.now(),
	}
	if err != nil {
		a.Error = r.redact(err.Error())
	}

	if mkErr := os.MkdirAll(r.dir, 0o755); mkErr != nil {
		r.logger.Error().Err(mkErr).Str("dir", r.dir).Msg("Failed to create diagnostics directory")
		return a
	}

	if shot != nil {
		a.Screenshot = r.screenshot(ctx, shot, a.Timestamp)
	}

	path := filepath.Join(r.dir, r.runID+".json")
	data, jsonErr := json.MarshalIndent(a, "", "  ")
	if jsonErr == nil {
		jsonErr = os.WriteFile(path, data, 0o644)
	}
	if jsonErr != nil {
		r.logger.Error().Err(jsonErr).Msg("Failed to write diagnostic artifact")
	} else {
		a.Path = path
	}

	r.logger.Info().
		Str("stage", string(name)).
		Str("screenshot", a.Screenshot).
		Str("artifact", a.Path).
		Msg("Captured failure diagnostics")
	return a
}

func (r *Reporter) screenshot(ctx context.Context, shot Screenshotter, at time.Time) string {
	png, err := shot.Screenshot(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to capture screenshot")
		return ""
	}

	path := filepath.Join(r.dir, "windscribe_"+at.Format("20060102_150405")+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		r.logger.Error().Err(err).Str("path", path).Msg("Failed to save screenshot")
		return ""
	}
	return path
}
