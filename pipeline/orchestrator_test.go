package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/diagnostics"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/notify"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/portal"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/portal/portaltest"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/stage"
)

const (
	loginURL   = "https://windscribe.com/login"
	accountURL = "https://windscribe.com/myaccount"
	portURL    = "https://windscribe.com/myaccount#porteph"
)

func testSettings() portal.Settings {
	return portal.Settings{
		LoginURL:         loginURL,
		PortURL:          portURL,
		ChallengeTimeout: 50 * time.Millisecond,
		ElementTimeout:   50 * time.Millisecond,
		PollInterval:     2 * time.Millisecond,
	}
}

type fakeTorrent struct {
	current int
	err     error
	calls   []int
}

func (f *fakeTorrent) Sync(ctx context.Context, port int) (stage.Result, error) {
	f.calls = append(f.calls, port)
	if f.err != nil {
		return stage.Failed(stage.QBittorrent, f.err), f.err
	}
	if f.current == port {
		return stage.Skipped(stage.QBittorrent, "already set"), nil
	}
	f.current = port
	return stage.Success(stage.QBittorrent, "updated"), nil
}

type fakeEnv struct {
	unchanged bool
	err       error
	calls     int
}

func (f *fakeEnv) Update(port int, path string) (stage.Result, error) {
	f.calls++
	if f.err != nil {
		return stage.Failed(stage.DockerEnv, f.err), f.err
	}
	if f.unchanged {
		return stage.Skipped(stage.DockerEnv, "unchanged"), nil
	}
	return stage.Success(stage.DockerEnv, "updated"), nil
}

type fakeRestarter struct {
	err   error
	calls [][]string
}

func (f *fakeRestarter) Restart(ctx context.Context, names []string) (stage.Result, error) {
	f.calls = append(f.calls, names)
	if f.err != nil {
		return stage.Failed(stage.Restart, f.err), f.err
	}
	return stage.Success(stage.Restart, strings.Join(names, ", ")), nil
}

type fakeNotifier struct {
	err    error
	events []notify.Event
}

func (f *fakeNotifier) Notify(ctx context.Context, ev notify.Event) error {
	f.events = append(f.events, ev)
	return f.err
}

type capture struct {
	stage      stage.Name
	err        error
	screenshot []byte
}

type fakeReporter struct {
	captures []capture
}

func (f *fakeReporter) Capture(ctx context.Context, name stage.Name, err error, shot diagnostics.Screenshotter) *diagnostics.Artifact {
	c := capture{stage: name, err: err}
	a := &diagnostics.Artifact{Stage: name, Error: err.Error(), Path: "img/run.json"}
	if shot != nil {
		if png, shotErr := shot.Screenshot(ctx); shotErr == nil {
			c.screenshot = png
			a.Screenshot = "img/windscribe.png"
		}
	}
	f.captures = append(f.captures, c)
	return a
}

type harness struct {
	browser   *portaltest.Browser
	torrent   *fakeTorrent
	env       *fakeEnv
	restarter *fakeRestarter
	notifier  *fakeNotifier
	reporter  *fakeReporter
	opts      Options
}

func newHarness() *harness {
	b := portaltest.New()
	b.ScreenshotData = []byte("PNG")
	portaltest.LoginPage(b, loginURL, accountURL)
	portaltest.PortPage(b, portURL, "40000", "54321")

	return &harness{
		browser:   b,
		torrent:   &fakeTorrent{current: 12345},
		env:       &fakeEnv{},
		restarter: &fakeRestarter{},
		notifier:  &fakeNotifier{},
		reporter:  &fakeReporter{},
		opts: Options{
			RunID:       "run-1",
			Credentials: func() portal.Credentials { return portal.Credentials{Username: "user", Password: "hunter2"} },
			EnvPath:     "/srv/stack",
			Containers:  []string{"gluetun", "qbittorrent", "prowlarr"},
			Redact:      func(s string) string { return strings.ReplaceAll(s, "hunter2", "[REDACTED]") },
		},
	}
}

func (h *harness) run(ctx context.Context) Report {
	deps := Deps{
		Auth:      portal.NewAgent(portaltest.Launcher{Browser: h.browser}, testSettings(), zerolog.Nop()),
		Ports:     portal.NewExtractor(testSettings(), zerolog.Nop()),
		Torrent:   h.torrent,
		Env:       h.env,
		Restarter: h.restarter,
		Notifier:  h.notifier,
		Reporter:  h.reporter,
	}
	if h.env == nil {
		deps.Env = nil
	}
	if h.notifier == nil {
		deps.Notifier = nil
	}
	return New(deps, h.opts, zerolog.Nop()).Run(ctx)
}

func stageStatuses(r Report) map[stage.Name]stage.Status {
	m := make(map[stage.Name]stage.Status)
	for _, s := range r.Stages {
		m[s.Stage] = s.Status
	}
	return m
}

func TestRun_FullSync(t *testing.T) {
	h := newHarness()

	report := h.run(context.Background())

	assert.Equal(t, StateDone, report.State)
	assert.True(t, report.Succeeded())
	assert.Equal(t, ExitOK, report.ExitCode())
	assert.Equal(t, 54321, report.Port.Port)
	assert.Equal(t, 40000, report.Port.Previous)

	assert.Equal(t, []int{54321}, h.torrent.calls)
	assert.Equal(t, 54321, h.torrent.current)
	assert.Equal(t, 1, h.env.calls)
	assert.Equal(t, [][]string{{"gluetun", "qbittorrent", "prowlarr"}}, h.restarter.calls)
	assert.Empty(t, h.reporter.captures)
	assert.True(t, h.browser.Closed())

	var names []stage.Name
	for _, s := range report.Stages {
		names = append(names, s.Stage)
		assert.NotEqual(t, stage.StatusFailed, s.Status, s.Stage)
	}
	assert.Equal(t, []stage.Name{
		stage.Authentication, stage.PortRequest, stage.QBittorrent,
		stage.DockerEnv, stage.Restart, stage.Notification,
	}, names)

	require.Len(t, h.notifier.events, 1)
	ev := h.notifier.events[0]
	assert.Equal(t, notify.OutcomeSuccess, ev.Outcome)
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, 54321, ev.Port)
	assert.Equal(t, "DONE", ev.FinalState)
	assert.Len(t, ev.Stages, 5)
}

func TestRun_QBittorrentAlreadySet(t *testing.T) {
	h := newHarness()
	h.torrent.current = 54321
	h.env.unchanged = true

	report := h.run(context.Background())

	assert.Equal(t, StateDone, report.State)
	statuses := stageStatuses(report)
	assert.Equal(t, stage.StatusSkipped, statuses[stage.QBittorrent])
	assert.Equal(t, stage.StatusSkipped, statuses[stage.DockerEnv])
	assert.Equal(t, stage.StatusSkipped, statuses[stage.Restart])
	assert.Empty(t, h.restarter.calls, "unchanged env file must not restart containers")
}

func TestRun_DockerDisabled(t *testing.T) {
	h := newHarness()
	h.opts.EnvPath = ""

	report := h.run(context.Background())

	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, ExitOK, report.ExitCode())
	statuses := stageStatuses(report)
	assert.Equal(t, stage.StatusSkipped, statuses[stage.DockerEnv])
	assert.Equal(t, stage.StatusSkipped, statuses[stage.Restart])
	assert.Zero(t, h.env.calls)
	assert.Empty(t, h.restarter.calls)
}

func TestRun_NotifierDisabled(t *testing.T) {
	h := newHarness()
	h.notifier = nil

	report := h.run(context.Background())

	assert.Equal(t, StateDone, report.State)
	res, ok := report.Stage(stage.Notification)
	require.True(t, ok)
	assert.Equal(t, stage.StatusSkipped, res.Status)
}

func TestRun_NotificationFailureIsNotFatal(t *testing.T) {
	h := newHarness()
	h.notifier.err = &notify.DeliveryError{StatusCode: 500, Err: errors.New("boom")}

	report := h.run(context.Background())

	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, ExitOK, report.ExitCode())
	res, ok := report.Stage(stage.Notification)
	require.True(t, ok)
	assert.Equal(t, stage.StatusFailed, res.Status)
}

func TestRun_ChallengeTimeout(t *testing.T) {
	h := newHarness()
	sel := portal.DefaultSelectors
	h.browser.OnNavigate(loginURL, func(b *portaltest.Browser) {
		b.Set(sel.Username, "")
		b.Set(sel.Password, "")
		b.Set(sel.ChallengeMarker, "")
	})

	report := h.run(context.Background())

	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, ExitAuth, report.ExitCode())
	assert.Equal(t, stage.Authentication, report.FailedStage)

	var challengeErr *portal.ChallengeTimeoutError
	assert.ErrorAs(t, report.Err, &challengeErr)

	require.Len(t, h.reporter.captures, 1)
	assert.Equal(t, stage.Authentication, h.reporter.captures[0].stage)
	assert.Equal(t, []byte("PNG"), h.reporter.captures[0].screenshot, "live session must be screenshotted")

	require.Len(t, h.notifier.events, 1)
	ev := h.notifier.events[0]
	assert.Equal(t, notify.OutcomeFailure, ev.Outcome)
	assert.Equal(t, stage.Authentication, ev.FailedStage)
	assert.Equal(t, "FAILED", ev.FinalState)
	assert.Equal(t, "img/windscribe.png", ev.Diagnostic)

	assert.Empty(t, h.torrent.calls)
	assert.Zero(t, h.env.calls)
	assert.True(t, h.browser.Closed())
}

func TestRun_InvalidPort(t *testing.T) {
	h := newHarness()
	h.browser = portaltest.New()
	portaltest.LoginPage(h.browser, loginURL, accountURL)
	portaltest.PortPage(h.browser, portURL, "", "N/A")

	report := h.run(context.Background())

	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, ExitExtraction, report.ExitCode())
	assert.Equal(t, stage.PortRequest, report.FailedStage)
	assert.Zero(t, report.Port.Port, "no partial port is surfaced")

	var extractErr *portal.ExtractionError
	require.ErrorAs(t, report.Err, &extractErr)
	assert.Equal(t, "N/A", extractErr.Text)

	statuses := stageStatuses(report)
	assert.NotContains(t, statuses, stage.QBittorrent)
	assert.NotContains(t, statuses, stage.DockerEnv)
	assert.Empty(t, h.torrent.calls)
	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, stage.PortRequest, h.notifier.events[0].FailedStage)
}

func TestRun_StageFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness)
		wantStage stage.Name
		wantCode  int
	}{
		{
			name:      "qbittorrent",
			setup:     func(h *harness) { h.torrent.err = errors.New("connection refused") },
			wantStage: stage.QBittorrent,
			wantCode:  ExitQBittorrent,
		},
		{
			name:      "docker env",
			setup:     func(h *harness) { h.env.err = errors.New("variable not defined") },
			wantStage: stage.DockerEnv,
			wantCode:  ExitDocker,
		},
		{
			name:      "restart",
			setup:     func(h *harness) { h.restarter.err = errors.New("unhealthy") },
			wantStage: stage.Restart,
			wantCode:  ExitDocker,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.setup(h)

			report := h.run(context.Background())

			assert.Equal(t, StateFailed, report.State)
			assert.Equal(t, tt.wantStage, report.FailedStage)
			assert.Equal(t, tt.wantCode, report.ExitCode())

			last := report.Stages[len(report.Stages)-1]
			assert.Equal(t, stage.Notification, last.Stage)
			failed := report.Stages[len(report.Stages)-2]
			assert.Equal(t, tt.wantStage, failed.Stage)
			assert.Equal(t, stage.StatusFailed, failed.Status)

			require.Len(t, h.reporter.captures, 1)
			assert.Nil(t, h.reporter.captures[0].screenshot, "browser is closed after the port stage")
			require.Len(t, h.notifier.events, 1)
			assert.Equal(t, tt.wantStage, h.notifier.events[0].FailedStage)
		})
	}
}

func TestRun_SecretsRedacted(t *testing.T) {
	h := newHarness()
	h.torrent.err = errors.New("login hunter2 rejected")

	report := h.run(context.Background())

	assert.NotContains(t, report.Error, "hunter2")
	for _, s := range report.Stages {
		assert.NotContains(t, s.Error, "hunter2")
	}
	require.Len(t, h.notifier.events, 1)
	assert.NotContains(t, h.notifier.events[0].Error, "hunter2")
}

func TestRun_Cancelled(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	h.browser.OnClick(portal.DefaultSelectors.PortButton, func(b *portaltest.Browser) {
		cancel()
	})

	report := h.run(ctx)

	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, ExitInterrupted, report.ExitCode())
	assert.Empty(t, h.torrent.calls)
	// failure is still reported on a detached context
	require.Len(t, h.notifier.events, 1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "INIT", StateInit.String())
	assert.Equal(t, "CONTAINERS_RESTARTED", StateContainersRestarted.String())
	assert.Equal(t, "FAILED", StateFailed.String())
}
