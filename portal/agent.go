package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/poll"
)

// maxChallengeRounds bounds how often a challenge may come back after login.
const maxChallengeRounds = 3

// errChallengeShown stops the account poll so the challenge can be waited out.
var errChallengeShown = errors.New("anti-bot challenge shown")

// Credentials are the portal login secrets, handed over only for the
// duration of Login.
type Credentials struct {
	Username string
	Password string
}

// Settings configures the portal flow.
type Settings struct {
	LoginURL         string
	PortURL          string
	ChallengeTimeout time.Duration
	ElementTimeout   time.Duration
	PollInterval     time.Duration
	Selectors        Selectors
}

func (s Settings) withDefaults() Settings {
	if s.Selectors == (Selectors{}) {
		s.Selectors = DefaultSelectors
	}
	if s.ChallengeTimeout <= 0 {
		s.ChallengeTimeout = 60 * time.Second
	}
	if s.ElementTimeout <= 0 {
		s.ElementTimeout = 20 * time.Second
	}
	if s.PollInterval <= 0 {
		s.PollInterval = time.Second
	}
	return s
}

// Agent acquires authenticated portal sessions.
type Agent struct {
	launcher Launcher
	settings Settings
	logger   zerolog.Logger
}

// NewAgent creates a new Agent
func NewAgent(launcher Launcher, settings Settings, logger zerolog.Logger) *Agent {
	return &Agent{
		launcher: launcher,
		settings: settings.withDefaults(),
		logger:   logger,
	}
}

// Launch starts a browser and wraps it in a Session.
func (a *Agent) Launch(ctx context.Context) (*Session, error) {
	a.logger.Info().Msg("Initializing browser")

	b, err := a.launcher.Launch(ctx)
	if err != nil {
		return nil, &AuthenticationError{Reason: "browser could not be started", Err: err}
	}

	return NewSession(b), nil
}

// Login signs in on the portal, clearing an anti-bot challenge before and
// after the form is submitted.
func (a *Agent) Login(ctx context.Context, s *Session, creds Credentials) error {
	b, err := s.page()
	if err != nil {
		return &AuthenticationError{Reason: "no browser", Err: err}
	}
	sel := a.settings.Selectors

	a.logger.Info().Str("url", a.settings.LoginURL).Msg("Navigating to portal login page")
	if err := b.Navigate(ctx, a.settings.LoginURL); err != nil {
		return &AuthenticationError{Reason: "login page unreachable", Err: err}
	}

	if err := a.clearChallenge(ctx, b); err != nil {
		return err
	}

	if err := a.waitFor(ctx, b, sel.Username, a.settings.ElementTimeout); err != nil {
		return &AuthenticationError{Reason: "login form not shown", Err: err}
	}

	a.logger.Info().Msg("Entering credentials")
	if err := b.SendKeys(ctx, sel.Username, creds.Username); err != nil {
		return &AuthenticationError{Reason: "could not fill username", Err: err}
	}
	if err := b.SendKeys(ctx, sel.Password, creds.Password); err != nil {
		return &AuthenticationError{Reason: "could not fill password", Err: err}
	}
	if err := b.Submit(ctx, sel.Password); err != nil {
		return &AuthenticationError{Reason: "could not submit login form", Err: err}
	}

	a.logger.Info().Msg("Login submitted, waiting for authentication")
	if err := a.clearChallenge(ctx, b); err != nil {
		return err
	}
	if err := a.awaitAccount(ctx, b); err != nil {
		return err
	}

	a.logger.Info().Msg("Successfully logged into portal")
	return nil
}

// awaitAccount polls until the account page marker shows, failing early on
// a login error message or a redirect away from the portal. A challenge shown
// meanwhile is waited out on its own timeout and the poll starts over.
func (a *Agent) awaitAccount(ctx context.Context, b Browser) error {
	for round := 1; ; round++ {
		err := a.pollAccount(ctx, b)
		if !errors.Is(err, errChallengeShown) {
			return err
		}
		if round >= maxChallengeRounds {
			return &AuthenticationError{Reason: "anti-bot challenge kept reappearing"}
		}
		if err := a.clearChallenge(ctx, b); err != nil {
			return err
		}
	}
}

func (a *Agent) pollAccount(ctx context.Context, b Browser) error {
	sel := a.settings.Selectors
	var authErr error

	err := poll.Until(ctx, poll.Options{Timeout: a.settings.ElementTimeout, Interval: a.settings.PollInterval}, func(ctx context.Context) (bool, error) {
		if ok, err := b.Present(ctx, sel.AccountMarker); err != nil || ok {
			return ok, err
		}

		if ok, err := b.Present(ctx, sel.ChallengeMarker); err != nil {
			return false, err
		} else if ok {
			return false, errChallengeShown
		}

		if text, err := b.Text(ctx, sel.LoginError); err == nil && strings.TrimSpace(text) != "" {
			authErr = &AuthenticationError{Reason: "invalid credentials: " + strings.TrimSpace(text)}
			return false, authErr
		} else if err != nil && !errors.Is(err, ErrElementNotFound) {
			return false, err
		}

		loc, err := b.Location(ctx)
		if err != nil {
			return false, err
		}
		if !a.onPortal(loc) {
			authErr = &AuthenticationError{Reason: fmt.Sprintf("unexpected redirect to %s", loc)}
			return false, authErr
		}

		return false, nil
	})

	switch {
	case err == nil:
		return nil
	case authErr != nil:
		return authErr
	case errors.Is(err, errChallengeShown):
		return errChallengeShown
	case errors.Is(err, poll.ErrTimeout):
		return &AuthenticationError{Reason: "account page not reached", Err: err}
	}
	return &AuthenticationError{Reason: "login check failed", Err: err}
}

// clearChallenge waits for an anti-bot interstitial to go away. It returns
// immediately when none is shown.
func (a *Agent) clearChallenge(ctx context.Context, b Browser) error {
	sel := a.settings.Selectors

	present, err := b.Present(ctx, sel.ChallengeMarker)
	if err != nil {
		return &AuthenticationError{Reason: "challenge check failed", Err: err}
	}
	if !present {
		a.logger.Debug().Msg("No anti-bot challenge detected")
		return nil
	}

	a.logger.Info().Dur("timeout", a.settings.ChallengeTimeout).Msg("Anti-bot challenge detected, waiting for it to clear")

	err = poll.Until(ctx, poll.Options{Timeout: a.settings.ChallengeTimeout, Interval: a.settings.PollInterval}, func(ctx context.Context) (bool, error) {
		still, err := b.Present(ctx, sel.ChallengeMarker)
		return !still, err
	})
	if errors.Is(err, poll.ErrTimeout) {
		return &ChallengeTimeoutError{Timeout: a.settings.ChallengeTimeout, Err: err}
	}
	if err != nil {
		return &AuthenticationError{Reason: "challenge check failed", Err: err}
	}

	a.logger.Info().Msg("Anti-bot challenge passed")
	return nil
}

func (a *Agent) waitFor(ctx context.Context, b Browser, selector string, timeout time.Duration) error {
	return waitFor(ctx, b, selector, poll.Options{Timeout: timeout, Interval: a.settings.PollInterval})
}

// onPortal reports whether loc is on the login URL's host or a subdomain of it.
func (a *Agent) onPortal(loc string) bool {
	want, err := url.Parse(a.settings.LoginURL)
	if err != nil {
		return true
	}
	got, err := url.Parse(loc)
	if err != nil || got.Hostname() == "" {
		return false
	}
	host := strings.TrimPrefix(want.Hostname(), "www.")
	gotHost := strings.TrimPrefix(got.Hostname(), "www.")
	return gotHost == host || strings.HasSuffix(gotHost, "."+host)
}

func waitFor(ctx context.Context, b Browser, selector string, opts poll.Options) error {
	return poll.Until(ctx, opts, func(ctx context.Context) (bool, error) {
		return b.Present(ctx, selector)
	})
}
