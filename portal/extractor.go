package portal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/poll"
)

// Valid range for a forwarded port.
const (
	MinPort = 1024
	MaxPort = 65535
)

const deletePortLabel = "Delete Port"

// PortAssignment is a port obtained from the portal.
type PortAssignment struct {
	Port int
	// Previous is the port displayed before the request, 0 when none was.
	Previous   int
	ObtainedAt time.Time
}

// Unchanged reports whether the provider handed back the previous port.
func (p PortAssignment) Unchanged() bool {
	return p.Previous != 0 && p.Previous == p.Port
}

// Extractor requests a new ephemeral port on an authenticated session.
type Extractor struct {
	settings Settings
	logger   zerolog.Logger
	now      func() time.Time
}

// NewExtractor creates a new Extractor
func NewExtractor(settings Settings, logger zerolog.Logger) *Extractor {
	return &Extractor{
		settings: settings.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// RequestNewPort releases the current port if one is held, requests a new
// matching port and returns it. No value is returned unless it parsed and
// passed range validation.
func (e *Extractor) RequestNewPort(ctx context.Context, s *Session) (PortAssignment, error) {
	b, err := s.page()
	if err != nil {
		return PortAssignment{}, &ExtractionError{Reason: "no browser", Err: err}
	}
	sel := e.settings.Selectors
	wait := poll.Options{Timeout: e.settings.ElementTimeout, Interval: e.settings.PollInterval}

	e.logger.Info().Str("url", e.settings.PortURL).Msg("Navigating to ephemeral port page")
	if err := b.Navigate(ctx, e.settings.PortURL); err != nil {
		return PortAssignment{}, &ExtractionError{Reason: "port page unreachable", Err: err}
	}

	if err := waitFor(ctx, b, sel.PortContainer, wait); err != nil {
		return PortAssignment{}, &ExtractionError{Reason: "port management section not found", Err: err}
	}

	previousText, err := optionalText(ctx, b, sel.PortValue)
	if err != nil {
		return PortAssignment{}, &ExtractionError{Reason: "could not read current port", Err: err}
	}
	previous, _ := ParsePort(previousText)

	buttonText, err := optionalText(ctx, b, sel.PortButton)
	if err != nil {
		return PortAssignment{}, &ExtractionError{Reason: "could not read port control", Err: err}
	}
	e.logger.Debug().Str("button", buttonText).Int("current_port", previous).Msg("Port control state")

	deleted := false
	if buttonText == deletePortLabel {
		e.logger.Info().Int("port", previous).Msg("Deleting existing port")
		if err := b.Click(ctx, sel.PortButton); err != nil {
			return PortAssignment{}, &ExtractionError{Reason: "could not delete existing port", Err: err}
		}
		if err := waitFor(ctx, b, sel.RequestForm, wait); err != nil {
			return PortAssignment{}, &ExtractionError{Reason: "failed to delete existing port", Err: err}
		}
		deleted = true
		e.logger.Info().Msg("Existing port deleted")
	}

	if err := waitFor(ctx, b, sel.RequestButton, wait); err != nil {
		return PortAssignment{}, &ExtractionError{Reason: "request port control absent", Err: err}
	}

	e.logger.Info().Msg("Requesting new ephemeral port")
	if err := b.Click(ctx, sel.RequestButton); err != nil {
		return PortAssignment{}, &ExtractionError{Reason: "could not request new port", Err: err}
	}

	var shown string
	err = poll.Until(ctx, wait, func(ctx context.Context) (bool, error) {
		text, err := optionalText(ctx, b, sel.PortValue)
		if err != nil {
			return false, err
		}
		if text == "" {
			return false, nil
		}
		if !deleted && previousText != "" && text == previousText {
			return false, nil
		}
		shown = text
		return true, nil
	})
	if err != nil {
		return PortAssignment{}, &ExtractionError{Reason: "new port did not appear", Err: err}
	}

	port, err := ParsePort(shown)
	if err != nil {
		return PortAssignment{}, &ExtractionError{Reason: "invalid port received", Text: shown, Err: err}
	}

	assignment := PortAssignment{Port: port, Previous: previous, ObtainedAt: e.now()}
	if assignment.Unchanged() {
		e.logger.Warn().Int("port", port).Msg("Provider assigned the same port as before")
	}

	e.logger.Info().Int("port", port).Msg("Successfully acquired port")
	return assignment, nil
}

// ParsePort converts displayed port text to a validated port number.
func ParsePort(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, errors.New("empty port value")
	}

	port, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("port %q is not numeric", text)
	}
	if port < MinPort || port > MaxPort {
		return 0, fmt.Errorf("port %d outside %d-%d", port, MinPort, MaxPort)
	}
	return port, nil
}

// optionalText returns the trimmed text of selector, or "" when absent.
func optionalText(ctx context.Context, b Browser, selector string) (string, error) {
	text, err := b.Text(ctx, selector)
	if errors.Is(err, ErrElementNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
