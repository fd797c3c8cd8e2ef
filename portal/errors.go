package portal

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the portal components.
var (
	// ErrElementNotFound is returned by a Browser when a selector matches nothing.
	ErrElementNotFound = errors.New("element not found")

	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("browser session closed")
)

// AuthenticationError indicates the portal login did not succeed.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("portal authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("portal authentication failed: %s", e.Reason)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// ChallengeTimeoutError indicates an anti-bot challenge was still shown when
// the challenge timeout elapsed.
type ChallengeTimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *ChallengeTimeoutError) Error() string {
	return fmt.Sprintf("anti-bot challenge not cleared within %s", e.Timeout)
}

func (e *ChallengeTimeoutError) Unwrap() error {
	return e.Err
}

// ExtractionError indicates a new port could not be obtained from the page.
type ExtractionError struct {
	Reason string
	// Text is the raw page text involved, when there was one.
	Text string
	Err  error
}

func (e *ExtractionError) Error() string {
	msg := "port extraction failed: " + e.Reason
	if e.Text != "" {
		msg += fmt.Sprintf(" (page text %q)", e.Text)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
