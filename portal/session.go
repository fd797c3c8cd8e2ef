package portal

import (
	"context"
	"sync"
)

// Session is a live browser owned by one sync run. Close must be called on
// every path once the session is no longer needed.
type Session struct {
	browser Browser

	mu     sync.Mutex
	closed bool
}

// NewSession wraps an already running browser.
func NewSession(b Browser) *Session {
	return &Session{browser: b}
}

// Open reports whether the browser is still running.
func (s *Session) Open() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Screenshot captures the current page.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if !s.Open() {
		return nil, ErrSessionClosed
	}
	return s.browser.Screenshot(ctx)
}

// Close terminates the browser. Subsequent calls are no-ops.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.browser.Close()
}

func (s *Session) page() (Browser, error) {
	if !s.Open() {
		return nil, ErrSessionClosed
	}
	return s.browser, nil
}
