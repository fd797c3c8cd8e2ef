package qbittorrent

import (
	"errors"
	"fmt"
)

// Common errors returned by the qBittorrent client.
var (
	// ErrPortMismatch is returned when the port read back differs from the one set.
	ErrPortMismatch = errors.New("listening port not applied")
)

// APIError wraps a failed Web API operation.
type APIError struct {
	Op  string
	Err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("qBittorrent %s failed: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}
