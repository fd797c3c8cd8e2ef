package containers

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnhealthy is returned when a container's healthcheck reports unhealthy.
	ErrUnhealthy = errors.New("container is unhealthy")
	// ErrNotRunning is returned when a container stops after being restarted.
	ErrNotRunning = errors.New("container is not running")
)

// RestartError reports the container that failed and the ones restarted
// before it.
type RestartError struct {
	Container string
	Succeeded []string
	Err       error
}

func (e *RestartError) Error() string {
	msg := fmt.Sprintf("container %s failed to restart: %v", e.Container, e.Err)
	if len(e.Succeeded) > 0 {
		msg += fmt.Sprintf(" (restarted: %s)", strings.Join(e.Succeeded, ", "))
	}
	return msg
}

func (e *RestartError) Unwrap() error {
	return e.Err
}
