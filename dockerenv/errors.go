package dockerenv

import (
	"errors"
	"fmt"
)

var (
	// ErrVariableMissing is returned when no line assigns the port variable.
	ErrVariableMissing = errors.New("variable not defined")
	// ErrVariableDuplicate is returned when more than one line assigns it.
	ErrVariableDuplicate = errors.New("variable defined more than once")
)

// ConfigError describes a failure to read or rewrite the env file.
type ConfigError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("docker config %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("docker config %s: %s", e.Path, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
