package tunnel

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start when the entity already owns a
	// runtime handle (or another Start for it is in flight).
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning is returned by Stop when the entity has no runtime handle.
	ErrNotRunning = errors.New("not running")
)

// ConfigError reports network parameters that cannot be used to start a
// tunnel. It is never retried.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// StartError wraps a failure of the tunnel capability while establishing a
// listener or completing the client handshake.
type StartError struct {
	Kind Kind
	ID   int64
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s %d: %v", e.Kind, e.ID, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

func alreadyRunning(kind Kind, id int64) error {
	return fmt.Errorf("%s %d %w", kind, id, ErrAlreadyRunning)
}

func notRunning(kind Kind, id int64) error {
	return fmt.Errorf("%s %d %w", kind, id, ErrNotRunning)
}
