package system

import (
	"errors"
	"fmt"
)

// Domain errors for command execution. All are recoverable, per-request
// failures: they are reported to the originating caller and never stop the
// tick loop or affect other clients.
var (
	// ErrInvalidCommand indicates an unknown command name.
	ErrInvalidCommand = errors.New("system: unknown command")

	// ErrInvalidArgument indicates an angle or parameter outside its valid range.
	ErrInvalidArgument = errors.New("system: argument out of range")

	// ErrAlreadyRunning indicates startSystem while the system is running.
	ErrAlreadyRunning = errors.New("system: already running")

	// ErrAlreadyStopped indicates stopSystem while the system is stopped.
	ErrAlreadyStopped = errors.New("system: already stopped")

	// ErrNoValidParams indicates a PID update with no usable field.
	ErrNoValidParams = errors.New("system: no valid PID parameters")
)

// CommandError wraps a command failure with the command name.
type CommandError struct {
	Command string
	Wrapped error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Wrapped.Error())
}

func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

func cmdErr(command string, err error) error {
	return &CommandError{Command: command, Wrapped: err}
}
