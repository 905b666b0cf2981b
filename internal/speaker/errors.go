package speaker

import (
	"errors"
	"fmt"
)

// Domain errors for the speaker package.
var (
	// ErrUnknownAction is returned when an action is not in the catalog.
	// No network activity happens for such requests.
	ErrUnknownAction = errors.New("speaker: unknown action")

	// ErrInvalidParameter is returned when a parameter does not match the
	// action's shape (missing, unexpected, out of range, unknown symbol).
	ErrInvalidParameter = errors.New("speaker: invalid parameter")

	// ErrInvalidTemplate is returned when a request template cannot be parsed
	// or references slots other than action, zone and para.
	ErrInvalidTemplate = errors.New("speaker: invalid request template")

	// ErrInvalidConfig is returned by NewClient for unusable settings.
	ErrInvalidConfig = errors.New("speaker: invalid client configuration")

	// ErrTransportFailure matches every *TransportError.
	ErrTransportFailure = errors.New("speaker: transport failure")
)

// TransportError describes a failed delivery attempt.
type TransportError struct {
	// Kind is the classified outcome (timeout, refused, reset, resolve, ...).
	Kind Outcome

	// RequestID correlates the error with the attempt log entry.
	RequestID string

	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("speaker: transport failure (%s): %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransportFailure) true for any TransportError.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransportFailure
}
