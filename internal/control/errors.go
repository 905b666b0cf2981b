package control

import "errors"

// Domain errors for the control package.
var (
	// ErrOutOfRange is returned when a requested value is NaN or outside
	// the control's [Min, Max] range.
	ErrOutOfRange = errors.New("control: value out of range")

	// ErrDetached is returned when a control is used before Attach or
	// after Detach.
	ErrDetached = errors.New("control: not attached")

	// ErrInvalidConfig is returned by constructors for unusable settings.
	ErrInvalidConfig = errors.New("control: invalid configuration")
)
