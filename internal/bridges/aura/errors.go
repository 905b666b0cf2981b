package aura

import "errors"

// Domain errors for the Aura bridge package.
var (
	// ErrInvalidConfig is returned by NewBridge for missing collaborators
	// or unusable settings.
	ErrInvalidConfig = errors.New("aura: invalid bridge configuration")

	// ErrUnknownControl is returned for commands addressed to a control
	// the bridge does not own.
	ErrUnknownControl = errors.New("aura: unknown control")

	// ErrInvalidCommand is returned when a command payload cannot be
	// parsed or does not fit the addressed control.
	ErrInvalidCommand = errors.New("aura: invalid command")

	// ErrNotStarted is returned when an operation needs a running bridge.
	ErrNotStarted = errors.New("aura: bridge not started")
)
