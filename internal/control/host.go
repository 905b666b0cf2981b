package control

import "context"

// StatePublisher is told whenever a control's displayed value changes.
type StatePublisher interface {
	PublishNumber(ctx context.Context, s State) error
	PublishSwitch(ctx context.Context, s SwitchState) error
}

// Restorer supplies the last known value of a control at attach time.
// ok is false when the host has nothing to restore.
type Restorer interface {
	RestoreNumber(ctx context.Context, id string) (value int, ok bool)
	RestoreSwitch(ctx context.Context, id string) (on bool, ok bool)
}

// ExternalLevel is one report from a mirrored entity.
type ExternalLevel struct {
	// Available is false when the entity reports an unknown or
	// unavailable status, or no level at all.
	Available bool

	// Level is the normalized level in [0.0, 1.0].
	Level float64
}

// ExternalFeed delivers level reports for an external entity.
// The returned function removes the subscription.
type ExternalFeed interface {
	Subscribe(entityID string, fn func(ExternalLevel)) (unsubscribe func(), err error)
}

// Host bundles the host collaborators. Restorer and Feed are optional.
type Host struct {
	Publisher StatePublisher
	Restorer  Restorer
	Feed      ExternalFeed
}
