// Package control implements the stateful speaker controls exposed to the
// host platform: debounced number controls (volume, bass) and immediate
// switches (EQ mode, mute).
//
// A Number never sends on every request. RequestSet records the value and
// restarts a quiet period; only the last value requested before the period
// expires is sent. The displayed value changes only after a successful send,
// or when the control mirrors an external level, which never sends.
//
// The host is reached through three small interfaces:
//
//   - StatePublisher: told whenever a displayed value changes
//   - Restorer: asked for the last known value at attach time
//   - ExternalFeed: delivers external levels for mirroring
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Sends of one control are serialized; different controls are independent.
package control
