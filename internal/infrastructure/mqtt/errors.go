package mqtt

import "errors"

// Errors returned by Client. Broker-side failures wrap these with detail.
var (
	// Argument checks, made before touching the broker.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
	ErrInvalidQoS   = errors.New("mqtt: qos must be 0, 1 or 2")

	// Connection state.
	ErrConnectionFailed = errors.New("mqtt: cannot reach broker")
	ErrNotConnected     = errors.New("mqtt: broker connection down")

	// Broker rejected or did not acknowledge in time.
	ErrPublishFailed     = errors.New("mqtt: publish not acknowledged")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe not acknowledged")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe not acknowledged")

	// ErrNoRetained is returned by WaitRetained when nothing arrives before
	// the timeout; the topic has no retained state.
	ErrNoRetained = errors.New("mqtt: no retained message")
)
