package mqtt

import (
	"context"
	"fmt"
	"time"
)

// Subscribe registers a handler for messages on the specified topic.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "aurabridge/command/living-room/+"
//   - # (multi-level): "aurabridge/#"
//
// The subscription is tracked and restored automatically after a reconnect.
// Subscribing again to the same topic replaces the handler.
//
// Parameters:
//   - topic: The topic pattern to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//   - handler: Callback invoked for each message
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or ErrSubscribeFailed
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.forget(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe removes a subscription. Messages already in flight may
// still be delivered to the old handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	if !c.IsConnected() {
		// Nothing to tell the broker; make sure a reconnect does not restore it.
		c.forget(topic)
		return ErrNotConnected
	}

	c.forget(topic)

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// WaitRetained subscribes to topic, waits for the first message (normally
// the broker's retained copy) and unsubscribes again.
//
// Parameters:
//   - ctx: Cancels the wait
//   - topic: Exact topic to read
//   - timeout: How long to wait when nothing is retained
//
// Returns:
//   - []byte: The payload
//   - error: ErrNoRetained when no message arrived in time, or a subscribe error
func (c *Client) WaitRetained(ctx context.Context, topic string, timeout time.Duration) ([]byte, error) {
	received := make(chan []byte, 1)

	err := c.Subscribe(topic, byte(c.cfg.QoS), func(_ string, payload []byte) error {
		select {
		case received <- append([]byte(nil), payload...):
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer c.Unsubscribe(topic) //nolint:errcheck // best-effort cleanup

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-received:
		return payload, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no retained message on %s", ErrNoRetained, topic)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}
