package aura

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/aura-bridge/internal/control"
	"github.com/nerrad567/aura-bridge/internal/infrastructure/config"
	"github.com/nerrad567/aura-bridge/internal/speaker"
)

// =============================================================================
// MQTT
// =============================================================================

// MockMQTTClient implements MQTTClient for testing. Retained publishes are
// kept and served by WaitRetained, like a broker would.
type MockMQTTClient struct {
	mu           sync.Mutex
	published    []mockPublish
	retained     map[string][]byte
	handlers     map[string]func(topic string, payload []byte)
	unsubscribed []string
	connected    bool
	subscribeErr error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		retained:  make(map[string][]byte),
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	if retained {
		m.retained[topic] = payload
	}
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	m.unsubscribed = append(m.unsubscribed, topic)
	return nil
}

func (m *MockMQTTClient) WaitRetained(_ context.Context, topic string, _ time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.retained[topic]; ok {
		return p, nil
	}
	return nil, errors.New("timeout")
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetRetained(topic, payload string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retained[topic] = []byte(payload)
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// PublishedOn returns the payloads published on topic, oldest first.
func (m *MockMQTTClient) PublishedOn(topic string) [][]byte {
	var out [][]byte
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p.Payload)
		}
	}
	return out
}

func (m *MockMQTTClient) HasSubscription(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[topic]
	return ok
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// SimulateMessage delivers a message to every handler whose pattern
// matches topic. Only the single-level wildcard is supported.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) int {
	m.mu.Lock()
	var matched []func(string, []byte)
	for pattern, h := range m.handlers {
		if topicMatches(pattern, topic) {
			matched = append(matched, h)
		}
	}
	m.mu.Unlock()

	for _, h := range matched {
		h(topic, payload)
	}
	return len(matched)
}

func topicMatches(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	if len(pp) != len(tp) {
		return false
	}
	for i := range pp {
		if pp[i] != "+" && pp[i] != tp[i] {
			return false
		}
	}
	return true
}

// =============================================================================
// Speaker
// =============================================================================

type mockDevice struct {
	mu       sync.Mutex
	requests []speaker.Request
	err      error
	stats    speaker.Stats
}

func (d *mockDevice) Send(_ context.Context, req speaker.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	d.stats.Attempts++
	if d.err != nil {
		d.stats.Failures++
		return d.err
	}
	d.stats.Delivered++
	return nil
}

func (d *mockDevice) Stats() speaker.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *mockDevice) Endpoint() speaker.Endpoint {
	return speaker.Endpoint{Host: "192.168.1.50", Port: speaker.DefaultPort}
}

func (d *mockDevice) sent() []speaker.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]speaker.Request(nil), d.requests...)
}

func (d *mockDevice) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// =============================================================================
// Debounce scheduler
// =============================================================================

type manualTimer struct {
	mu      *sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// manualScheduler fires pending timers only when Flush is called.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) control.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{mu: &s.mu, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) Flush() {
	s.mu.Lock()
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// =============================================================================
// Recorders
// =============================================================================

type recordedChange struct {
	control string
	value   float64
	source  string
}

type mockChanges struct {
	mu      sync.Mutex
	changes []recordedChange
}

func (c *mockChanges) RecordControlChange(controlID string, value float64, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, recordedChange{controlID, value, source})
}

func (c *mockChanges) get() []recordedChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recordedChange(nil), c.changes...)
}

// =============================================================================
// Fixtures
// =============================================================================

func createTestConfig() *config.Config {
	return &config.Config{
		Bridge: config.BridgeConfig{
			ID:             "test",
			HealthInterval: 30,
			RestoreTimeout: 10 * time.Millisecond,
		},
		Device: config.DeviceConfig{
			Host: "192.168.1.50",
			Port: 10025,
			Name: "HK Aura",
			Zone: "Main Zone",
		},
		Controls: config.ControlsConfig{
			Debounce:      500 * time.Millisecond,
			InitialVolume: 20,
			InitialBass:   20,
		},
		MQTT: config.MQTTConfig{QoS: 1},
	}
}
