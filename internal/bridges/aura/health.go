package aura

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/aura-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/aura-bridge/internal/speaker"
)

const (
	defaultHealthInterval    = 30 * time.Second
	defaultHeartbeatInterval = 60 * time.Second
	heartbeatTimeout         = 5 * time.Second
)

// HealthReporter publishes periodic health status and keeps the speaker's
// heartbeat going.
//
// The heartbeat sends heart-alive at a fixed interval. Its last outcome
// decides between healthy and degraded, so a powered-off speaker shows up
// in the health topic without any control being touched.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time
	interval  time.Duration
	qos       byte
	publisher HealthPublisher
	device    Device
	zone      string

	heartbeat         bool
	heartbeatInterval time.Duration

	controlCount   int
	controlCountMu sync.RWMutex

	lastBeat   speaker.Outcome
	lastBeatAt time.Time
	beatMu     sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the interface for publishing health messages.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	QoS       byte
	Publisher HealthPublisher

	// Device is the speaker client; it supplies counters and receives
	// heartbeats.
	Device Device
	Zone   string

	// Heartbeat enables the heart-alive loop.
	Heartbeat bool

	// HeartbeatInterval defaults to 60 seconds.
	HeartbeatInterval time.Duration
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	beat := cfg.HeartbeatInterval
	if beat <= 0 {
		beat = defaultHeartbeatInterval
	}

	return &HealthReporter{
		bridgeID:          cfg.BridgeID,
		version:           cfg.Version,
		startTime:         time.Now(),
		interval:          interval,
		qos:               cfg.QoS,
		publisher:         cfg.Publisher,
		device:            cfg.Device,
		zone:              cfg.Zone,
		heartbeat:         cfg.Heartbeat && cfg.Device != nil,
		heartbeatInterval: beat,
		done:              make(chan struct{}),
	}
}

// Start begins periodic health reporting and, when enabled, the heartbeat.
// Call Stop to shut down.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)

	if h.heartbeat {
		h.wg.Add(1)
		go h.heartbeatLoop(ctx)
	}
}

// Stop stops both loops and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "bridge stopping")
	})
}

// SetControlCount updates the number of managed controls.
func (h *HealthReporter) SetControlCount(count int) {
	h.controlCountMu.Lock()
	h.controlCount = count
	h.controlCountMu.Unlock()
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// Beat sends one heart-alive and records its outcome.
func (h *HealthReporter) Beat(ctx context.Context) error {
	if h.device == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
	defer cancel()

	err := h.device.Send(ctx, speaker.Request{Action: speaker.ActionHeartAlive, Zone: h.zone})

	outcome := speaker.OutcomeDelivered
	var te *speaker.TransportError
	switch {
	case errors.As(err, &te):
		outcome = te.Kind
	case err != nil:
		outcome = speaker.OutcomeFailed
	}

	h.beatMu.Lock()
	h.lastBeat = outcome
	h.lastBeatAt = time.Now()
	h.beatMu.Unlock()

	return err
}

// LastHeartbeat returns the outcome and time of the last heartbeat.
// The outcome is empty before the first one.
func (h *HealthReporter) LastHeartbeat() (speaker.Outcome, time.Time) {
	h.beatMu.RLock()
	defer h.beatMu.RUnlock()
	return h.lastBeat, h.lastBeatAt
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) heartbeatLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			before, _ := h.LastHeartbeat()
			err := h.Beat(ctx)
			after, _ := h.LastHeartbeat()

			// Republish only on transitions between reachable and not.
			if before.Success() != after.Success() || before == "" {
				if err != nil {
					h.logError("speaker heartbeat failed", err)
				}
				if perr := h.PublishNow(); perr != nil {
					h.logError("failed to publish health", perr)
				}
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	if last, _ := h.LastHeartbeat(); last != "" && !last.Success() {
		return HealthDegraded, "speaker unreachable: " + string(last)
	}

	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	h.controlCountMu.RLock()
	controls := h.controlCount
	h.controlCountMu.RUnlock()

	var stats speaker.Stats
	if h.device != nil {
		stats = h.device.Stats()
	}

	msg := NewHealthMessage(h.bridgeID, h.version, status, stats, controls, h.startTime)
	msg.Reason = reason

	if h.device != nil {
		msg.Device = &DeviceStatus{Address: h.device.Endpoint().Address()}
		if last, at := h.LastHeartbeat(); last != "" {
			msg.Device.LastHeartbeat = last
			msg.Device.LastHeartbeatAt = &at
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return h.publisher.Publish(mqtt.Topics{}.Health(h.bridgeID), payload, h.qos, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
