package aura

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/aura-bridge/internal/control"
	"github.com/nerrad567/aura-bridge/internal/speaker"
)

// MQTT message types exchanged between the host platform and the bridge.

// NumberCommand asks a number control for a new value.
// Topic: aurabridge/command/{bridge}/{volume|bass}
//
//	{"value": 42}
type NumberCommand struct {
	// Value is a pointer so a missing field can be told apart from zero.
	Value *float64 `json:"value"`
}

// SwitchCommand turns a switch control on or off.
// Topic: aurabridge/command/{bridge}/{eq_mode|mute|power}
//
//	{"state": "on"}
type SwitchCommand struct {
	State string `json:"state"`
}

// On parses the state field. Matching is case-insensitive.
func (c SwitchCommand) On() (bool, error) {
	switch strings.ToLower(strings.TrimSpace(c.State)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("%w: state must be \"on\" or \"off\", got %q", ErrInvalidCommand, c.State)
	}
}

// NumberStateMessage is published when a number control's value changes.
// Topic: aurabridge/state/{bridge}/{control}
// QoS: configured, Retained: Yes
type NumberStateMessage struct {
	control.State
	Timestamp time.Time `json:"timestamp"`
}

// SwitchStateMessage is published when a switch control changes.
// Topic: aurabridge/state/{bridge}/{control}
// QoS: configured, Retained: Yes
type SwitchStateMessage struct {
	control.SwitchState
	Timestamp time.Time `json:"timestamp"`
}

// restoredState is the subset of a retained state message read back at
// startup. Value and On are pointers so a payload for the other control
// kind is not mistaken for zero or off.
type restoredState struct {
	Value *int  `json:"value"`
	On    *bool `json:"on"`
}

// ExternalStateMessage is the state of a mirrored media player as
// published by the host.
// Topic: aurabridge/external/{entity} (configurable)
//
//	{"state": "playing", "volume_level": 0.35}
type ExternalStateMessage struct {
	State       string   `json:"state"`
	VolumeLevel *float64 `json:"volume_level"`
}

// Level converts the message into a mirror update. Unknown or unavailable
// entities, and messages without a volume level, are unavailable.
func (m ExternalStateMessage) Level() control.ExternalLevel {
	switch strings.ToLower(m.State) {
	case "", "unknown", "unavailable":
		return control.ExternalLevel{}
	}
	if m.VolumeLevel == nil {
		return control.ExternalLevel{}
	}
	return control.ExternalLevel{Available: true, Level: *m.VolumeLevel}
}

// parseExternal decodes an external state payload. A payload that is not
// JSON is treated as a bare state string, so "unavailable" works too.
func parseExternal(payload []byte) control.ExternalLevel {
	var msg ExternalStateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ExternalStateMessage{State: strings.TrimSpace(string(payload))}.Level()
	}
	return msg.Level()
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates MQTT or the speaker is unreachable.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: aurabridge/health/{bridge}
// QoS: configured, Retained: Yes
type HealthMessage struct {
	// Bridge is the bridge identifier.
	Bridge string `json:"bridge"`

	// Timestamp is when the health status was generated (UTC).
	Timestamp time.Time `json:"timestamp"`

	Status  HealthStatus `json:"status"`
	Version string       `json:"version"`

	UptimeSeconds int64 `json:"uptime_seconds"`

	// Device describes the speaker as seen by the heartbeat.
	Device *DeviceStatus `json:"device,omitempty"`

	// Statistics contains send counters.
	Statistics *SendStatistics `json:"statistics,omitempty"`

	ControlsManaged int `json:"controls_managed"`

	// Reason explains a degraded or stopping status.
	Reason string `json:"reason,omitempty"`
}

// DeviceStatus describes the speaker endpoint.
type DeviceStatus struct {
	Address string `json:"address"`

	// LastHeartbeat is the outcome of the most recent heart-alive send.
	LastHeartbeat   speaker.Outcome `json:"last_heartbeat,omitempty"`
	LastHeartbeatAt *time.Time      `json:"last_heartbeat_at,omitempty"`
}

// SendStatistics mirrors speaker.Stats for the health message.
type SendStatistics struct {
	Attempts  uint64 `json:"attempts"`
	Delivered uint64 `json:"delivered"`
	NoReply   uint64 `json:"no_reply"`
	Failures  uint64 `json:"failures"`
}

// NewHealthMessage creates a health message from current counters.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats speaker.Stats, controls int, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:        bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Statistics: &SendStatistics{
			Attempts:  stats.Attempts,
			Delivered: stats.Delivered,
			NoReply:   stats.NoReply,
			Failures:  stats.Failures,
		},
		ControlsManaged: controls,
	}
}
