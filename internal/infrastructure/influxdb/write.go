package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementCommand = "speaker_command"
	measurementControl = "control_state"
)

// CommandAttempt is one speaker send attempt as stored in InfluxDB.
type CommandAttempt struct {
	Action    string
	Zone      string
	Outcome   string
	Success   bool
	Status    int
	Duration  time.Duration
	RequestID string
	At        time.Time
}

// ControlChange is one change of a control's displayed value.
type ControlChange struct {
	ControlID string
	Value     float64

	// Source is "attach" for the snapshot published at startup and
	// "update" for every later change.
	Source string
	At     time.Time
}

// WriteCommandAttempt records a speaker send attempt.
//
// Action, zone and outcome are tags; the request id is a field. The write
// is non-blocking.
func (c *Client) WriteCommandAttempt(a CommandAttempt) {
	if !c.active() {
		return
	}
	c.writeAPI.WritePoint(commandAttemptPoint(a))
}

// WriteControlChange records a displayed value change.
func (c *Client) WriteControlChange(ch ControlChange) {
	if !c.active() {
		return
	}
	c.writeAPI.WritePoint(controlChangePoint(ch))
}

func commandAttemptPoint(a CommandAttempt) *write.Point {
	at := a.At
	if at.IsZero() {
		at = time.Now()
	}

	fields := map[string]interface{}{
		"success":     a.Success,
		"duration_ms": float64(a.Duration) / float64(time.Millisecond),
		"request_id":  a.RequestID,
	}
	if a.Status != 0 {
		fields["http_status"] = a.Status
	}

	return write.NewPoint(
		measurementCommand,
		map[string]string{
			"action":  a.Action,
			"zone":    a.Zone,
			"outcome": a.Outcome,
		},
		fields,
		at,
	)
}

func controlChangePoint(ch ControlChange) *write.Point {
	at := ch.At
	if at.IsZero() {
		at = time.Now()
	}

	return write.NewPoint(
		measurementControl,
		map[string]string{
			"control_id": ch.ControlID,
			"source":     ch.Source,
		},
		map[string]interface{}{
			"value": ch.Value,
		},
		at,
	)
}
