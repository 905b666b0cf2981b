// Package influxdb records bridge telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks.
//
// # Measurements
//
//   - speaker_command: one point per send attempt, tagged by bridge,
//     action, zone and outcome (delivered, no_reply, timeout, refused, ...)
//   - control_state: one point per displayed value change, tagged by
//     control and source (device, mirror, restore)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics are optional
//	}
//	defer client.Close()
//
//	client.WriteCommandAttempt(influxdb.CommandAttempt{
//	    BridgeID: "living-room", Action: "set_system_volume", Outcome: "delivered", Success: true,
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package influxdb
