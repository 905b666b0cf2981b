package influxdb

import (
	"testing"
	"time"

	"github.com/nerrad567/aura-bridge/internal/infrastructure/config"
)

func TestCommandAttemptPoint(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := commandAttemptPoint(CommandAttempt{
		Action:    "set_bass_level",
		Zone:      "Main Zone",
		Outcome:   "timeout",
		Success:   false,
		Duration:  1500 * time.Millisecond,
		RequestID: "abc",
		At:        at,
	})

	if p.Name() != measurementCommand {
		t.Errorf("Name() = %q, want %q", p.Name(), measurementCommand)
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["action"] != "set_bass_level" || tags["outcome"] != "timeout" {
		t.Errorf("tags = %v", tags)
	}
	if _, ok := tags[tagBridge]; ok {
		t.Error("bridge_id belongs in the default tags, not on each point")
	}
	if _, ok := tags["request_id"]; ok {
		t.Error("request_id must be a field, not a tag")
	}

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["duration_ms"] != 1500.0 {
		t.Errorf("duration_ms = %v, want 1500", fields["duration_ms"])
	}
	if fields["success"] != false {
		t.Errorf("success = %v, want false", fields["success"])
	}
	if _, ok := fields["http_status"]; ok {
		t.Error("http_status written without a reply")
	}
}

func TestControlChangePoint(t *testing.T) {
	p := controlChangePoint(ControlChange{ControlID: "volume", Value: 35, Source: "update"})

	if p.Name() != measurementControl {
		t.Errorf("Name() = %q", p.Name())
	}
	if p.Time().IsZero() {
		t.Error("zero time not replaced with now")
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["control_id"] != "volume" || tags["source"] != "update" {
		t.Errorf("tags = %v", tags)
	}
}

func TestBatchSettings(t *testing.T) {
	tests := []struct {
		name        string
		batch       int
		flush       int
		wantSize    uint
		wantFlushMs uint
	}{
		{name: "configured", batch: 50, flush: 2, wantSize: 50, wantFlushMs: 2000},
		{name: "zero uses defaults", wantSize: defaultBatchSize, wantFlushMs: defaultFlushInterval * 1000},
		{name: "negative uses defaults", batch: -5, flush: -1, wantSize: defaultBatchSize, wantFlushMs: defaultFlushInterval * 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, flushMs := batchSettings(config.InfluxDBConfig{BatchSize: tt.batch, FlushInterval: tt.flush})
			if size != tt.wantSize || flushMs != tt.wantFlushMs {
				t.Errorf("batchSettings() = %d, %d, want %d, %d", size, flushMs, tt.wantSize, tt.wantFlushMs)
			}
		})
	}
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name     string
		bridgeID string
		wantTags map[string]string
	}{
		{name: "bridge id becomes a default tag", bridgeID: "living-room", wantTags: map[string]string{tagBridge: "living-room"}},
		{name: "empty bridge id adds no tag", wantTags: map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := clientOptions(config.InfluxDBConfig{BatchSize: 25, FlushInterval: 3}, tt.bridgeID)

			tags := opts.WriteOptions().DefaultTags()
			if len(tags) != len(tt.wantTags) {
				t.Fatalf("DefaultTags() = %v, want %v", tags, tt.wantTags)
			}
			for k, v := range tt.wantTags {
				if tags[k] != v {
					t.Errorf("DefaultTags()[%q] = %q, want %q", k, tags[k], v)
				}
			}
			if opts.BatchSize() != 25 || opts.FlushInterval() != 3000 {
				t.Errorf("batch = %d, flush = %d, want 25, 3000", opts.BatchSize(), opts.FlushInterval())
			}
			if opts.Precision() != time.Millisecond {
				t.Errorf("Precision() = %v, want 1ms", opts.Precision())
			}
			if opts.ApplicationName() != applicationName {
				t.Errorf("ApplicationName() = %q", opts.ApplicationName())
			}
		})
	}
}
