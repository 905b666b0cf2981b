package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/aura-bridge/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds

	applicationName = "aurabridge"

	// tagBridge is attached to every point as a default tag.
	tagBridge = "bridge_id"
)

// Client records bridge telemetry in InfluxDB.
//
// Points go through the batched, non-blocking write API and all of them
// carry the bridge_id tag of the bridge that connected. A zero Client, or
// one that has been closed, drops writes.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	closed  atomic.Bool
	onError atomic.Pointer[func(error)]
}

// Connect opens the telemetry sink for one bridge.
//
// Parameters:
//   - ctx: Bounds the initial ping
//   - cfg: InfluxDB section of config.yaml
//   - bridgeID: Written as the bridge_id tag on every point
//
// Returns:
//   - *Client: Ready for writes
//   - error: ErrDisabled when the section is off, ErrUnreachable when the
//     server does not answer the ping
func Connect(ctx context.Context, cfg config.InfluxDBConfig, bridgeID string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg, bridgeID))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, cfg.URL, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.forwardErrors(c.writeAPI.Errors())
	return c, nil
}

// clientOptions turns the config section into write options. Timestamps
// are written with millisecond precision, which is what attempt timings
// are measured in.
func clientOptions(cfg config.InfluxDBConfig, bridgeID string) *influxdb2.Options {
	batch, flushMs := batchSettings(cfg)
	opts := influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(flushMs).
		SetPrecision(time.Millisecond).
		SetApplicationName(applicationName)
	if bridgeID != "" {
		opts.AddDefaultTag(tagBridge, bridgeID)
	}
	return opts
}

// batchSettings returns the batch size in points and the flush interval in
// milliseconds, defaulting non-positive values to 100 points and 10 seconds.
func batchSettings(cfg config.InfluxDBConfig) (size, flushMs uint) {
	size, flush := uint(defaultBatchSize), uint(defaultFlushInterval)
	if cfg.BatchSize > 0 {
		size = uint(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		flush = uint(cfg.FlushInterval)
	}
	return size, flush * uint(time.Second/time.Millisecond)
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errors.New("server reported unhealthy")
	}
	return nil
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		if fn := c.onError.Load(); fn != nil {
			(*fn)(err)
		}
	}
}

// active reports whether writes are accepted.
func (c *Client) active() bool {
	return c.writeAPI != nil && !c.closed.Load()
}

// SetOnError registers the callback for asynchronous write failures.
func (c *Client) SetOnError(fn func(err error)) {
	if fn == nil {
		c.onError.Store(nil)
		return
	}
	c.onError.Store(&fn)
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.active() {
		return ErrClosed
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(pingCtx, c.client); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return nil
}

// Flush blocks until buffered points are written. No-op once closed.
func (c *Client) Flush() {
	if c.active() {
		c.writeAPI.Flush()
	}
}

// Close flushes pending points and releases the client. Later writes are
// dropped. Safe to call more than once.
func (c *Client) Close() error {
	if c.client == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
