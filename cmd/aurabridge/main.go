// Aura Bridge - HK Aura speaker control for the MQTT host platform.
//
// This is the main entry point. It loads configuration, connects to the
// MQTT broker (and optionally InfluxDB), builds the speaker client and runs
// the bridge until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/aura-bridge/internal/bridges/aura"
	"github.com/nerrad567/aura-bridge/internal/infrastructure/config"
	"github.com/nerrad567/aura-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/aura-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/aura-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/aura-bridge/internal/speaker"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Aura Bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version).With("bridge_id", cfg.Bridge.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB, cfg.Bridge.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	var metrics *metricsRecorder
	if influxClient != nil {
		metrics = &metricsRecorder{influx: influxClient}
	}

	speakerClient, err := newSpeakerClient(cfg.Device, log, metrics)
	if err != nil {
		return fmt.Errorf("creating speaker client: %w", err)
	}
	log.Info("speaker client ready",
		"address", speakerClient.Endpoint().Address(),
		"zone", cfg.Device.Zone,
		"framing", cfg.Device.Framing,
	)

	bridge, err := startBridge(ctx, cfg, mqttClient, speakerClient, metrics, log)
	if err != nil {
		return fmt.Errorf("starting Aura bridge: %w", err)
	}
	defer func() {
		log.Info("stopping Aura bridge")
		bridge.Stop()
	}()

	if err := healthCheck(ctx, bridge, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Aura bridge
	// 2. InfluxDB (if enabled)
	// 3. MQTT

	log.Info("Aura Bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AURABRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AURABRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newSpeakerClient builds the protocol client from device settings.
// recorder may be nil.
func newSpeakerClient(dev config.DeviceConfig, log *logging.Logger, recorder *metricsRecorder) (*speaker.Client, error) {
	framing, err := speaker.ParseFraming(dev.Framing)
	if err != nil {
		return nil, err
	}

	opts := []speaker.Option{
		speaker.WithFraming(framing),
		speaker.WithConnectTimeout(dev.ConnectTimeout),
		speaker.WithReplyTimeout(dev.ReplyTimeout),
		speaker.WithLogger(log.With("component", "speaker")),
	}

	if dev.TemplateFile != "" {
		tmpl, err := speaker.LoadTemplateFile(dev.TemplateFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, speaker.WithTemplate(tmpl))
	}

	if recorder != nil {
		opts = append(opts, speaker.WithRecorder(recorder))
	}

	return speaker.NewClient(speaker.Endpoint{Host: dev.Host, Port: dev.Port}, opts...)
}

// startBridge creates and starts the Aura bridge.
//
// Parameters:
//   - ctx: Bounds startup (control restore)
//   - cfg: Application configuration
//   - mqttClient: Connected MQTT client
//   - device: Speaker client
//   - metrics: Optional InfluxDB recorder (may be nil)
//   - log: Logger instance
//
// Returns:
//   - *aura.Bridge: Running bridge
//   - error: If creation or startup fails
func startBridge(ctx context.Context, cfg *config.Config, mqttClient *mqtt.Client, device *speaker.Client, metrics *metricsRecorder, log *logging.Logger) (*aura.Bridge, error) {
	opts := aura.BridgeOptions{
		Config:  cfg,
		MQTT:    &mqttBridgeAdapter{client: mqttClient},
		Device:  device,
		Version: version,
		Logger:  log.With("component", "aura"),
	}
	if metrics != nil {
		opts.Changes = metrics
	}

	bridge, err := aura.NewBridge(opts)
	if err != nil {
		return nil, err
	}

	if err := bridge.Start(ctx); err != nil {
		return nil, err
	}

	log.Info("Aura bridge started",
		"controls", bridge.ControlIDs(),
		"mirror", cfg.Mirror.Enabled(),
		"mirror_entity", cfg.Mirror.EntityID,
		"heartbeat", cfg.Heartbeat.Enabled,
	)
	return bridge, nil
}

// healthCheck verifies the bridge is running and all infrastructure
// connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - bridge: Started Aura bridge
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, bridge *aura.Bridge, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if !bridge.IsRunning() {
		return errors.New("aura bridge not running")
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// The speaker is not checked here: it may be in standby, and the
	// bridge heartbeat reports its reachability on the health topic.
	return nil
}

// =============================================================================
// Adapters
// =============================================================================

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
// infrastructure handlers return an error, bridge handlers do not.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements aura.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements aura.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements aura.MQTTClient.
func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

// WaitRetained implements aura.MQTTClient.
func (a *mqttBridgeAdapter) WaitRetained(ctx context.Context, topic string, timeout time.Duration) ([]byte, error) {
	return a.client.WaitRetained(ctx, topic, timeout)
}

// IsConnected implements aura.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// metricsRecorder writes speaker attempts and control changes to InfluxDB.
// It implements speaker.Recorder and aura.ChangeRecorder.
type metricsRecorder struct {
	influx *influxdb.Client
}

// RecordAttempt implements speaker.Recorder.
func (m *metricsRecorder) RecordAttempt(a speaker.Attempt) {
	m.influx.WriteCommandAttempt(commandAttempt(a))
}

// RecordControlChange implements aura.ChangeRecorder.
func (m *metricsRecorder) RecordControlChange(controlID string, value float64, source string) {
	m.influx.WriteControlChange(influxdb.ControlChange{
		ControlID: controlID,
		Value:     value,
		Source:    source,
		At:        time.Now(),
	})
}

func commandAttempt(a speaker.Attempt) influxdb.CommandAttempt {
	return influxdb.CommandAttempt{
		Action:    a.Action,
		Zone:      a.Zone,
		Outcome:   string(a.Outcome),
		Success:   a.Outcome.Success(),
		Status:    a.Status,
		Duration:  a.Duration,
		RequestID: a.RequestID,
		At:        a.At,
	}
}
