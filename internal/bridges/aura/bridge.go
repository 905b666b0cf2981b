package aura

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/aura-bridge/internal/control"
	"github.com/nerrad567/aura-bridge/internal/infrastructure/config"
	"github.com/nerrad567/aura-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/aura-bridge/internal/speaker"
)

// Control identifiers, used as the last topic level.
const (
	ControlVolume = "volume"
	ControlBass   = "bass"
	ControlEQMode = "eq_mode"
	ControlMute   = "mute"
	ControlPower  = "power"
)

// Change sources reported to the ChangeRecorder.
const (
	SourceAttach = "attach"
	SourceUpdate = "update"
)

const (
	// commandTimeout bounds switch and power commands.
	commandTimeout = 5 * time.Second

	defaultRestoreTimeout = time.Second
)

// Bridge connects the speaker's controls to the MQTT host platform.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Command handlers run on MQTT client goroutines and only call
//     control methods.
type Bridge struct {
	cfg     *config.Config
	mqtt    MQTTClient
	device  Device
	health  *HealthReporter
	changes ChangeRecorder
	topics  mqtt.Topics
	qos     byte

	numbers  map[string]*control.Number
	switches map[string]*control.Switch

	// seen tracks which controls have published their attach snapshot.
	seen   map[string]bool
	seenMu sync.Mutex

	startMu sync.Mutex
	started bool

	// ctx is the bridge lifetime; controls derive their sends from it.
	ctx       context.Context //nolint:containedctx // bridge lifetime, cancelled by Stop
	ctxCancel context.CancelFunc
	stopOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging.
// Compatible with logging.Logger and control.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Device is the speaker as seen by the bridge. *speaker.Client implements it.
type Device interface {
	speaker.Sender
	Stats() speaker.Stats
	Endpoint() speaker.Endpoint
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error

	// WaitRetained returns the first message on topic, normally the
	// retained one, or an error after timeout.
	WaitRetained(ctx context.Context, topic string, timeout time.Duration) ([]byte, error)

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// ChangeRecorder receives every published control value.
// Switches are reported as 1 (on) and 0 (off).
type ChangeRecorder interface {
	RecordControlChange(controlID string, value float64, source string)
}

// BridgeOptions contains configuration for creating a Bridge.
type BridgeOptions struct {
	// Config is the loaded application configuration. Required.
	Config *config.Config

	// MQTT is the host platform transport. Required.
	MQTT MQTTClient

	// Device is the speaker client. Required.
	Device Device

	// Version is reported in health messages.
	Version string

	// Logger is optional.
	Logger Logger

	// Changes is optional.
	Changes ChangeRecorder

	// Scheduler overrides the debounce timers of number controls. Optional.
	Scheduler control.Scheduler
}

// NewBridge creates the bridge and its controls.
//
// Parameters:
//   - opts: Bridge configuration options
//
// Returns:
//   - *Bridge: Ready to start (call Start to attach controls)
//   - error: ErrInvalidConfig for missing collaborators or bad control settings
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("%w: MQTT client is required", ErrInvalidConfig)
	}
	if opts.Device == nil {
		return nil, fmt.Errorf("%w: device client is required", ErrInvalidConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:       opts.Config,
		mqtt:      opts.MQTT,
		device:    opts.Device,
		changes:   opts.Changes,
		qos:       byte(opts.Config.MQTT.QoS),
		numbers:   make(map[string]*control.Number),
		switches:  make(map[string]*control.Switch),
		seen:      make(map[string]bool),
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    opts.Logger,
	}

	if err := b.buildControls(opts); err != nil {
		cancel()
		return nil, err
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:          opts.Config.Bridge.ID,
		Version:           opts.Version,
		Interval:          opts.Config.GetHealthInterval(),
		QoS:               b.qos,
		Publisher:         opts.MQTT,
		Device:            opts.Device,
		Zone:              opts.Config.Device.Zone,
		Heartbeat:         opts.Config.Heartbeat.Enabled,
		HeartbeatInterval: opts.Config.Heartbeat.Interval,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}
	b.health.SetControlCount(len(b.numbers) + len(b.switches))

	return b, nil
}

func (b *Bridge) buildControls(opts BridgeOptions) error {
	dev := opts.Config.Device
	zone := dev.Zone

	var numberOpts []control.NumberOption
	if opts.Logger != nil {
		numberOpts = append(numberOpts, control.WithLogger(opts.Logger))
	}
	if opts.Scheduler != nil {
		numberOpts = append(numberOpts, control.WithNumberScheduler(opts.Scheduler))
	}

	numbers := []struct {
		cfg    control.NumberConfig
		action string
	}{
		{
			cfg: control.NumberConfig{
				ID:           ControlVolume,
				Name:         dev.Name + " Volume",
				Initial:      opts.Config.Controls.InitialVolume,
				Debounce:     opts.Config.Controls.Debounce,
				MirrorEntity: mirrorEntity(opts.Config.Mirror),
			},
			action: speaker.ActionSetVolume,
		},
		{
			cfg: control.NumberConfig{
				ID:       ControlBass,
				Name:     dev.Name + " Bass",
				Initial:  opts.Config.Controls.InitialBass,
				Debounce: opts.Config.Controls.Debounce,
			},
			action: speaker.ActionSetBass,
		},
	}
	for _, nc := range numbers {
		action, _ := speaker.LookupAction(nc.action)
		nc.cfg.Min, nc.cfg.Max, nc.cfg.Step = action.Min, action.Max, 1

		n, err := control.NewNumber(nc.cfg, control.NumberAction(b.device, nc.action, zone), numberOpts...)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		b.numbers[nc.cfg.ID] = n
	}

	var controlLogger control.Logger
	if opts.Logger != nil {
		controlLogger = opts.Logger
	}

	eq, err := control.NewSwitch(control.SwitchConfig{ID: ControlEQMode, Name: dev.Name + " EQ Mode"},
		control.SymbolSwitch(b.device, speaker.ActionSetEQMode, zone), controlLogger)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	b.switches[ControlEQMode] = eq

	mute, err := control.NewSwitch(control.SwitchConfig{ID: ControlMute, Name: dev.Name + " Mute"},
		control.ActionPairSwitch(b.device, speaker.ActionMuteOn, speaker.ActionMuteOff, zone), controlLogger)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	b.switches[ControlMute] = mute

	return nil
}

// Start attaches every control and begins processing commands.
//
// Controls attach concurrently; each waits up to the restore timeout for
// its retained state. Calling Start on a running bridge is a no-op.
//
// Parameters:
//   - ctx: Bounds the startup only; the bridge runs until Stop
//
// Returns:
//   - error: If a control cannot attach or the command subscription fails
func (b *Bridge) Start(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	if b.started {
		return nil
	}
	if err := b.ctx.Err(); err != nil {
		return fmt.Errorf("bridge stopped: %w", err)
	}

	b.logInfo("starting Aura bridge",
		"bridge_id", b.cfg.Bridge.ID,
		"device", b.device.Endpoint().Address(),
		"controls", len(b.numbers)+len(b.switches))

	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	// Controls keep the bridge context; ctx only limits how long we wait.
	var g errgroup.Group
	host := control.Host{Publisher: b, Restorer: b, Feed: b}
	for _, n := range b.numbers {
		n := n
		g.Go(func() error { return n.Attach(b.ctx, host) })
	}
	for _, s := range b.switches {
		s := s
		g.Go(func() error { return s.Attach(b.ctx, host) })
	}

	attached := make(chan error, 1)
	go func() { attached <- g.Wait() }()

	select {
	case err := <-attached:
		if err != nil {
			b.detachAll()
			return fmt.Errorf("attaching controls: %w", err)
		}
	case <-ctx.Done():
		b.ctxCancel()
		<-attached
		b.detachAll()
		return fmt.Errorf("attaching controls: %w", ctx.Err())
	}

	if err := b.mqtt.Subscribe(b.topics.AllCommands(b.cfg.Bridge.ID), b.qos, b.handleCommand); err != nil {
		b.detachAll()
		return fmt.Errorf("subscribing to commands: %w", err)
	}

	b.health.Start(b.ctx)
	b.started = true

	b.logInfo("Aura bridge started", "bridge_id", b.cfg.Bridge.ID)
	return nil
}

// Stop detaches all controls, publishes a final health status and
// cancels in-flight sends. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.logInfo("stopping Aura bridge")

		b.startMu.Lock()
		started := b.started
		b.started = false
		b.startMu.Unlock()

		if started {
			if err := b.mqtt.Unsubscribe(b.topics.AllCommands(b.cfg.Bridge.ID)); err != nil {
				b.logDebug("command unsubscribe failed", "error", err)
			}
		}

		b.detachAll()
		b.ctxCancel()
		b.health.Stop()

		b.logInfo("Aura bridge stopped")
	})
}

func (b *Bridge) detachAll() {
	for _, n := range b.numbers {
		n.Detach()
	}
	for _, s := range b.switches {
		s.Detach()
	}
}

// =============================================================================
// Commands
// =============================================================================

// handleCommand routes a command message to the addressed control.
func (b *Bridge) handleCommand(topic string, payload []byte) {
	controlID := b.topics.ControlFromTopic(topic)
	if controlID == "" {
		b.logWarn("ignoring command on malformed topic", "topic", topic)
		return
	}

	if err := b.Command(controlID, payload); err != nil {
		// The speaker client has already logged the failed attempt.
		if IsTransportError(err) {
			b.logDebug("command not delivered", "control", controlID, "error", err)
			return
		}
		b.logWarn("command failed",
			"control", controlID,
			"payload", string(payload),
			"error", err)
	}
}

// Command applies one command payload to a control.
//
// Number controls take {"value": n} and return as soon as the request is
// queued; the send happens after the debounce period. Switches and power
// take {"state": "on"|"off"} and send immediately.
//
// Returns:
//   - error: ErrUnknownControl, ErrInvalidCommand, a control error or a
//     speaker transport error
func (b *Bridge) Command(controlID string, payload []byte) error {
	if n, ok := b.numbers[controlID]; ok {
		var cmd NumberCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		if cmd.Value == nil {
			return fmt.Errorf("%w: missing value", ErrInvalidCommand)
		}
		return n.RequestSet(*cmd.Value)
	}

	var cmd SwitchCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	on, err := cmd.On()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if s, ok := b.switches[controlID]; ok {
		if on {
			return s.TurnOn(ctx)
		}
		return s.TurnOff(ctx)
	}

	if controlID == ControlPower {
		if on {
			return fmt.Errorf("%w: the speaker cannot be powered on remotely", ErrInvalidCommand)
		}
		b.logInfo("powering off speaker")
		return b.device.Send(ctx, speaker.Request{Action: speaker.ActionPowerOff, Zone: b.cfg.Device.Zone})
	}

	return fmt.Errorf("%w: %s", ErrUnknownControl, controlID)
}

// =============================================================================
// control.StatePublisher
// =============================================================================

// PublishNumber publishes a number control's state, retained.
func (b *Bridge) PublishNumber(_ context.Context, s control.State) error {
	msg := NumberStateMessage{State: s, Timestamp: time.Now().UTC()}
	if err := b.publishState(s.ID, msg); err != nil {
		return err
	}
	b.recordChange(s.ID, float64(s.Value))
	return nil
}

// PublishSwitch publishes a switch control's state, retained.
func (b *Bridge) PublishSwitch(_ context.Context, s control.SwitchState) error {
	msg := SwitchStateMessage{SwitchState: s, Timestamp: time.Now().UTC()}
	if err := b.publishState(s.ID, msg); err != nil {
		return err
	}
	value := 0.0
	if s.On {
		value = 1
	}
	b.recordChange(s.ID, value)
	return nil
}

func (b *Bridge) publishState(controlID string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling %s state: %w", controlID, err)
	}
	return b.mqtt.Publish(b.topics.State(b.cfg.Bridge.ID, controlID), payload, b.qos, true)
}

func (b *Bridge) recordChange(controlID string, value float64) {
	if b.changes == nil {
		return
	}

	b.seenMu.Lock()
	source := SourceUpdate
	if !b.seen[controlID] {
		source = SourceAttach
		b.seen[controlID] = true
	}
	b.seenMu.Unlock()

	b.changes.RecordControlChange(controlID, value, source)
}

// =============================================================================
// control.Restorer
// =============================================================================

// RestoreNumber reads the control's retained state message.
func (b *Bridge) RestoreNumber(ctx context.Context, id string) (int, bool) {
	st, ok := b.restore(ctx, id)
	if !ok || st.Value == nil {
		return 0, false
	}
	return *st.Value, true
}

// RestoreSwitch reads the control's retained state message.
func (b *Bridge) RestoreSwitch(ctx context.Context, id string) (bool, bool) {
	st, ok := b.restore(ctx, id)
	if !ok || st.On == nil {
		return false, false
	}
	return *st.On, true
}

func (b *Bridge) restore(ctx context.Context, id string) (restoredState, bool) {
	timeout := b.cfg.Bridge.RestoreTimeout
	if timeout <= 0 {
		timeout = defaultRestoreTimeout
	}

	payload, err := b.mqtt.WaitRetained(ctx, b.topics.State(b.cfg.Bridge.ID, id), timeout)
	if err != nil {
		b.logDebug("no retained state to restore", "control", id, "error", err)
		return restoredState{}, false
	}

	var st restoredState
	if err := json.Unmarshal(payload, &st); err != nil {
		b.logWarn("ignoring malformed retained state", "control", id, "error", err)
		return restoredState{}, false
	}
	return st, true
}

// =============================================================================
// control.ExternalFeed
// =============================================================================

// Subscribe delivers the external entity's level reports to fn.
func (b *Bridge) Subscribe(entityID string, fn func(control.ExternalLevel)) (func(), error) {
	topic := b.externalTopic(entityID)

	err := b.mqtt.Subscribe(topic, b.qos, func(_ string, payload []byte) {
		fn(parseExternal(payload))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := b.mqtt.Unsubscribe(topic); err != nil {
				b.logDebug("external unsubscribe failed", "topic", topic, "error", err)
			}
		})
	}, nil
}

// mirrorEntity returns the entity volume follows, or "" when mirroring is off.
func mirrorEntity(m config.MirrorConfig) string {
	if !m.Enabled() {
		return ""
	}
	return m.EntityID
}

func (b *Bridge) externalTopic(entityID string) string {
	if b.cfg.Mirror.Topic != "" {
		return b.cfg.Mirror.Topic
	}
	return b.topics.External(entityID)
}

// =============================================================================
// Accessors
// =============================================================================

// Number returns a number control by ID.
func (b *Bridge) Number(id string) (*control.Number, bool) {
	n, ok := b.numbers[id]
	return n, ok
}

// Switch returns a switch control by ID.
func (b *Bridge) Switch(id string) (*control.Switch, bool) {
	s, ok := b.switches[id]
	return s, ok
}

// ControlIDs returns the IDs of all stateful controls, sorted.
func (b *Bridge) ControlIDs() []string {
	ids := make([]string, 0, len(b.numbers)+len(b.switches))
	for id := range b.numbers {
		ids = append(ids, id)
	}
	for id := range b.switches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Health returns the bridge's health reporter.
func (b *Bridge) Health() *HealthReporter {
	return b.health
}

// IsRunning reports whether Start has completed and Stop has not been called.
func (b *Bridge) IsRunning() bool {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	return b.started
}

// IsTransportError reports whether err came from a failed speaker delivery.
func IsTransportError(err error) bool {
	return errors.Is(err, speaker.ErrTransportFailure)
}

// SetLogger sets the logger for the bridge and its health reporter.
// Controls keep the logger given at construction.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.health.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
