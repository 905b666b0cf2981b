package control

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// DefaultSendTimeout bounds one debounced send.
const DefaultSendTimeout = 5 * time.Second

// SendFunc delivers a value to the device.
type SendFunc func(ctx context.Context, value int) error

// State is the displayed state of a number control.
type State struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Value     int    `json:"value"`
	Min       int    `json:"min"`
	Max       int    `json:"max"`
	Step      int    `json:"step"`
	Available bool   `json:"available"`
}

// NumberConfig describes a number control.
type NumberConfig struct {
	ID   string
	Name string

	// Min, Max and Step bound the value. Defaults: 0, 100, 1.
	Min  int
	Max  int
	Step int

	// Initial is displayed until a restore or a successful send.
	Initial int

	// Debounce is the quiet period. Default: 500ms.
	Debounce time.Duration

	// SendTimeout bounds each device send. Default: 5s.
	SendTimeout time.Duration

	// MirrorEntity is the external entity whose level this control tracks.
	// Empty disables mirroring.
	MirrorEntity string
}

// Number is a debounced numeric control such as volume or bass.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Sends are serialized by sendMu; state is guarded by mu.
type Number struct {
	cfg       NumberConfig
	send      SendFunc
	logger    Logger
	debouncer *Debouncer[int]

	sendMu sync.Mutex

	mu          sync.RWMutex
	value       int
	attached    bool
	ctx         context.Context //nolint:containedctx // bridge lifetime, set by Attach
	publisher   StatePublisher
	unsubscribe func()
}

// NumberOption configures a Number.
type NumberOption func(*numberOptions)

type numberOptions struct {
	logger    Logger
	scheduler Scheduler
}

// WithLogger sets the logger for a control.
func WithLogger(l Logger) NumberOption {
	return func(o *numberOptions) { o.logger = l }
}

// WithNumberScheduler replaces the debounce timer source.
func WithNumberScheduler(s Scheduler) NumberOption {
	return func(o *numberOptions) { o.scheduler = s }
}

// NewNumber creates a number control.
//
// Parameters:
//   - cfg: Identity, range, debounce and optional mirror entity
//   - send: Called with the settled value after the quiet period
//   - opts: Optional logger and scheduler
//
// Returns:
//   - *Number: Detached control; call Attach before RequestSet
//   - error: ErrInvalidConfig for a missing ID/send func or bad range
func NewNumber(cfg NumberConfig, send SendFunc, opts ...NumberOption) (*Number, error) {
	if cfg.Max == 0 && cfg.Min == 0 {
		cfg.Max = 100
	}
	if cfg.Step <= 0 {
		cfg.Step = 1
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}

	switch {
	case cfg.ID == "":
		return nil, fmt.Errorf("%w: number control requires an id", ErrInvalidConfig)
	case send == nil:
		return nil, fmt.Errorf("%w: number %s requires a send function", ErrInvalidConfig, cfg.ID)
	case cfg.Min >= cfg.Max:
		return nil, fmt.Errorf("%w: number %s range [%d, %d] is empty", ErrInvalidConfig, cfg.ID, cfg.Min, cfg.Max)
	case cfg.Initial < cfg.Min || cfg.Initial > cfg.Max:
		return nil, fmt.Errorf("%w: number %s initial value %d outside [%d, %d]",
			ErrInvalidConfig, cfg.ID, cfg.Initial, cfg.Min, cfg.Max)
	}

	o := numberOptions{logger: noopLogger{}, scheduler: realScheduler{}}
	for _, opt := range opts {
		opt(&o)
	}

	n := &Number{
		cfg:    cfg,
		send:   send,
		logger: o.logger,
		value:  cfg.Initial,
		ctx:    context.Background(),
	}
	n.debouncer = NewDebouncer(cfg.Debounce, n.commit,
		WithScheduler(o.scheduler),
		WithDebounceLogger(o.logger, cfg.ID),
	)

	return n, nil
}

// ID returns the control identifier.
func (n *Number) ID() string {
	return n.cfg.ID
}

// State returns a snapshot of the displayed state.
func (n *Number) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.snapshotLocked()
}

// Pending reports whether a debounced send is scheduled.
func (n *Number) Pending() bool {
	return n.debouncer.Pending()
}

// Attach connects the control to its host.
//
// The last known value is restored when the host has one within range.
// When a mirror entity is configured the control subscribes to it; the
// subscription lives until Detach. The current state is published once.
// Attaching an attached control does nothing.
//
// Parameters:
//   - ctx: Lifetime of the attachment; sends and publishes derive from it
//   - host: Publisher is required, Restorer and Feed are optional
//
// Returns:
//   - error: ErrInvalidConfig without a publisher, ErrDetached when Detach
//     ran before the subscription was in place
func (n *Number) Attach(ctx context.Context, host Host) error {
	if host.Publisher == nil {
		return fmt.Errorf("%w: number %s requires a state publisher", ErrInvalidConfig, n.cfg.ID)
	}

	n.mu.RLock()
	attached := n.attached
	n.mu.RUnlock()
	if attached {
		return nil
	}

	restored, ok := 0, false
	if host.Restorer != nil {
		restored, ok = host.Restorer.RestoreNumber(ctx, n.cfg.ID)
	}

	n.mu.Lock()
	if n.attached {
		n.mu.Unlock()
		return nil
	}
	if ok {
		if restored >= n.cfg.Min && restored <= n.cfg.Max {
			n.value = restored
			n.logger.Debug("restored control value", "control", n.cfg.ID, "value", restored)
		} else {
			n.logger.Warn("ignoring restored value outside range",
				"control", n.cfg.ID, "value", restored, "min", n.cfg.Min, "max", n.cfg.Max)
		}
	}
	n.ctx = ctx
	n.publisher = host.Publisher
	n.attached = true
	n.mu.Unlock()

	if n.cfg.MirrorEntity != "" && host.Feed != nil {
		unsub, err := host.Feed.Subscribe(n.cfg.MirrorEntity, func(ext ExternalLevel) { n.Mirror(ext) })
		if err != nil {
			n.Detach()
			return fmt.Errorf("subscribing %s to %s: %w", n.cfg.ID, n.cfg.MirrorEntity, err)
		}
		n.mu.Lock()
		if !n.attached {
			// Detached while subscribing.
			n.mu.Unlock()
			unsub()
			return ErrDetached
		}
		n.unsubscribe = unsub
		n.mu.Unlock()
		n.logger.Info("mirroring external entity", "control", n.cfg.ID, "entity", n.cfg.MirrorEntity)
	}

	n.publish(n.State())
	return nil
}

// Detach removes the external subscription and drops any pending send.
// Safe to call more than once.
func (n *Number) Detach() {
	n.mu.Lock()
	unsub := n.unsubscribe
	n.unsubscribe = nil
	n.attached = false
	n.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	n.debouncer.Cancel()
}

// RequestSet asks for a new value. The value is truncated onto the step
// grid and sent once the quiet period passes without a newer request.
//
// Returns:
//   - error: ErrOutOfRange for NaN or values outside [Min, Max],
//     ErrDetached before Attach or after Detach
func (n *Number) RequestSet(v float64) error {
	if math.IsNaN(v) || v < float64(n.cfg.Min) || v > float64(n.cfg.Max) {
		return fmt.Errorf("%w: %s value %v outside [%d, %d]", ErrOutOfRange, n.cfg.ID, v, n.cfg.Min, n.cfg.Max)
	}

	n.mu.RLock()
	attached := n.attached
	n.mu.RUnlock()
	if !attached {
		return ErrDetached
	}

	n.debouncer.Request(n.snap(v))
	return nil
}

// Mirror adopts an external level as the displayed value without sending.
// Unavailable reports and reports that map to the current value are
// ignored. It reports whether the displayed value changed.
func (n *Number) Mirror(ext ExternalLevel) bool {
	if !ext.Available || math.IsNaN(ext.Level) {
		return false
	}

	scaled := int(math.Round(ext.Level * float64(n.cfg.Max)))
	scaled = min(max(scaled, n.cfg.Min), n.cfg.Max)

	n.mu.Lock()
	if !n.attached || scaled == n.value {
		n.mu.Unlock()
		return false
	}
	n.value = scaled
	state := n.snapshotLocked()
	n.mu.Unlock()

	n.logger.Debug("mirrored external level", "control", n.cfg.ID, "level", ext.Level, "value", scaled)
	n.publish(state)
	return true
}

// commit sends a settled value and updates the displayed state on success.
func (n *Number) commit(v int) {
	n.sendMu.Lock()
	defer n.sendMu.Unlock()

	n.mu.RLock()
	parent := n.ctx
	attached := n.attached
	n.mu.RUnlock()
	if !attached {
		return
	}

	ctx, cancel := context.WithTimeout(parent, n.cfg.SendTimeout)
	defer cancel()

	if err := n.send(ctx, v); err != nil {
		n.logger.Warn("send failed, keeping displayed value",
			"control", n.cfg.ID, "requested", v, "error", err)
		return
	}

	n.mu.Lock()
	n.value = v
	state := n.snapshotLocked()
	n.mu.Unlock()

	n.publish(state)
}

func (n *Number) publish(s State) {
	n.mu.RLock()
	pub := n.publisher
	ctx := n.ctx
	n.mu.RUnlock()
	if pub == nil {
		return
	}

	if err := pub.PublishNumber(ctx, s); err != nil {
		n.logger.Warn("failed to publish control state", "control", n.cfg.ID, "error", err)
	}
}

// snap truncates v onto the step grid starting at Min.
func (n *Number) snap(v float64) int {
	steps := math.Floor((v - float64(n.cfg.Min)) / float64(n.cfg.Step))
	return min(n.cfg.Min+int(steps)*n.cfg.Step, n.cfg.Max)
}

func (n *Number) snapshotLocked() State {
	return State{
		ID:        n.cfg.ID,
		Name:      n.cfg.Name,
		Value:     n.value,
		Min:       n.cfg.Min,
		Max:       n.cfg.Max,
		Step:      n.cfg.Step,
		Available: n.attached,
	}
}
