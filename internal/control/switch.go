package control

import (
	"context"
	"fmt"
	"sync"
)

// SwitchFunc delivers an on/off command to the device.
type SwitchFunc func(ctx context.Context, on bool) error

// SwitchState is the displayed state of a switch control.
type SwitchState struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	On        bool   `json:"on"`
	Available bool   `json:"available"`
}

// SwitchConfig describes a switch control.
type SwitchConfig struct {
	ID      string
	Name    string
	Initial bool
}

// Switch is an on/off control (EQ mode, mute). Commands are sent
// immediately; the displayed state changes only after a successful send.
type Switch struct {
	cfg    SwitchConfig
	send   SwitchFunc
	logger Logger

	sendMu sync.Mutex

	mu        sync.RWMutex
	on        bool
	attached  bool
	ctx       context.Context //nolint:containedctx // bridge lifetime, set by Attach
	publisher StatePublisher
}

// NewSwitch creates a switch control.
func NewSwitch(cfg SwitchConfig, send SwitchFunc, logger Logger) (*Switch, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: switch control requires an id", ErrInvalidConfig)
	}
	if send == nil {
		return nil, fmt.Errorf("%w: switch %s requires a send function", ErrInvalidConfig, cfg.ID)
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Switch{cfg: cfg, send: send, logger: logger, on: cfg.Initial, ctx: context.Background()}, nil
}

// ID returns the control identifier.
func (s *Switch) ID() string {
	return s.cfg.ID
}

// State returns a snapshot of the displayed state.
func (s *Switch) State() SwitchState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Attach restores the last known state and publishes the current one.
func (s *Switch) Attach(ctx context.Context, host Host) error {
	if host.Publisher == nil {
		return fmt.Errorf("%w: switch %s requires a state publisher", ErrInvalidConfig, s.cfg.ID)
	}

	restored, ok := false, false
	if host.Restorer != nil {
		restored, ok = host.Restorer.RestoreSwitch(ctx, s.cfg.ID)
	}

	s.mu.Lock()
	if ok {
		s.on = restored
	}
	s.ctx = ctx
	s.publisher = host.Publisher
	s.attached = true
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(ctx, state)
	return nil
}

// Detach marks the switch unavailable for further commands.
func (s *Switch) Detach() {
	s.mu.Lock()
	s.attached = false
	s.mu.Unlock()
}

// TurnOn sends the on command.
func (s *Switch) TurnOn(ctx context.Context) error {
	return s.set(ctx, true)
}

// TurnOff sends the off command.
func (s *Switch) TurnOff(ctx context.Context) error {
	return s.set(ctx, false)
}

func (s *Switch) set(ctx context.Context, on bool) error {
	s.mu.RLock()
	attached := s.attached
	s.mu.RUnlock()
	if !attached {
		return ErrDetached
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if err := s.send(ctx, on); err != nil {
		s.logger.Warn("send failed, keeping displayed state", "control", s.cfg.ID, "requested_on", on, "error", err)
		return fmt.Errorf("switching %s: %w", s.cfg.ID, err)
	}

	s.mu.Lock()
	s.on = on
	state := s.snapshotLocked()
	pubCtx := s.ctx
	s.mu.Unlock()

	s.publish(pubCtx, state)
	return nil
}

func (s *Switch) publish(ctx context.Context, state SwitchState) {
	s.mu.RLock()
	pub := s.publisher
	s.mu.RUnlock()
	if pub == nil {
		return
	}
	if err := pub.PublishSwitch(ctx, state); err != nil {
		s.logger.Warn("failed to publish control state", "control", s.cfg.ID, "error", err)
	}
}

func (s *Switch) snapshotLocked() SwitchState {
	return SwitchState{ID: s.cfg.ID, Name: s.cfg.Name, On: s.on, Available: s.attached}
}
