package control

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 500 * time.Millisecond

// Timer is a scheduled callback that can be stopped.
type Timer interface {
	Stop() bool
}

// Scheduler runs a function after a delay. The real implementation uses
// time.AfterFunc; tests substitute a manual clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type debouncerOptions struct {
	scheduler Scheduler
	logger    Logger
	name      string
}

// DebouncerOption configures a Debouncer.
type DebouncerOption func(*debouncerOptions)

// WithScheduler replaces the real timer source.
func WithScheduler(s Scheduler) DebouncerOption {
	return func(o *debouncerOptions) { o.scheduler = s }
}

// WithDebounceLogger sets the logger and the name used in its entries.
func WithDebounceLogger(l Logger, name string) DebouncerOption {
	return func(o *debouncerOptions) {
		o.logger = l
		o.name = name
	}
}

// Debouncer coalesces bursts of values so only the last one requested
// within the quiet period reaches fire.
//
// Scheduling and cancellation happen under one mutex. Each scheduled timer
// carries a generation number; a timer that fires after being superseded
// sees a newer generation and does nothing, so two sends can never result
// from one burst.
type Debouncer[T any] struct {
	delay time.Duration
	fire  func(T)
	opts  debouncerOptions

	mu         sync.Mutex
	pending    T
	hasPending bool
	timer      Timer
	generation uint64
}

// NewDebouncer creates a debouncer that calls fire with the latest value
// once delay has passed without a newer request. A non-positive delay
// means DefaultDebounce.
func NewDebouncer[T any](delay time.Duration, fire func(T), opts ...DebouncerOption) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDebounce
	}

	o := debouncerOptions{
		scheduler: realScheduler{},
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Debouncer[T]{delay: delay, fire: fire, opts: o}
}

// Request records v as the pending value and restarts the quiet period.
func (d *Debouncer[T]) Request(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		if d.hasPending {
			d.opts.logger.Debug("debounce superseded", "control", d.opts.name, "previous", d.pending, "next", v)
		}
	}

	d.pending = v
	d.hasPending = true
	d.generation++
	gen := d.generation
	d.timer = d.opts.scheduler.AfterFunc(d.delay, func() { d.expire(gen) })
}

// Cancel drops the pending value. Safe to call when nothing is pending.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	var zero T
	d.pending = zero
	d.hasPending = false
	d.generation++
}

// Pending reports whether a value is waiting for its quiet period to end.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasPending
}

func (d *Debouncer[T]) expire(gen uint64) {
	d.mu.Lock()
	if gen != d.generation || !d.hasPending {
		d.mu.Unlock()
		return
	}

	v := d.pending
	var zero T
	d.pending = zero
	d.hasPending = false
	d.timer = nil
	d.mu.Unlock()

	d.fire(v)
}
