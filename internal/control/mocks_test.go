package control

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/aura-bridge/internal/speaker"
)

// =============================================================================
// Manual scheduler
// =============================================================================

type fakeTimer struct {
	sched   *fakeScheduler
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeScheduler only fires timers when Advance moves its clock.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{sched: s, at: s.now + d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock and runs due timers in order on the caller's
// goroutine.
func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.at <= s.now {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// fireRaw runs the callback of timer i even if it was stopped, as happens
// when a real timer fires just before Stop is called.
func (s *fakeScheduler) fireRaw(i int) {
	s.mu.Lock()
	f := s.timers[i].f
	s.mu.Unlock()
	f()
}

// =============================================================================
// Host collaborators
// =============================================================================

type mockPublisher struct {
	mu       sync.Mutex
	numbers  []State
	switches []SwitchState
	err      error
}

func (p *mockPublisher) PublishNumber(_ context.Context, s State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.numbers = append(p.numbers, s)
	return p.err
}

func (p *mockPublisher) PublishSwitch(_ context.Context, s SwitchState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.switches = append(p.switches, s)
	return p.err
}

func (p *mockPublisher) numberStates() []State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]State(nil), p.numbers...)
}

func (p *mockPublisher) switchStates() []SwitchState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SwitchState(nil), p.switches...)
}

type mockRestorer struct {
	numbers  map[string]int
	switches map[string]bool
	calls    int
}

func (r *mockRestorer) RestoreNumber(_ context.Context, id string) (int, bool) {
	r.calls++
	v, ok := r.numbers[id]
	return v, ok
}

func (r *mockRestorer) RestoreSwitch(_ context.Context, id string) (bool, bool) {
	v, ok := r.switches[id]
	return v, ok
}

type mockFeed struct {
	mu           sync.Mutex
	subs         map[string]func(ExternalLevel)
	unsubscribed int
	subscribeErr error
	// onSubscribe runs after the subscription is registered, before
	// Subscribe returns.
	onSubscribe func()
}

func newMockFeed() *mockFeed {
	return &mockFeed{subs: make(map[string]func(ExternalLevel))}
}

func (f *mockFeed) Subscribe(entityID string, fn func(ExternalLevel)) (func(), error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.mu.Lock()
	f.subs[entityID] = fn
	f.mu.Unlock()
	if f.onSubscribe != nil {
		f.onSubscribe()
	}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, entityID)
		f.unsubscribed++
	}, nil
}

func (f *mockFeed) emit(entityID string, ext ExternalLevel) bool {
	f.mu.Lock()
	fn, ok := f.subs[entityID]
	f.mu.Unlock()
	if ok {
		fn(ext)
	}
	return ok
}

// =============================================================================
// Device senders
// =============================================================================

type mockSend struct {
	mu     sync.Mutex
	values []int
	err    error
}

func (m *mockSend) send(_ context.Context, v int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = append(m.values, v)
	return m.err
}

func (m *mockSend) sent() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.values...)
}

type mockSpeaker struct {
	mu       sync.Mutex
	requests []speaker.Request
	err      error
}

func (m *mockSpeaker) Send(_ context.Context, req speaker.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.err
}
