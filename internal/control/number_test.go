package control

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

const testEntity = "media_player.living_room"

func newTestNumber(t *testing.T, cfg NumberConfig) (*Number, *mockSend, *fakeScheduler) {
	t.Helper()
	if cfg.ID == "" {
		cfg.ID = "volume"
	}
	if cfg.Initial == 0 {
		cfg.Initial = 20
	}
	sender := &mockSend{}
	sched := &fakeScheduler{}
	n, err := NewNumber(cfg, sender.send, WithNumberScheduler(sched))
	if err != nil {
		t.Fatalf("NewNumber() error = %v", err)
	}
	return n, sender, sched
}

func attach(t *testing.T, n *Number, host Host) {
	t.Helper()
	if err := n.Attach(context.Background(), host); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
}

// =============================================================================
// Construction
// =============================================================================

func TestNewNumber_Defaults(t *testing.T) {
	n, err := NewNumber(NumberConfig{ID: "bass", Initial: 20}, func(context.Context, int) error { return nil })
	if err != nil {
		t.Fatalf("NewNumber() error = %v", err)
	}
	s := n.State()
	if s.Min != 0 || s.Max != 100 || s.Step != 1 || s.Value != 20 {
		t.Errorf("State() = %+v, want 0..100 step 1 value 20", s)
	}
	if s.Available {
		t.Error("detached control reports available")
	}
}

func TestNewNumber_Invalid(t *testing.T) {
	send := func(context.Context, int) error { return nil }
	tests := []struct {
		name string
		cfg  NumberConfig
		send SendFunc
	}{
		{name: "missing id", cfg: NumberConfig{}, send: send},
		{name: "missing send", cfg: NumberConfig{ID: "v"}},
		{name: "empty range", cfg: NumberConfig{ID: "v", Min: 10, Max: 10, Initial: 10}, send: send},
		{name: "initial outside range", cfg: NumberConfig{ID: "v", Initial: 150}, send: send},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewNumber(tt.cfg, tt.send); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewNumber() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

// =============================================================================
// Debounced sends
// =============================================================================

func TestNumber_BurstCommitsLastValue(t *testing.T) {
	n, sender, sched := newTestNumber(t, NumberConfig{})
	pub := &mockPublisher{}
	attach(t, n, Host{Publisher: pub})

	for _, v := range []float64{10, 20, 30} {
		if err := n.RequestSet(v); err != nil {
			t.Fatalf("RequestSet(%v) error = %v", v, err)
		}
		sched.Advance(100 * time.Millisecond)
	}

	if got := n.State().Value; got != 20 {
		t.Errorf("Value before quiet period ended = %d, want unchanged 20", got)
	}

	sched.Advance(500 * time.Millisecond)

	if got := sender.sent(); len(got) != 1 || got[0] != 30 {
		t.Fatalf("sent = %v, want [30]", got)
	}
	if got := n.State().Value; got != 30 {
		t.Errorf("Value = %d, want 30", got)
	}

	states := pub.numberStates()
	if len(states) != 2 {
		t.Fatalf("published %d states, want attach + commit", len(states))
	}
	if states[1].Value != 30 {
		t.Errorf("published value = %d, want 30", states[1].Value)
	}
}

func TestNumber_SpacedRequestsSendEach(t *testing.T) {
	n, sender, sched := newTestNumber(t, NumberConfig{})
	attach(t, n, Host{Publisher: &mockPublisher{}})

	_ = n.RequestSet(10)
	sched.Advance(600 * time.Millisecond)
	_ = n.RequestSet(20)
	sched.Advance(600 * time.Millisecond)

	if got := sender.sent(); len(got) != 2 || got[0] != 10 || got[1] != 20 {
		t.Errorf("sent = %v, want [10 20]", got)
	}
}

func TestNumber_FailedSendKeepsValue(t *testing.T) {
	n, sender, sched := newTestNumber(t, NumberConfig{})
	sender.err = errors.New("connection refused")
	pub := &mockPublisher{}
	attach(t, n, Host{Publisher: pub})

	_ = n.RequestSet(80)
	sched.Advance(time.Second)

	if len(sender.sent()) != 1 {
		t.Fatalf("expected one send attempt")
	}
	if got := n.State().Value; got != 20 {
		t.Errorf("Value = %d, want unchanged 20", got)
	}
	if got := len(pub.numberStates()); got != 1 {
		t.Errorf("published %d states, want only the attach snapshot", got)
	}
}

func TestNumber_RequestSetValidation(t *testing.T) {
	n, _, _ := newTestNumber(t, NumberConfig{})

	if err := n.RequestSet(50); !errors.Is(err, ErrDetached) {
		t.Errorf("RequestSet() before Attach error = %v, want ErrDetached", err)
	}

	attach(t, n, Host{Publisher: &mockPublisher{}})

	for _, v := range []float64{-1, 100.5, math.NaN(), math.Inf(1)} {
		if err := n.RequestSet(v); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("RequestSet(%v) error = %v, want ErrOutOfRange", v, err)
		}
	}
}

func TestNumber_TruncatesToStep(t *testing.T) {
	n, sender, sched := newTestNumber(t, NumberConfig{Step: 5})
	attach(t, n, Host{Publisher: &mockPublisher{}})

	_ = n.RequestSet(42.9)
	sched.Advance(time.Second)

	if got := sender.sent(); len(got) != 1 || got[0] != 40 {
		t.Errorf("sent = %v, want [40]", got)
	}
}

// =============================================================================
// Restore
// =============================================================================

func TestNumber_AttachRestores(t *testing.T) {
	tests := []struct {
		name     string
		restored map[string]int
		want     int
	}{
		{name: "restored value", restored: map[string]int{"volume": 55}, want: 55},
		{name: "nothing to restore", restored: map[string]int{}, want: 20},
		{name: "restored value out of range", restored: map[string]int{"volume": 400}, want: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _, _ := newTestNumber(t, NumberConfig{})
			pub := &mockPublisher{}
			attach(t, n, Host{Publisher: pub, Restorer: &mockRestorer{numbers: tt.restored}})

			if got := n.State().Value; got != tt.want {
				t.Errorf("Value = %d, want %d", got, tt.want)
			}
			states := pub.numberStates()
			if len(states) != 1 || !states[0].Available || states[0].Value != tt.want {
				t.Errorf("attach published %+v", states)
			}
		})
	}
}

func TestNumber_AttachRequiresPublisher(t *testing.T) {
	n, _, _ := newTestNumber(t, NumberConfig{})
	if err := n.Attach(context.Background(), Host{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Attach() error = %v, want ErrInvalidConfig", err)
	}
}

// =============================================================================
// Mirroring
// =============================================================================

func TestNumber_Mirror(t *testing.T) {
	n, sender, _ := newTestNumber(t, NumberConfig{MirrorEntity: testEntity})
	pub := &mockPublisher{}
	feed := newMockFeed()
	attach(t, n, Host{Publisher: pub, Feed: feed})

	if !feed.emit(testEntity, ExternalLevel{Available: true, Level: 0.35}) {
		t.Fatal("control did not subscribe to the external entity")
	}
	if got := n.State().Value; got != 35 {
		t.Errorf("Value = %d, want 35", got)
	}

	// Same effective value: no notification.
	feed.emit(testEntity, ExternalLevel{Available: true, Level: 0.351})
	// Unavailable: ignored.
	feed.emit(testEntity, ExternalLevel{Available: false, Level: 0.9})

	if got := n.State().Value; got != 35 {
		t.Errorf("Value = %d, want 35", got)
	}
	if got := len(pub.numberStates()); got != 2 {
		t.Errorf("published %d states, want attach + one mirror", got)
	}
	if got := sender.sent(); len(got) != 0 {
		t.Errorf("mirroring sent commands: %v", got)
	}
}

func TestNumber_MirrorScalesAndClamps(t *testing.T) {
	tests := []struct {
		level float64
		want  int
	}{
		{0.0, 0},
		{0.004, 0},
		{0.006, 1},
		{0.5, 50},
		{1.0, 100},
		{1.7, 100},
		{-0.2, 0},
	}
	for _, tt := range tests {
		n, _, _ := newTestNumber(t, NumberConfig{Initial: 77})
		attach(t, n, Host{Publisher: &mockPublisher{}})
		n.Mirror(ExternalLevel{Available: true, Level: tt.level})
		if got := n.State().Value; got != tt.want {
			t.Errorf("Mirror(%v) value = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestNumber_MirrorLeavesPendingSend(t *testing.T) {
	n, sender, sched := newTestNumber(t, NumberConfig{MirrorEntity: testEntity})
	feed := newMockFeed()
	attach(t, n, Host{Publisher: &mockPublisher{}, Feed: feed})

	_ = n.RequestSet(60)
	feed.emit(testEntity, ExternalLevel{Available: true, Level: 0.2})

	if !n.Pending() {
		t.Fatal("mirror cancelled the pending send")
	}
	sched.Advance(time.Second)

	if got := sender.sent(); len(got) != 1 || got[0] != 60 {
		t.Errorf("sent = %v, want [60]", got)
	}
	if got := n.State().Value; got != 60 {
		t.Errorf("Value = %d, want 60", got)
	}
}

// =============================================================================
// Detach
// =============================================================================

func TestNumber_DetachUnsubscribesAndCancels(t *testing.T) {
	n, sender, sched := newTestNumber(t, NumberConfig{MirrorEntity: testEntity})
	feed := newMockFeed()
	attach(t, n, Host{Publisher: &mockPublisher{}, Feed: feed})

	_ = n.RequestSet(90)
	n.Detach()
	n.Detach()

	if feed.unsubscribed != 1 {
		t.Errorf("unsubscribed = %d, want 1", feed.unsubscribed)
	}
	if feed.emit(testEntity, ExternalLevel{Available: true, Level: 0.5}) {
		t.Error("subscription still active after Detach")
	}

	sched.Advance(time.Second)
	if got := sender.sent(); len(got) != 0 {
		t.Errorf("sent after Detach: %v", got)
	}
	if err := n.RequestSet(10); !errors.Is(err, ErrDetached) {
		t.Errorf("RequestSet() after Detach error = %v, want ErrDetached", err)
	}
}

func TestNumber_SubscribeFailure(t *testing.T) {
	n, _, _ := newTestNumber(t, NumberConfig{MirrorEntity: testEntity})
	feed := newMockFeed()
	feed.subscribeErr = errors.New("broker down")

	if err := n.Attach(context.Background(), Host{Publisher: &mockPublisher{}, Feed: feed}); err == nil {
		t.Fatal("Attach() expected error when subscription fails")
	}
	if err := n.RequestSet(10); !errors.Is(err, ErrDetached) {
		t.Errorf("RequestSet() error = %v, want ErrDetached", err)
	}
}

func TestNumber_DetachDuringSubscribe(t *testing.T) {
	n, _, _ := newTestNumber(t, NumberConfig{MirrorEntity: testEntity})
	pub := &mockPublisher{}
	feed := newMockFeed()
	feed.onSubscribe = n.Detach

	err := n.Attach(context.Background(), Host{Publisher: pub, Feed: feed})
	if !errors.Is(err, ErrDetached) {
		t.Fatalf("Attach() error = %v, want ErrDetached", err)
	}
	if feed.unsubscribed != 1 {
		t.Errorf("unsubscribed = %d, want 1", feed.unsubscribed)
	}
	if feed.emit(testEntity, ExternalLevel{Available: true, Level: 0.5}) {
		t.Error("subscription left behind after Detach")
	}
	if got := len(pub.numberStates()); got != 0 {
		t.Errorf("published %d states after Detach, want 0", got)
	}
}

func TestNumber_AttachTwiceRestoresOnce(t *testing.T) {
	n, _, _ := newTestNumber(t, NumberConfig{})
	pub := &mockPublisher{}
	restorer := &mockRestorer{numbers: map[string]int{"volume": 40}}

	attach(t, n, Host{Publisher: pub, Restorer: restorer})
	attach(t, n, Host{Publisher: pub, Restorer: restorer})

	if restorer.calls != 1 {
		t.Errorf("restore calls = %d, want 1", restorer.calls)
	}
	if got := len(pub.numberStates()); got != 1 {
		t.Errorf("published %d states, want 1", got)
	}
	if got := n.State().Value; got != 40 {
		t.Errorf("Value = %d, want 40", got)
	}
}
