package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock is advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return New(WithThreshold(threshold), WithCooldown(time.Second), WithClock(clock.Now)), clock
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)
	if !b.Allow("store") {
		t.Fatal("expected closed circuit to allow")
	}

	b.RecordFailure("store")
	b.RecordFailure("store")
	if !b.Allow("store") {
		t.Fatal("should still allow before threshold")
	}

	b.RecordFailure("store")
	if b.Allow("store") {
		t.Fatal("should be open after 3 failures")
	}
	if b.State("store") != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State("store"))
	}
}

func TestBreaker_ProbeAfterCooldown(t *testing.T) {
	b, clock := newTestBreaker(2)
	b.RecordFailure("store")
	b.RecordFailure("store")

	clock.Advance(500 * time.Millisecond)
	if b.Allow("store") {
		t.Fatal("should stay open during cooldown")
	}

	clock.Advance(600 * time.Millisecond)
	if !b.Allow("store") {
		t.Fatal("should allow one probe after cooldown")
	}
	if b.State("store") != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %v", b.State("store"))
	}
	if b.Allow("store") {
		t.Fatal("should reject a second call while probing")
	}
}

func TestBreaker_ProbeOutcome(t *testing.T) {
	t.Run("success closes", func(t *testing.T) {
		b, clock := newTestBreaker(2)
		b.RecordFailure("store")
		b.RecordFailure("store")
		clock.Advance(time.Second)
		b.Allow("store")

		b.RecordSuccess("store")
		if b.State("store") != StateClosed {
			t.Fatalf("expected StateClosed, got %v", b.State("store"))
		}
	})

	t.Run("failure reopens", func(t *testing.T) {
		b, clock := newTestBreaker(2)
		b.RecordFailure("store")
		b.RecordFailure("store")
		clock.Advance(time.Second)
		b.Allow("store")

		b.RecordFailure("store")
		if b.State("store") != StateOpen {
			t.Fatalf("expected StateOpen, got %v", b.State("store"))
		}
		if b.Allow("store") {
			t.Fatal("reopened circuit should restart its cooldown")
		}
	})
}

func TestBreaker_SuccessResets(t *testing.T) {
	b, _ := newTestBreaker(3)
	b.RecordFailure("store")
	b.RecordFailure("store")
	b.RecordSuccess("store")

	b.RecordFailure("store")
	if !b.Allow("store") {
		t.Fatal("should still be closed after reset")
	}
}

func TestBreaker_IndependentKeys(t *testing.T) {
	b, _ := newTestBreaker(2)
	b.RecordFailure("a")
	b.RecordFailure("a")

	if b.Allow("a") {
		t.Fatal("a should be open")
	}
	if !b.Allow("b") {
		t.Fatal("b should be closed")
	}
	if b.State("unknown") != StateClosed {
		t.Fatalf("expected StateClosed for unknown key, got %v", b.State("unknown"))
	}
}

func TestBreaker_Do(t *testing.T) {
	b, _ := newTestBreaker(1)
	boom := errors.New("boom")

	calls := 0
	if err := b.Do("store", func() error { calls++; return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := b.Do("store", func() error { calls++; return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("open circuit must not call fn, got %d calls", calls)
	}
}

func TestBreaker_OnTransition(t *testing.T) {
	var got []Transition
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := New(
		WithThreshold(2),
		WithCooldown(time.Second),
		WithClock(clock.Now),
		OnTransition(func(tr Transition) { got = append(got, tr) }),
	)

	b.RecordFailure("store")
	b.RecordFailure("store")
	clock.Advance(time.Second)
	b.Allow("store")
	b.RecordSuccess("store")

	want := []Transition{
		{"store", StateClosed, StateOpen},
		{"store", StateOpen, StateHalfOpen},
		{"store", StateHalfOpen, StateClosed},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d transitions, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBreaker_Defaults(t *testing.T) {
	b := New(WithThreshold(0), WithCooldown(-1))
	if b.threshold != 5 || b.cooldown != 30*time.Second {
		t.Fatalf("invalid options should keep defaults, got %d/%v", b.threshold, b.cooldown)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
