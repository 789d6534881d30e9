package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(threshold int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: threshold, ResetTimeout: time.Minute})
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3)
	fail := errors.New("blocked")

	for i := 0; i < 2; i++ {
		if err := cb.Allow("shop.example.com"); err != nil {
			t.Fatalf("attempt %d: unexpected rejection: %v", i, err)
		}
		cb.Record("shop.example.com", fail)
	}
	if got := cb.State("shop.example.com"); got != CircuitClosed {
		t.Fatalf("expected closed below threshold, got %s", got)
	}

	cb.Record("shop.example.com", fail)
	err := cb.Allow("shop.example.com")
	if !eris.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_KeysAreIndependent(t *testing.T) {
	cb, _ := newTestBreaker(1)
	cb.Record("a.example.com", errors.New("down"))

	if err := cb.Allow("a.example.com"); err == nil {
		t.Error("expected a.example.com to be rejected")
	}
	if err := cb.Allow("b.example.com"); err != nil {
		t.Errorf("expected b.example.com to be allowed, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsStreak(t *testing.T) {
	cb, _ := newTestBreaker(2)
	cb.Record("k", errors.New("x"))
	cb.Record("k", nil)
	cb.Record("k", errors.New("x"))

	if got := cb.State("k"); got != CircuitClosed {
		t.Errorf("expected closed, got %s", got)
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(1)
	var transitions []string
	cb.cfg.OnStateChange = func(_ string, from, to CircuitState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}

	cb.Record("k", errors.New("x"))
	clock.t = clock.t.Add(2 * time.Minute)

	if got := cb.State("k"); got != CircuitHalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", got)
	}
	if err := cb.Allow("k"); err != nil {
		t.Fatalf("expected probe to be allowed, got %v", err)
	}
	if err := cb.Allow("k"); err == nil {
		t.Fatal("expected second call during probe to be rejected")
	}

	cb.Record("k", nil)
	if got := cb.State("k"); got != CircuitClosed {
		t.Fatalf("expected closed after successful probe, got %s", got)
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, clock := newTestBreaker(1)
	cb.Record("k", errors.New("x"))
	clock.t = clock.t.Add(2 * time.Minute)

	if err := cb.Allow("k"); err != nil {
		t.Fatalf("expected probe to be allowed, got %v", err)
	}
	cb.Record("k", errors.New("still down"))

	if got := cb.State("k"); got != CircuitOpen {
		t.Errorf("expected open after failed probe, got %s", got)
	}
}

func TestCircuitBreaker_ShouldTrip(t *testing.T) {
	ignored := errors.New("404")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       func(err error) bool { return !errors.Is(err, ignored) },
	})
	cb.Record("k", ignored)
	if got := cb.State("k"); got != CircuitClosed {
		t.Errorf("expected non-tripping error to leave circuit closed, got %s", got)
	}
}

func TestCircuitState_String(t *testing.T) {
	if CircuitState(9).String() != "unknown" {
		t.Error("expected unknown for out-of-range state")
	}
}
