// Package resilience provides retry and circuit breaking for calls to
// retailer sites.
package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the state of one key's circuit.
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the reset timeout passes.
	CircuitOpen
	// CircuitHalfOpen lets a single probe through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected by an open circuit.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit. Default: 5.
	FailureThreshold int

	// ResetTimeout is how long an open circuit rejects calls. Default: 30s.
	ResetTimeout time.Duration

	// ShouldTrip decides which errors count as failures. Default: any error.
	ShouldTrip func(err error) bool

	// OnStateChange is called on every transition.
	OnStateChange func(key string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

type circuit struct {
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

// CircuitBreaker keeps an independent circuit per key, typically a host,
// so one retailer refusing traffic does not slow the others down.
type CircuitBreaker struct {
	cfg      CircuitBreakerConfig
	mu       sync.Mutex
	circuits map[string]*circuit
	now      func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{
		cfg:      cfg,
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

// Allow returns ErrCircuitOpen if calls for key are currently rejected.
// After the reset timeout one probe call is allowed through.
func (cb *CircuitBreaker) Allow(key string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	switch c.state {
	case CircuitOpen:
		if cb.now().Sub(c.openedAt) < cb.cfg.ResetTimeout {
			return eris.Wrapf(ErrCircuitOpen, "resilience: %s", key)
		}
		cb.transition(key, c, CircuitHalfOpen)
		c.probing = true
		return nil
	case CircuitHalfOpen:
		if c.probing {
			return eris.Wrapf(ErrCircuitOpen, "resilience: %s (probe in flight)", key)
		}
		c.probing = true
		return nil
	default:
		return nil
	}
}

// Record reports the outcome of a call allowed for key.
func (cb *CircuitBreaker) Record(key string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	c.probing = false
	if err == nil || !cb.cfg.ShouldTrip(err) {
		c.failures = 0
		if c.state != CircuitClosed {
			cb.transition(key, c, CircuitClosed)
		}
		return
	}

	c.failures++
	if c.state == CircuitHalfOpen || c.failures >= cb.cfg.FailureThreshold {
		c.openedAt = cb.now()
		if c.state != CircuitOpen {
			cb.transition(key, c, CircuitOpen)
		}
	}
}

// State returns the current state for key.
func (cb *CircuitBreaker) State(key string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	c, ok := cb.circuits[key]
	if !ok {
		return CircuitClosed
	}
	if c.state == CircuitOpen && cb.now().Sub(c.openedAt) >= cb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return c.state
}

func (cb *CircuitBreaker) get(key string) *circuit {
	c, ok := cb.circuits[key]
	if !ok {
		c = &circuit{}
		cb.circuits[key] = c
	}
	return c
}

func (cb *CircuitBreaker) transition(key string, c *circuit, to CircuitState) {
	from := c.state
	c.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(key, from, to)
	}
}
