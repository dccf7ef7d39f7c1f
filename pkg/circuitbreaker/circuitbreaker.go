// Package circuitbreaker guards outbound calls to a remote service.
//
// A breaker counts consecutive failures. Once they reach the configured
// threshold the breaker opens and rejects calls with ErrCircuitOpen until the
// cool-down elapses. After that a limited number of trial calls decide whether
// the breaker closes again or reopens.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var (
	// ErrCircuitOpen rejects a call made while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests rejects a call once every half-open trial slot is taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config tunes a breaker. Zero values are replaced by New with the defaults
// listed next to each field.
type Config struct {
	Name string

	FailureThreshold    int           // consecutive failures that open the breaker (5)
	SuccessThreshold    int           // trial successes that close it again (2)
	Timeout             time.Duration // cool-down before probing (30s)
	MaxHalfOpenRequests int           // concurrent trials (1)

	// OnStateChange runs under the breaker lock; it must not call back into the breaker.
	OnStateChange func(name string, from, to State)

	// IsFailure filters errors. Context cancellation is never a failure.
	IsFailure func(error) bool
}

func (c *Config) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxHalfOpenRequests <= 0 {
		c.MaxHalfOpenRequests = 1
	}
}

// Option mutates a Config before the breaker is built.
type Option func(*Config)

func WithFailureThreshold(n int) Option { return func(c *Config) { c.FailureThreshold = n } }

func WithSuccessThreshold(n int) Option { return func(c *Config) { c.SuccessThreshold = n } }

func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }

func WithMaxHalfOpenRequests(n int) Option { return func(c *Config) { c.MaxHalfOpenRequests = n } }

func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

func WithIsFailure(fn func(error) bool) Option { return func(c *Config) { c.IsFailure = fn } }

// Counts is a snapshot of the breaker counters. The consecutive counters
// restart on every state change.
type Counts struct {
	Requests             int
	TotalSuccesses       int
	TotalFailures        int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

func (c *Counts) record(failed bool) {
	c.Requests++
	if failed {
		c.TotalFailures++
		c.ConsecutiveFailures++
		c.ConsecutiveSuccesses = 0
		return
	}
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	trials   int
}

// New builds a closed breaker.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := Config{Name: name}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.applyDefaults()
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute calls fn when the breaker admits it and returns fn's error untouched.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.settle(cb.failed(err))
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.Timeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.trials >= cb.cfg.MaxHalfOpenRequests {
			return ErrTooManyRequests
		}
		cb.trials++
	}
	return nil
}

func (cb *CircuitBreaker) settle(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counts.record(failed)

	switch {
	case cb.state == StateHalfOpen && failed:
		cb.transition(StateOpen)
	case cb.state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.cfg.SuccessThreshold:
		cb.transition(StateClosed)
	case cb.state == StateClosed && cb.counts.ConsecutiveFailures >= cb.cfg.FailureThreshold:
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) failed(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case cb.cfg.IsFailure != nil:
		return cb.cfg.IsFailure(err)
	default:
		return true
	}
}

// transition expects cb.mu to be held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.trials = 0
	cb.counts.ConsecutiveFailures = 0
	cb.counts.ConsecutiveSuccesses = 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset closes the breaker and clears its counters without firing OnStateChange.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.counts = Counts{}
	cb.trials = 0
}

func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }
