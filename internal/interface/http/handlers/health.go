// Package handlers contains HTTP health checks and middleware.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/julAtWork/edx-platform/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH REPORT
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker produces the report served by /health and /ready.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc checks one dependency; a non-nil error marks it down.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the aggregated report. Healthy drops only when a critical
// check fails; Ready drops when any check fails.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
	Critical bool   `json:"critical"`
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE CHECKER
// ══════════════════════════════════════════════════════════════════════════════

type registration struct {
	check    HealthCheckFunc
	critical bool
}

// CompositeHealthChecker runs its registered checks in parallel, each under
// its own timeout.
type CompositeHealthChecker struct {
	version string
	started time.Time

	mu      sync.RWMutex
	timeout time.Duration
	checks  map[string]registration
}

func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		version: version,
		started: time.Now(),
		timeout: 5 * time.Second,
		checks:  make(map[string]registration),
	}
}

// SetTimeout bounds every individual check.
func (c *CompositeHealthChecker) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// AddCheck registers a critical check.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.register(name, registration{check: check, critical: true})
}

// AddReadinessCheck registers a check that only affects readiness.
func (c *CompositeHealthChecker) AddReadinessCheck(name string, check HealthCheckFunc) {
	c.register(name, registration{check: check})
}

func (c *CompositeHealthChecker) RemoveCheck(name string) {
	c.mu.Lock()
	delete(c.checks, name)
	c.mu.Unlock()
}

func (c *CompositeHealthChecker) register(name string, reg registration) {
	c.mu.Lock()
	c.checks[name] = reg
	c.mu.Unlock()
}

func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	timeout := c.timeout
	regs := make(map[string]registration, len(c.checks))
	for name, reg := range c.checks {
		regs[name] = reg
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(regs)),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	if len(regs) == 0 {
		status.Message = "No health checks registered"
		return status
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, reg := range regs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := run(ctx, reg, timeout)
			mu.Lock()
			status.Checks[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	var failed []string
	for name, res := range status.Checks {
		if res.Healthy {
			continue
		}
		failed = append(failed, name)
		status.Ready = false
		if res.Critical {
			status.Healthy = false
		}
	}

	status.Message = "All checks passed"
	if len(failed) > 0 {
		sort.Strings(failed)
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}
	return status
}

func run(ctx context.Context, reg registration, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	began := time.Now()
	err := reg.check(ctx)
	res := CheckResult{
		Healthy:  err == nil,
		Message:  "OK",
		Duration: time.Since(began).Round(time.Millisecond).String(),
		Critical: reg.critical,
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is anything that can report connectivity, e.g. the Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck creates a connectivity health check.
func NewPingCheck(p Pinger) HealthCheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// CourseCounter reports how many courses are loaded.
type CourseCounter interface {
	Len() int
}

// NewCatalogueCheck fails when no courses are loaded.
func NewCatalogueCheck(catalogue CourseCounter) HealthCheckFunc {
	return func(context.Context) error {
		if catalogue.Len() == 0 {
			return errors.New("no courses loaded")
		}
		return nil
	}
}

// BreakerSource exposes the circuit breaker of a course, if any.
type BreakerSource interface {
	Breaker(courseID string) *circuitbreaker.CircuitBreaker
}

// NewCircuitBreakerCheck fails while any course's circuit is open.
func NewCircuitBreakerCheck(source BreakerSource, courseIDs []string) HealthCheckFunc {
	return func(context.Context) error {
		var open []string
		for _, id := range courseIDs {
			cb := source.Breaker(id)
			if cb != nil && cb.State() == circuitbreaker.StateOpen {
				open = append(open, id)
			}
		}
		if len(open) > 0 {
			return fmt.Errorf("circuit open for %s", strings.Join(open, ", "))
		}
		return nil
	}
}
