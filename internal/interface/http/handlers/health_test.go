package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julAtWork/edx-platform/pkg/circuitbreaker"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type courseCount int

func (c courseCount) Len() int { return int(c) }

type breakers map[string]*circuitbreaker.CircuitBreaker

func (b breakers) Breaker(courseID string) *circuitbreaker.CircuitBreaker { return b[courseID] }

func TestCompositeHealthChecker_NoChecks(t *testing.T) {
	status := NewCompositeHealthChecker("1.0.0").Check(context.Background())

	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "1.0.0", status.Version)
	assert.Equal(t, "No health checks registered", status.Message)
}

func TestCompositeHealthChecker_Aggregates(t *testing.T) {
	checker := NewCompositeHealthChecker("1.0.0")
	checker.AddCheck("catalogue", NewCatalogueCheck(courseCount(2)))
	checker.AddReadinessCheck("redis", NewPingCheck(pingerFunc(func(context.Context) error {
		return errors.New("connection refused")
	})))

	status := checker.Check(context.Background())

	assert.True(t, status.Healthy, "readiness failures keep the service alive")
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: redis", status.Message)
	require.Contains(t, status.Checks, "redis")
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
	assert.True(t, status.Checks["catalogue"].Healthy)
	assert.True(t, status.Checks["catalogue"].Critical)

	checker.RemoveCheck("redis")
	status = checker.Check(context.Background())
	assert.True(t, status.Ready)
	assert.Equal(t, "All checks passed", status.Message)
}

func TestCompositeHealthChecker_CriticalFailure(t *testing.T) {
	checker := NewCompositeHealthChecker("")
	checker.AddCheck("catalogue", NewCatalogueCheck(courseCount(0)))

	status := checker.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.False(t, status.Ready)
	assert.Equal(t, "no courses loaded", status.Checks["catalogue"].Message)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	checker := NewCompositeHealthChecker("")
	checker.SetTimeout(10 * time.Millisecond)
	checker.AddCheck("slow", NewPingCheck(pingerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	status := checker.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
}

func TestCircuitBreakerCheck(t *testing.T) {
	open := circuitbreaker.New("a", circuitbreaker.WithFailureThreshold(1))
	_ = open.Execute(context.Background(), func(context.Context) error { return errors.New("down") })
	require.Equal(t, circuitbreaker.StateOpen, open.State())

	source := breakers{"course-a": open, "course-b": circuitbreaker.New("b")}

	check := NewCircuitBreakerCheck(source, []string{"course-a", "course-b", "course-c"})
	err := check(context.Background())
	require.Error(t, err)
	assert.Equal(t, "circuit open for course-a", err.Error())

	open.Reset()
	assert.NoError(t, check(context.Background()))
}
