package adaptive

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/julAtWork/edx-platform/config"
	"github.com/julAtWork/edx-platform/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT FACTORY
// ══════════════════════════════════════════════════════════════════════════════

// FactoryConfig holds the transport settings shared by every course client.
type FactoryConfig struct {
	// Client is the template for each client. Its Settings and CircuitBreaker are ignored.
	Client ClientConfig

	// BreakerThreshold is the number of consecutive failures that opens a
	// course's circuit. Zero disables the breaker.
	BreakerThreshold int

	// BreakerTimeout is how long a course's circuit stays open.
	BreakerTimeout time.Duration
}

// FactoryConfigFrom maps application settings onto a factory configuration.
func FactoryConfigFrom(cfg config.AdaptiveConfig, logger *slog.Logger) FactoryConfig {
	client := DefaultClientConfig(nil)
	client.Timeout = cfg.RequestTimeout
	client.RateLimit = cfg.RateLimit
	if cfg.RateLimitBurst > 0 {
		client.RateLimitBurst = cfg.RateLimitBurst
	}
	client.Debug = cfg.Debug
	client.Logger = logger

	return FactoryConfig{
		Client:           client,
		BreakerThreshold: cfg.CircuitBreakerThreshold,
		BreakerTimeout:   cfg.CircuitBreakerTimeout,
	}
}

// Factory builds and caches one client per course.
// Courses are keyed by id; the settings of a course are read on first use only.
type Factory struct {
	config FactoryConfig
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewFactory creates a client factory.
func NewFactory(config FactoryConfig) *Factory {
	logger := config.Client.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		config:  config,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// ClientFor returns the client for courseID, building it from settings on first use.
func (f *Factory) ClientFor(courseID string, settings map[string]any) (API, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[courseID]; ok {
		return client, nil
	}

	cfg, err := NewConfiguration(settings)
	if err != nil {
		return nil, fmt.Errorf("course %s: %w", courseID, err)
	}

	clientConfig := f.config.Client
	clientConfig.Settings = cfg
	clientConfig.CircuitBreaker = nil
	clientConfig.Logger = f.logger.With("course_id", courseID)
	if f.config.BreakerThreshold > 0 {
		clientConfig.CircuitBreaker = NewCircuitBreaker(f.config.BreakerThreshold, f.config.BreakerTimeout, clientConfig.Logger)
	}

	client, err := NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("course %s: %w", courseID, err)
	}
	f.clients[courseID] = client
	return client, nil
}

// Breaker returns the circuit breaker of a course client, or nil if there is none.
func (f *Factory) Breaker(courseID string) *circuitbreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.clients[courseID]; ok {
		return client.breaker
	}
	return nil
}
