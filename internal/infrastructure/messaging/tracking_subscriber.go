// Package messaging consumes tracking events published by the LMS.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS ABSTRACTION
// ══════════════════════════════════════════════════════════════════════════════

// RedisClient defines the pub/sub operations the subscriber needs.
// This allows for easy mocking and different Redis client implementations.
type RedisClient interface {
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage represents a message received from Redis Pub/Sub.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// TrackingHandler processes one decoded tracking event.
type TrackingHandler interface {
	Handle(ctx context.Context, event map[string]any) error
}

// TrackingHandlerFunc adapts a function to TrackingHandler.
type TrackingHandlerFunc func(ctx context.Context, event map[string]any) error

// Handle calls f.
func (f TrackingHandlerFunc) Handle(ctx context.Context, event map[string]any) error {
	return f(ctx, event)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACKING SUBSCRIBER
// ══════════════════════════════════════════════════════════════════════════════

// ErrNoMessages is returned by Run when the message channel closes before
// the context is cancelled.
var ErrNoMessages = errors.New("tracking subscription closed")

// TrackingSubscriberConfig contains configuration for TrackingSubscriber.
type TrackingSubscriberConfig struct {
	// Client is the Redis client to use
	Client RedisClient

	// Channel is the Redis channel carrying tracking events (default: "tracking:events")
	Channel string

	// Handler receives every decoded event
	Handler TrackingHandler

	// HandlerTimeout bounds a single Handle call. Zero means no timeout.
	HandlerTimeout time.Duration

	// Logger for structured logging
	Logger *slog.Logger
}

// TrackingSubscriber reads tracking events from Redis and hands them to a
// handler one at a time. Failed events are logged and dropped.
type TrackingSubscriber struct {
	client         RedisClient
	channel        string
	handler        TrackingHandler
	handlerTimeout time.Duration
	logger         *slog.Logger
	stats          trackingStats
}

// NewTrackingSubscriber creates a new subscriber.
func NewTrackingSubscriber(config TrackingSubscriberConfig) (*TrackingSubscriber, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Handler == nil {
		return nil, errors.New("tracking handler is required")
	}
	if config.Channel == "" {
		config.Channel = "tracking:events"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &TrackingSubscriber{
		client:         config.Client,
		channel:        config.Channel,
		handler:        config.Handler,
		handlerTimeout: config.HandlerTimeout,
		logger:         config.Logger.With("component", "tracking_subscriber", "channel", config.Channel),
	}, nil
}

// Run subscribes and processes messages until ctx is cancelled.
// It returns nil on cancellation.
func (s *TrackingSubscriber) Run(ctx context.Context) error {
	messages, err := s.client.Subscribe(ctx, s.channel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	s.logger.Info("tracking subscriber started")
	defer s.logger.Info("tracking subscriber stopped", "stats", s.Stats())

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrNoMessages
			}
			if msg.Err != nil {
				s.logger.Error("redis subscription error", "error", msg.Err)
				continue
			}
			s.handleMessage(ctx, msg)
		}
	}
}

// handleMessage decodes and dispatches a single message.
func (s *TrackingSubscriber) handleMessage(ctx context.Context, msg RedisMessage) {
	s.stats.received.Add(1)
	deliveryID := uuid.NewString()
	logger := s.logger.With("delivery_id", deliveryID)

	event, err := decodeEvent(msg.Payload)
	if err != nil {
		s.stats.malformed.Add(1)
		logger.Warn("skipping malformed tracking event", "error", err)
		return
	}

	start := time.Now()
	if err := s.dispatch(ctx, event); err != nil {
		s.stats.failed.Add(1)
		logger.Error("tracking handler failed",
			"event_type", event["event_type"],
			"duration", time.Since(start),
			"error", err,
		)
		return
	}

	s.stats.handled.Add(1)
	logger.Debug("tracking event handled",
		"event_type", event["event_type"],
		"duration", time.Since(start),
	)
}

func (s *TrackingSubscriber) dispatch(ctx context.Context, event map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic recovered",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	if s.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.handlerTimeout)
		defer cancel()
	}
	return s.handler.Handle(ctx, event)
}

func decodeEvent(payload string) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader([]byte(payload)))
	decoder.UseNumber()

	var event map[string]any
	if err := decoder.Decode(&event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if event == nil {
		return nil, errors.New("decode event: not a JSON object")
	}
	return event, nil
}

// Close closes the underlying Redis client.
func (s *TrackingSubscriber) Close() error {
	return s.client.Close()
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

type trackingStats struct {
	received  atomic.Int64
	handled   atomic.Int64
	failed    atomic.Int64
	malformed atomic.Int64
}

// TrackingStats is a snapshot of subscriber counters.
type TrackingStats struct {
	Received  int64 `json:"received"`
	Handled   int64 `json:"handled"`
	Failed    int64 `json:"failed"`
	Malformed int64 `json:"malformed"`
}

// Stats returns the current counters.
func (s *TrackingSubscriber) Stats() TrackingStats {
	return TrackingStats{
		Received:  s.stats.received.Load(),
		Handled:   s.stats.handled.Load(),
		Failed:    s.stats.failed.Load(),
		Malformed: s.stats.malformed.Load(),
	}
}
