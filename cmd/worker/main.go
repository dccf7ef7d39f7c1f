// Package main - точка входа фонового обработчика событий трекинга.
//
// Worker подписывается на канал Redis, в который LMS публикует события
// трекинга, и передаёт результаты проверки задач (problem_check)
// сервису адаптивного обучения.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julAtWork/edx-platform/config"
	"github.com/julAtWork/edx-platform/internal/application/eventhandler"
	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive"
	"github.com/julAtWork/edx-platform/internal/infrastructure/messaging"
	"github.com/julAtWork/edx-platform/pkg/logger"
)

// resubscribeDelay is the pause before subscribing again after the channel closed.
const resubscribeDelay = time.Second

func main() {
	// Корневой контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Redis.Disabled {
		return errors.New("worker requires Redis, unset REDIS_DISABLED")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.Setup(logger.Options{
		Level:  cfg.Observability.LogLevel,
		Format: logger.Format(cfg.Observability.LogFormat),
		Attrs:  []slog.Attr{slog.String("service", cfg.App.Name+"-worker")},
	})
	log.Info("starting tracking worker",
		"env", cfg.App.Environment,
		"channel", cfg.Redis.TrackingChannel,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. КАТАЛОГ КУРСОВ И КЛИЕНТЫ
	// ─────────────────────────────────────────────────────────────────────────
	catalogue, err := config.LoadCourses(cfg.Courses.File)
	if err != nil {
		return fmt.Errorf("failed to load courses: %w", err)
	}
	clients := adaptive.NewFactory(adaptive.FactoryConfigFrom(cfg.Adaptive, log))
	handler := eventhandler.NewProblemCheckHandler(catalogue, clients, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ПОДКЛЮЧЕНИЕ К REDIS
	// ─────────────────────────────────────────────────────────────────────────
	redisClient, err := messaging.NewGoRedisClient(ctx, cfg.Redis.URL, cfg.Redis.DialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	subscriber, err := messaging.NewTrackingSubscriber(messaging.TrackingSubscriberConfig{
		Client:         redisClient,
		Channel:        cfg.Redis.TrackingChannel,
		Handler:        handler,
		HandlerTimeout: cfg.Redis.HandlerTimeout,
		Logger:         log,
	})
	if err != nil {
		_ = redisClient.Close()
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	defer func() {
		log.Info("closing redis connection...")
		_ = subscriber.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ОБРАБОТКА СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	if err := consume(ctx, subscriber, log); err != nil {
		return err
	}

	log.Info("shutdown completed successfully", "stats", subscriber.Stats())
	return nil
}

// consume runs the subscriber until ctx is cancelled, subscribing again
// whenever Redis closes the channel.
func consume(ctx context.Context, subscriber *messaging.TrackingSubscriber, log *slog.Logger) error {
	for {
		err := subscriber.Run(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, messaging.ErrNoMessages) {
			return err
		}

		log.Warn("subscription closed, resubscribing", "delay", resubscribeDelay.String())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(resubscribeDelay):
		}
	}
}
