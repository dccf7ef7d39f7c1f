// Package main - точка входа HTTP API адаптивного обучения.
//
// Сервер отвечает за:
// - Список задач на повторение для дашборда студента
// - Показ адаптивных блоков студенту
// - Приём событий трекинга по HTTP
// - Проверки здоровья для оркестратора
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/julAtWork/edx-platform/config"
	"github.com/julAtWork/edx-platform/internal/application/block"
	"github.com/julAtWork/edx-platform/internal/application/eventhandler"
	"github.com/julAtWork/edx-platform/internal/application/revisions"
	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive"
	"github.com/julAtWork/edx-platform/internal/infrastructure/messaging"
	httpserver "github.com/julAtWork/edx-platform/internal/interface/http"
	"github.com/julAtWork/edx-platform/internal/interface/http/handlers"
	"github.com/julAtWork/edx-platform/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.Setup(logger.Options{
		Level:  cfg.Observability.LogLevel,
		Format: logger.Format(cfg.Observability.LogFormat),
		Attrs:  []slog.Attr{slog.String("service", cfg.App.Name+"-api")},
	})
	log.Info("starting adaptive learning API",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. КАТАЛОГ КУРСОВ
	// ─────────────────────────────────────────────────────────────────────────
	catalogue, err := config.LoadCourses(cfg.Courses.File)
	if err != nil {
		return fmt.Errorf("failed to load courses: %w", err)
	}
	log.Info("course catalogue loaded", "file", cfg.Courses.File, "courses", catalogue.Len())

	// ─────────────────────────────────────────────────────────────────────────
	// 4. КЛИЕНТЫ СЕРВИСА АДАПТИВНОГО ОБУЧЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	clients := adaptive.NewFactory(adaptive.FactoryConfigFrom(cfg.Adaptive, log))

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПРИЛОЖЕНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	revisionService := revisions.NewService(catalogue, clients, log)
	blockService := block.NewService(catalogue, clients, log)
	problemCheck := eventhandler.NewProblemCheckHandler(catalogue, clients, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ПРОВЕРКИ ЗДОРОВЬЯ
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("catalogue", handlers.NewCatalogueCheck(catalogue))
	health.AddReadinessCheck("adaptive", handlers.NewCircuitBreakerCheck(clients, courseIDs(catalogue)))

	if !cfg.Redis.Disabled {
		redisClient, redisErr := messaging.NewGoRedisClient(ctx, cfg.Redis.URL, cfg.Redis.DialTimeout)
		if redisErr != nil {
			// API работает и без Redis; готовность остаётся false
			log.Warn("redis unavailable", "error", redisErr)
			health.AddReadinessCheck("redis", func(context.Context) error { return redisErr })
		} else {
			defer redisClient.Close()
			health.AddReadinessCheck("redis", handlers.NewPingCheck(redisClient))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpServer := httpserver.NewServer(httpserver.ConfigFrom(cfg), httpserver.Dependencies{
		Revisions:     revisionService,
		Blocks:        blockService,
		Tracking:      problemCheck,
		HealthChecker: health,
		Logger:        log,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("server failed", "error", err)
		return err
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

func courseIDs(catalogue *config.Catalogue) []string {
	courses := catalogue.Courses()
	ids := make([]string, 0, len(courses))
	for _, course := range courses {
		ids = append(ids, course.ID)
	}
	return ids
}
