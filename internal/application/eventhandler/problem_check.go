// Package eventhandler содержит обработчики событий трекинга.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/julAtWork/edx-platform/config"
	"github.com/julAtWork/edx-platform/internal/application/block"
	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive"
)

// ═══════════════════════════════════════════════════════════════════════════
// PROBLEM CHECK HANDLER
// Передаёт сервису адаптивного обучения результат проверки задачи.
//
// Из события problem_check извлекаются:
// 1. Курс: context.course_id
// 2. Задача: block_id из context.module.usage_key
// 3. Студент: context.user_id
// 4. Результат: event.success: "correct" → "100", иначе "0"
//
// События других типов и курсы без настроенного сервиса игнорируются.
// ═══════════════════════════════════════════════════════════════════════════

// EventTypeProblemCheck is the tracking event emitted when a learner submits an answer.
const EventTypeProblemCheck = "problem_check"

// Result payloads sent to the service.
const (
	ResultCorrect   = "100"
	ResultIncorrect = "0"
)

// ErrMalformedEvent возвращается, если в событии нет нужных полей.
var ErrMalformedEvent = errors.New("malformed tracking event")

// TrackingEvent: событие трекинга в том виде, в каком его публикует LMS.
type TrackingEvent = map[string]any

// ClientProvider выдаёт клиент сервиса для курса.
type ClientProvider interface {
	ClientFor(courseID string, settings map[string]any) (adaptive.API, error)
}

// ProblemCheckHandler обрабатывает события problem_check.
type ProblemCheckHandler struct {
	catalogue *config.Catalogue
	clients   ClientProvider
	logger    *slog.Logger
}

// NewProblemCheckHandler создаёт обработчик.
func NewProblemCheckHandler(catalogue *config.Catalogue, clients ClientProvider, logger *slog.Logger) *ProblemCheckHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProblemCheckHandler{
		catalogue: catalogue,
		clients:   clients,
		logger:    logger.With("handler", "problem_check"),
	}
}

// Handle отправляет событие результата для problem_check.
func (h *ProblemCheckHandler) Handle(ctx context.Context, event TrackingEvent) error {
	if !IsProblemCheck(event) {
		return nil
	}

	courseID := CourseID(event)
	course, err := h.catalogue.Course(courseID)
	if errors.Is(err, config.ErrCourseNotFound) {
		h.logger.Debug("skipping event for unknown course", "course_id", courseID)
		return nil
	}
	if err != nil {
		return err
	}
	if !adaptive.IsMeaningful(course.AdaptiveLearningConfiguration) {
		h.logger.Debug("skipping event for course without adaptive learning", "course_id", courseID)
		return nil
	}

	blockID, err := BlockID(event)
	if err != nil {
		return err
	}
	userID := UserID(event)
	if userID == "" {
		return fmt.Errorf("%w: missing context.user_id", ErrMalformedEvent)
	}
	result := Success(event)

	api, err := h.clients.ClientFor(course.ID, course.Settings())
	if err != nil {
		return err
	}

	if _, err := block.SendResultEvent(ctx, api, blockID, userID, result); err != nil {
		return fmt.Errorf("course %s: %w", course.ID, err)
	}

	h.logger.Info("result event sent",
		"course_id", course.ID,
		"block_id", blockID,
		"user_id", userID,
		"result", result,
	)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Извлечение полей события
// ─────────────────────────────────────────────────────────────────────────────

// IsProblemCheck сообщает, является ли событие проверкой задачи.
func IsProblemCheck(event TrackingEvent) bool {
	return adaptive.FormatValue(event["event_type"]) == EventTypeProblemCheck
}

// CourseID возвращает context.course_id.
func CourseID(event TrackingEvent) string {
	return adaptive.FormatValue(lookup(event, "context", "course_id"))
}

// BlockID возвращает block_id задачи из context.module.usage_key.
// Поддерживаются ключи вида block-v1:...+block@<id> и i4x://.../<id>.
func BlockID(event TrackingEvent) (string, error) {
	usageKey := adaptive.FormatValue(lookup(event, "context", "module", "usage_key"))
	if usageKey == "" {
		return "", fmt.Errorf("%w: missing context.module.usage_key", ErrMalformedEvent)
	}

	if i := strings.LastIndex(usageKey, "block@"); i >= 0 {
		if id := usageKey[i+len("block@"):]; id != "" {
			return id, nil
		}
	} else if strings.HasPrefix(usageKey, "i4x://") {
		if id := usageKey[strings.LastIndex(usageKey, "/")+1:]; id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: bad usage key %q", ErrMalformedEvent, usageKey)
}

// UserID возвращает context.user_id строкой.
func UserID(event TrackingEvent) string {
	return adaptive.FormatValue(lookup(event, "context", "user_id"))
}

// Success переводит event.success в результат для сервиса.
func Success(event TrackingEvent) string {
	if adaptive.FormatValue(lookup(event, "event", "success")) == "correct" {
		return ResultCorrect
	}
	return ResultIncorrect
}

func lookup(event TrackingEvent, path ...string) any {
	var current any = event
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}
