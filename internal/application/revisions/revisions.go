// Package revisions собирает задачи, которые студенту пора повторить.
package revisions

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/julAtWork/edx-platform/config"
	"github.com/julAtWork/edx-platform/internal/application/block"
	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive"
	"github.com/julAtWork/edx-platform/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// PENDING REVISIONS
// Повторения для дашборда студента.
//
// Конфигурация сервиса задаётся на уровне курса, поэтому повторения
// собираются по одному курсу за раз:
// 1. Курсы без осмысленной конфигурации пропускаются
// 2. Ожидающие повторения превращаются в карту block_id → срок
// 3. Для каждой дочерней задачи адаптивных блоков из карты строится Revision
// ═══════════════════════════════════════════════════════════════════════════

// Revision описывает задачу, которую нужно повторить.
type Revision struct {
	URL     string `json:"url"`
	Name    string `json:"name"`
	DueDate int64  `json:"due_date"`
}

// ClientProvider выдаёт клиент сервиса для курса.
type ClientProvider interface {
	ClientFor(courseID string, settings map[string]any) (adaptive.API, error)
}

// Service собирает повторения по всем курсам каталога.
type Service struct {
	catalogue *config.Catalogue
	clients   ClientProvider
	logger    *slog.Logger
}

// NewService создаёт сервис повторений.
func NewService(catalogue *config.Catalogue, clients ClientProvider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalogue: catalogue,
		clients:   clients,
		logger:    logger.With("service", "revisions"),
	}
}

// PendingRevisions возвращает повторения студента uid по всем курсам.
// Ошибка любого курса прерывает сбор.
func (s *Service) PendingRevisions(ctx context.Context, uid string) ([]Revision, error) {
	revisions := make([]Revision, 0)

	for _, course := range s.catalogue.Courses() {
		if !adaptive.IsMeaningful(course.AdaptiveLearningConfiguration) {
			continue
		}

		api, err := s.clients.ClientFor(course.ID, course.Settings())
		if err != nil {
			return nil, err
		}

		pending, err := PendingReviews(ctx, api, uid)
		if err != nil {
			return nil, fmt.Errorf("course %s: %w", course.ID, err)
		}
		if len(pending) == 0 {
			continue
		}

		courseRevisions, err := Revisions(course, pending)
		if err != nil {
			return nil, fmt.Errorf("course %s: %w", course.ID, err)
		}
		revisions = append(revisions, courseRevisions...)
	}

	s.logger.Debug("pending revisions collected", "user_id", uid, "count", len(revisions))
	return revisions, nil
}

// PendingReviews возвращает карту review_question_uid → next_review_at.
// Записи без review_question_uid пропускаются.
func PendingReviews(ctx context.Context, api adaptive.API, uid string) (map[string]string, error) {
	reviews, err := block.FetchPendingReviews(ctx, api, uid)
	if err != nil {
		return nil, err
	}

	pending := make(map[string]string, len(reviews))
	for _, review := range reviews {
		questionUID := review.String(adaptive.FieldReviewQuestionUID)
		if questionUID == "" {
			continue
		}
		pending[questionUID] = review.String(adaptive.FieldNextReviewAt)
	}
	return pending, nil
}

// Revisions строит повторение для каждой дочерней задачи адаптивных блоков
// курса, block_id которой есть в pending. Порядок: блоки, затем задачи каталога.
func Revisions(course config.Course, pending map[string]string) ([]Revision, error) {
	revisions := make([]Revision, 0)

	for _, contentBlock := range course.AdaptiveContentBlocks {
		for _, child := range contentBlock.Children {
			dueAt, ok := pending[child.BlockID]
			if !ok {
				continue
			}

			dueDate, err := timeutil.Unix(dueAt)
			if err != nil {
				return nil, fmt.Errorf("due date of %s: %w", child.BlockID, err)
			}

			revisions = append(revisions, Revision{
				URL:     childURL(course.ID, child),
				Name:    child.DisplayName,
				DueDate: dueDate,
			})
		}
	}
	return revisions, nil
}

// childURL возвращает ссылку на задачу; без явной ссылки используется jump_to_id.
func childURL(courseID string, child config.Child) string {
	if child.URL != "" {
		return child.URL
	}
	return "/courses/" + url.PathEscape(courseID) + "/jump_to_id/" + url.PathEscape(child.BlockID)
}
