package block

import (
	"context"
	"errors"
	"log/slog"

	"github.com/julAtWork/edx-platform/config"
	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive"
)

// ErrNotAdaptive возвращается для курса без настроенного сервиса.
var ErrNotAdaptive = errors.New("course is not configured for adaptive learning")

// ClientProvider выдаёт клиент сервиса для курса.
type ClientProvider interface {
	ClientFor(courseID string, settings map[string]any) (adaptive.API, error)
}

// Service находит блоки в каталоге и связывает их с клиентом курса.
type Service struct {
	catalogue *config.Catalogue
	clients   ClientProvider
	logger    *slog.Logger
}

// NewService создаёт сервис блоков.
func NewService(catalogue *config.Catalogue, clients ClientProvider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{catalogue: catalogue, clients: clients, logger: logger}
}

// Block возвращает хост блока blockID курса courseID.
func (s *Service) Block(courseID, blockID string) (*Block, error) {
	course, err := s.catalogue.Course(courseID)
	if err != nil {
		return nil, err
	}
	if !adaptive.IsMeaningful(course.AdaptiveLearningConfiguration) {
		return nil, ErrNotAdaptive
	}

	contentBlock, err := s.catalogue.ContentBlock(courseID, blockID)
	if err != nil {
		return nil, err
	}

	api, err := s.clients.ClientFor(course.ID, course.Settings())
	if err != nil {
		return nil, err
	}
	return New(api, contentBlock, s.logger.With("course_id", courseID)), nil
}

// StudentView показывает блок студенту uid и возвращает выбранные задачи.
func (s *Service) StudentView(ctx context.Context, courseID, blockID, uid string) ([]config.Child, error) {
	b, err := s.Block(courseID, blockID)
	if err != nil {
		return nil, err
	}
	return b.StudentView(ctx, uid)
}
