// Package block содержит хост адаптивного блока контента.
package block

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/julAtWork/edx-platform/config"
	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive"
)

// ═══════════════════════════════════════════════════════════════════════════
// ADAPTIVE CONTENT BLOCK
// Адаптивный блок контента внутри юнита курса.
//
// При просмотре блока студентом:
// 1. Сервис получает событие чтения для родительского юнита
// 2. Студент связывается со всеми дочерними задачами блока
// 3. Студенту показываются только те задачи, которые сервис рекомендует повторить
// ═══════════════════════════════════════════════════════════════════════════

// Block хранит ссылку на клиент сервиса и описание блока из каталога.
type Block struct {
	api     adaptive.API
	content config.ContentBlock
	logger  *slog.Logger
}

// New создаёт хост для блока из каталога курсов.
func New(api adaptive.API, contentBlock config.ContentBlock, logger *slog.Logger) *Block {
	if logger == nil {
		logger = slog.Default()
	}

	content := contentBlock
	content.Children = make([]config.Child, len(contentBlock.Children))
	copy(content.Children, contentBlock.Children)

	return &Block{
		api:     api,
		content: content,
		logger:  logger.With("block_id", contentBlock.ID),
	}
}

// ID возвращает идентификатор блока.
func (b *Block) ID() string {
	return b.content.ID
}

// UnitID возвращает идентификатор родительского юнита.
func (b *Block) UnitID() string {
	return b.content.UnitID
}

// Children возвращает дочерние задачи блока в порядке каталога.
func (b *Block) Children() []config.Child {
	children := make([]config.Child, len(b.content.Children))
	copy(children, b.content.Children)
	return children
}

// ChildBlockIDs возвращает идентификаторы дочерних задач.
func (b *Block) ChildBlockIDs() []string {
	return b.content.ChildIDs()
}

// SendUnitViewedEvent сообщает сервису, что студент открыл родительский юнит.
func (b *Block) SendUnitViewedEvent(ctx context.Context, uid string) (adaptive.Event, error) {
	event, err := b.api.CreateReadEvent(ctx, b.content.UnitID, uid)
	if err != nil {
		return nil, fmt.Errorf("send unit viewed event: %w", err)
	}
	return event, nil
}

// LinkUserToChildren связывает студента со всеми дочерними задачами блока.
func (b *Block) LinkUserToChildren(ctx context.Context, uid string) ([]adaptive.KnowledgeNodeStudent, error) {
	links, err := b.api.CreateKnowledgeNodeStudents(ctx, b.ChildBlockIDs(), uid)
	if err != nil {
		return nil, fmt.Errorf("link user to children: %w", err)
	}
	return links, nil
}

// SelectionsForUser возвращает задачи из children, для которых у студента
// есть ожидающее повторение. Порядок children сохраняется.
func (b *Block) SelectionsForUser(ctx context.Context, uid string, children []config.Child) ([]config.Child, error) {
	reviews, err := FetchPendingReviews(ctx, b.api, uid)
	if err != nil {
		return nil, err
	}

	due := make(map[string]struct{}, len(reviews))
	for _, review := range reviews {
		if questionUID := review.String(adaptive.FieldReviewQuestionUID); questionUID != "" {
			due[questionUID] = struct{}{}
		}
	}

	selected := make([]config.Child, 0, len(due))
	for _, child := range children {
		if _, ok := due[child.BlockID]; ok {
			selected = append(selected, child)
		}
	}
	return selected, nil
}

// StudentView выполняет всё, что происходит при показе блока студенту,
// и возвращает выбранные для него задачи.
func (b *Block) StudentView(ctx context.Context, uid string) ([]config.Child, error) {
	if _, err := b.SendUnitViewedEvent(ctx, uid); err != nil {
		return nil, err
	}
	if _, err := b.LinkUserToChildren(ctx, uid); err != nil {
		return nil, err
	}

	selected, err := b.SelectionsForUser(ctx, uid, b.content.Children)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("student view rendered",
		"user_id", uid,
		"children", len(b.content.Children),
		"selected", len(selected),
	)
	return selected, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Операции, не привязанные к конкретному блоку
// ─────────────────────────────────────────────────────────────────────────────

// SendResultEvent сообщает сервису результат ответа студента на задачу blockID.
func SendResultEvent(ctx context.Context, api adaptive.API, blockID, uid, result string) (adaptive.Event, error) {
	event, err := api.CreateResultEvent(ctx, blockID, uid, result)
	if err != nil {
		return nil, fmt.Errorf("send result event: %w", err)
	}
	return event, nil
}

// FetchPendingReviews возвращает ожидающие повторения студента без изменений.
func FetchPendingReviews(ctx context.Context, api adaptive.API, uid string) ([]adaptive.PendingReview, error) {
	reviews, err := api.GetPendingReviews(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("fetch pending reviews: %w", err)
	}
	return reviews, nil
}
