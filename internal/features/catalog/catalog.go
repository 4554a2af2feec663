// Package catalog — клиент каталога контента. Движку нужен только статус
// публикации: тоггл на несуществующем или неопубликованном контенте отклоняется.
package catalog

import (
	"context"
	"fmt"

	"serotonyl.ru/engagement-engine/internal/common"
)

// StatusPublished — единственный статус, на котором разрешены взаимодействия.
const StatusPublished = "published"

// Content — ответ каталога.
type Content struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Catalog возвращает контент по id.
// Нет контента — common.ErrContentNotFound, каталог недоступен — common.ErrCatalogUnavailable.
type Catalog interface {
	GetContent(ctx context.Context, id string) (*Content, error)
}

// Guard проверяет статус публикации перед тогглом.
type Guard struct {
	catalog Catalog
}

// NewGuard создаёт проверку поверх любого Catalog (обычно CachedCatalog).
func NewGuard(c Catalog) *Guard {
	return &Guard{catalog: c}
}

// EnsurePublished возвращает nil, только если контент существует и опубликован.
func (g *Guard) EnsurePublished(ctx context.Context, contentID string) error {
	content, err := g.catalog.GetContent(ctx, contentID)
	if err != nil {
		return err
	}
	if content.Status != StatusPublished {
		return fmt.Errorf("%w: %s (%s)", common.ErrContentNotPublished, contentID, content.Status)
	}
	return nil
}
