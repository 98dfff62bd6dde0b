package catalog

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/storefront-state/internal/model"
)

const maxParallelLookups = 8

// ProductSource возвращает данные товара по идентификатору.
type ProductSource interface {
	GetProduct(ctx context.Context, productID string) (*model.ProductInfo, error)
}

// Enricher дополняет строки корзины и избранного данными каталога.
// Недоступность каталога не является ошибкой: строки возвращаются без данных товара.
type Enricher struct {
	source ProductSource
	logger *zap.Logger
}

// NewEnricher создаёт обогатитель. source может быть nil, тогда обогащение отключено.
func NewEnricher(source ProductSource, logger *zap.Logger) *Enricher {
	return &Enricher{source: source, logger: logger}
}

// EnrichCart возвращает строки корзины с данными каталога.
func (e *Enricher) EnrichCart(ctx context.Context, rows []model.CartRow) []model.EnrichedCartRow {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.Variant.ProductID)
	}
	products := e.lookup(ctx, ids)

	result := make([]model.EnrichedCartRow, 0, len(rows))
	for _, r := range rows {
		result = append(result, model.EnrichedCartRow{
			Variant:   r.Variant,
			Quantity:  r.Quantity,
			UnitPrice: r.UnitPrice,
			Product:   products[r.Variant.ProductID],
		})
	}
	return result
}

// EnrichFavorites возвращает избранное с данными каталога.
func (e *Enricher) EnrichFavorites(ctx context.Context, rows []model.FavoriteRow) []model.EnrichedFavorite {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProductID)
	}
	products := e.lookup(ctx, ids)

	result := make([]model.EnrichedFavorite, 0, len(rows))
	for _, r := range rows {
		result = append(result, model.EnrichedFavorite{
			ProductID: r.ProductID,
			Product:   products[r.ProductID],
		})
	}
	return result
}

func (e *Enricher) lookup(ctx context.Context, ids []string) map[string]*model.ProductInfo {
	products := make(map[string]*model.ProductInfo, len(ids))
	if e == nil || e.source == nil || len(ids) == 0 {
		return products
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		g.Go(func() error {
			p, err := e.source.GetProduct(gctx, id)
			if err != nil {
				if !errors.Is(err, ErrProductNotFound) {
					e.logger.Warn("catalog lookup failed", zap.String("productID", id), zap.Error(err))
				}
				return nil
			}
			mu.Lock()
			products[id] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return products
}
