// Package service реализует бизнес-логику состояния витрины:
// синхронизацию корзины и избранного, оформление заказов и их жизненный цикл.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-state/internal/model"
	"github.com/mmeshcher/storefront-state/internal/reconcile"
	"github.com/mmeshcher/storefront-state/internal/repository"
	"github.com/mmeshcher/storefront-state/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	reconcile.Store
	repository.TransactionManager

	Close() error
	Ping(ctx context.Context) error
	AddCartRow(ctx context.Context, row model.CartRow, maxQty int) (model.CartRow, error)
	DeleteCartRow(ctx context.Context, userID string, key model.VariantKey) error
	DeleteFavorite(ctx context.Context, userID, productID string) error
	SetStock(ctx context.Context, key model.VariantKey, qty int) (model.StockRecord, error)
	CreatePromoCode(ctx context.Context, p model.PromoCode) (*model.PromoCode, error)
	GetPromoCode(ctx context.Context, code string) (*model.PromoCode, error)
	HasUserUsedPromo(ctx context.Context, userID string, promoID int64) (bool, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)
}

// Enricher дополняет ответы данными каталога.
type Enricher interface {
	EnrichCart(ctx context.Context, rows []model.CartRow) []model.EnrichedCartRow
	EnrichFavorites(ctx context.Context, rows []model.FavoriteRow) []model.EnrichedFavorite
}

// Clock возвращает текущее время.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Settings содержит параметры оформления заказа.
type Settings struct {
	ShippingFee  decimal.Decimal
	OrderTimeout time.Duration
}

// Service содержит бизнес-логику состояния витрины.
type Service struct {
	repo      Repository
	engine    *reconcile.Engine
	enricher  Enricher
	validator *validation.Validator
	logger    *zap.Logger
	clock     Clock
	settings  Settings
}

// NewService создаёт сервис поверх явно созданного хранилища.
func NewService(repo Repository, enricher Enricher, logger *zap.Logger, settings Settings) *Service {
	if settings.OrderTimeout <= 0 {
		settings.OrderTimeout = 10 * time.Second
	}
	return &Service{
		repo:      repo,
		engine:    reconcile.NewEngine(repo, logger),
		enricher:  enricher,
		validator: validation.New(),
		logger:    logger,
		clock:     realClock{},
		settings:  settings,
	}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(c Clock) *Service {
	s.clock = c
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return model.StoreFailure("ping", err)
	}
	return nil
}

// domainError возвращает типизированные ошибки как есть, остальное считает отказом хранилища.
func domainError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrValidationFailed),
		errors.Is(err, model.ErrStockInsufficient),
		errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrAlreadyExists),
		errors.Is(err, model.ErrNotAuthenticated),
		errors.Is(err, model.ErrStoreUnavailable):
		return err
	default:
		return model.StoreFailure(op, err)
	}
}

func requireUser(userID string) error {
	if userID == "" {
		return model.ErrNotAuthenticated
	}
	return nil
}
