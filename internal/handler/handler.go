// Package handler содержит HTTP-обработчики API сервиса состояния витрины.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-state/internal/middleware"
	"github.com/mmeshcher/storefront-state/internal/model"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	SyncCart(ctx context.Context, userID string, rows []model.ClientCartRow) ([]model.EnrichedCartRow, error)
	SyncFavorites(ctx context.Context, userID string, rows []model.ClientFavoriteRow) ([]model.EnrichedFavorite, error)
	GetCart(ctx context.Context, userID string) ([]model.EnrichedCartRow, error)
	GetFavorites(ctx context.Context, userID string) ([]model.EnrichedFavorite, error)
	AddCartItem(ctx context.Context, userID string, item model.ClientCartRow) (model.CartRow, error)
	SetCartItemQuantity(ctx context.Context, userID string, key model.VariantKey, qty int) (model.CartRow, error)
	RemoveCartItem(ctx context.Context, userID string, key model.VariantKey) error
	AddFavorite(ctx context.Context, userID, productID string) error
	RemoveFavorite(ctx context.Context, userID, productID string) error

	CreateOrder(ctx context.Context, userID string, req model.OrderRequest) (*model.Order, error)
	GetOrders(ctx context.Context, userID string) ([]model.Order, error)
	GetOrder(ctx context.Context, userID string, orderID uuid.UUID) (*model.Order, error)
	CancelOrder(ctx context.Context, userID string, orderID uuid.UUID) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) (*model.Order, error)

	ValidatePromo(ctx context.Context, userID, code string, subtotal decimal.Decimal) (*model.PromoQuote, error)
	CreatePromoCode(ctx context.Context, p model.PromoCode) (*model.PromoCode, error)
	SetStock(ctx context.Context, key model.VariantKey, qty int) (model.StockRecord, error)
	Ping(ctx context.Context) error
}

// Handler реализует HTTP-обработчики API сервиса состояния витрины.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Error     string             `json:"error"`
	Fields    []model.FieldError `json:"fields,omitempty"`
	Code      string             `json:"code,omitempty"`
	Reason    model.PromoReason  `json:"reason,omitempty"`
	Shortages []shortageResponse `json:"shortages,omitempty"`
}

type shortageResponse struct {
	ProductID    string `json:"productId"`
	ColorName    string `json:"colorName"`
	SizeName     string `json:"sizeName"`
	RequestedQty int    `json:"requestedQty"`
	AvailableQty int    `json:"availableQty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func userFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

// writeError переводит ошибки предметной области в HTTP-ответ.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var (
		promoErr *model.PromoError
		inputErr *model.InputError
		stockErr *model.StockError
	)

	switch {
	case errors.As(err, &promoErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "promo_rejected",
			Code:   promoErr.Code,
			Reason: promoErr.Reason,
		})
	case errors.As(err, &inputErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "validation_failed",
			Fields: inputErr.Fields,
		})
	case errors.As(err, &stockErr):
		resp := errorResponse{Error: "stock_insufficient"}
		for _, s := range stockErr.Shortages {
			resp.Shortages = append(resp.Shortages, shortageResponse{
				ProductID:    s.Variant.ProductID,
				ColorName:    s.Variant.ColorName,
				SizeName:     s.Variant.SizeName,
				RequestedQty: s.RequestedQty,
				AvailableQty: s.AvailableQty,
			})
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, model.ErrNotAuthenticated):
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	case errors.Is(err, model.ErrValidationFailed):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation_failed"})
	case errors.Is(err, model.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "invalid_transition"})
	case errors.Is(err, model.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "already_exists"})
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, model.ErrStoreUnavailable):
		h.logger.Error(op+" error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
	default:
		h.logger.Error(op+" error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// Ping сообщает о доступности хранилища.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.writeError(w, "ping", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type cartSyncRequest struct {
	Items []model.ClientCartRow `json:"items"`
}

type favoritesSyncRequest struct {
	Items []model.ClientFavoriteRow `json:"items"`
}

// SyncCart сливает клиентский снимок корзины с серверным состоянием.
func (h *Handler) SyncCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var req cartSyncRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	rows, err := h.service.SyncCart(r.Context(), userID, req.Items)
	if err != nil {
		h.writeError(w, "sync cart", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

// SyncFavorites объединяет клиентский снимок избранного с серверным.
func (h *Handler) SyncFavorites(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var req favoritesSyncRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	rows, err := h.service.SyncFavorites(r.Context(), userID, req.Items)
	if err != nil {
		h.writeError(w, "sync favorites", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

// GetCart возвращает корзину текущего пользователя.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	rows, err := h.service.GetCart(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get cart", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

// GetFavorites возвращает избранное текущего пользователя.
func (h *Handler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	rows, err := h.service.GetFavorites(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get favorites", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func cartRowResponse(row model.CartRow) model.EnrichedCartRow {
	return model.EnrichedCartRow{
		Variant:   row.Variant,
		Quantity:  row.Quantity,
		UnitPrice: row.UnitPrice,
	}
}

// AddCartItem добавляет товар в корзину.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var item model.ClientCartRow
	if err := decodeJSON(r, &item); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	row, err := h.service.AddCartItem(r.Context(), userID, item)
	if err != nil {
		h.writeError(w, "add cart item", err)
		return
	}
	writeJSON(w, http.StatusOK, cartRowResponse(row))
}

type cartQuantityRequest struct {
	model.VariantKey
	Quantity int `json:"quantity"`
}

// SetCartItemQuantity задаёт количество товара в корзине. Нулевое количество удаляет строку.
func (h *Handler) SetCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var req cartQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	row, err := h.service.SetCartItemQuantity(r.Context(), userID, req.VariantKey, req.Quantity)
	if err != nil {
		h.writeError(w, "set cart quantity", err)
		return
	}
	if req.Quantity == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, cartRowResponse(row))
}

// RemoveCartItem удаляет вариант товара из корзины. Ключ передаётся в query.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	key := model.VariantKey{
		ProductID: q.Get("productId"),
		ColorName: q.Get("colorName"),
		SizeName:  q.Get("sizeName"),
	}

	if err := h.service.RemoveCartItem(r.Context(), userID, key); err != nil {
		h.writeError(w, "remove cart item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddFavorite добавляет товар в избранное.
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.AddFavorite(r.Context(), userID, urlParam(r, "productID")); err != nil {
		h.writeError(w, "add favorite", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveFavorite удаляет товар из избранного.
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveFavorite(r.Context(), userID, urlParam(r, "productID")); err != nil {
		h.writeError(w, "remove favorite", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
