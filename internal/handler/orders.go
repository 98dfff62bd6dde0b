package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront-state/internal/model"
)

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

func orderIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(urlParam(r, "orderID"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// CreateOrder оформляет заказ текущего пользователя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var req model.OrderRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, "create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// GetOrders возвращает список заказов текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	orders, err := h.service.GetOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get orders", err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder возвращает заказ текущего пользователя.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDFromRequest(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeError(w, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CancelOrder отменяет заказ текущего пользователя.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDFromRequest(w, r)
	if !ok {
		return
	}

	order, err := h.service.CancelOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeError(w, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type promoValidateRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// ValidatePromo проверяет промокод без его применения.
func (h *Handler) ValidatePromo(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var req promoValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	quote, err := h.service.ValidatePromo(r.Context(), userID, req.Code, req.Subtotal)
	if err != nil {
		h.writeError(w, "validate promo", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

type statusRequest struct {
	Status model.OrderStatus `json:"status"`
}

// UpdateOrderStatus меняет статус заказа. Доступно администратору.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromRequest(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), orderID, req.Status)
	if err != nil {
		h.writeError(w, "update order status", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type stockRequest struct {
	model.VariantKey
	AvailableQuantity int `json:"availableQuantity"`
}

type stockResponse struct {
	model.VariantKey
	AvailableQuantity int       `json:"availableQuantity"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// SetStock задаёт остаток варианта.
func (h *Handler) SetStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	rec, err := h.service.SetStock(r.Context(), req.VariantKey, req.AvailableQuantity)
	if err != nil {
		h.writeError(w, "set stock", err)
		return
	}
	writeJSON(w, http.StatusOK, stockResponse{
		VariantKey:        rec.Variant,
		AvailableQuantity: rec.AvailableQuantity,
		UpdatedAt:         rec.UpdatedAt,
	})
}

type promoCodeRequest struct {
	Code       string           `json:"code"`
	Type       model.PromoType  `json:"type"`
	Value      decimal.Decimal  `json:"value"`
	MinAmount  *decimal.Decimal `json:"minAmount,omitempty"`
	ValidFrom  time.Time        `json:"validFrom"`
	ValidUntil time.Time        `json:"validUntil"`
	MaxUses    *int             `json:"maxUses,omitempty"`
	Active     *bool            `json:"active,omitempty"`
}

type promoCodeResponse struct {
	ID         int64            `json:"id"`
	Code       string           `json:"code"`
	Type       model.PromoType  `json:"type"`
	Value      decimal.Decimal  `json:"value"`
	MinAmount  *decimal.Decimal `json:"minAmount,omitempty"`
	ValidFrom  time.Time        `json:"validFrom"`
	ValidUntil time.Time        `json:"validUntil"`
	MaxUses    *int             `json:"maxUses,omitempty"`
	UsedCount  int              `json:"usedCount"`
	Active     bool             `json:"active"`
}

// CreatePromoCode создаёт промокод. Без поля active промокод создаётся активным.
func (h *Handler) CreatePromoCode(w http.ResponseWriter, r *http.Request) {
	var req promoCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	p, err := h.service.CreatePromoCode(r.Context(), model.PromoCode{
		Code:       req.Code,
		Type:       req.Type,
		Value:      req.Value,
		MinAmount:  req.MinAmount,
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
		MaxUses:    req.MaxUses,
		Active:     active,
	})
	if err != nil {
		h.writeError(w, "create promo code", err)
		return
	}

	writeJSON(w, http.StatusCreated, promoCodeResponse{
		ID:         p.ID,
		Code:       p.Code,
		Type:       p.Type,
		Value:      p.Value,
		MinAmount:  p.MinAmount,
		ValidFrom:  p.ValidFrom,
		ValidUntil: p.ValidUntil,
		MaxUses:    p.MaxUses,
		UsedCount:  p.UsedCount,
		Active:     p.Active,
	})
}
