package model

import (
	"errors"
	"fmt"
	"strings"
)

// Виды ошибок предметной области. Сравнивать через errors.Is.
var (
	// ErrNotAuthenticated возвращается при отсутствии или недействительности идентичности.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrValidationFailed возвращается при нарушении ограничений промокода, адреса или количества.
	ErrValidationFailed = errors.New("validation failed")
	// ErrStockInsufficient возвращается, если хотя бы одной позиции не хватает на складе.
	ErrStockInsufficient = errors.New("stock insufficient")
	// ErrStoreUnavailable означает отказ хранилища; частичных изменений при этом нет.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound возвращается, если запрошенная сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition возвращается при недопустимой смене статуса заказа.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrAlreadyExists возвращается при создании сущности с занятым ключом.
	ErrAlreadyExists = errors.New("already exists")
)

// PromoError описывает типизированный отказ в применении промокода.
type PromoError struct {
	Code   string
	Reason PromoReason
}

func (e *PromoError) Error() string {
	return fmt.Sprintf("promo code %q rejected: %s", e.Code, e.Reason)
}

func (e *PromoError) Unwrap() error {
	return ErrValidationFailed
}

// StockShortage описывает недоступную позицию заказа.
type StockShortage struct {
	Variant      VariantKey `json:"variant"`
	RequestedQty int        `json:"requestedQty"`
	AvailableQty int        `json:"availableQty"`
}

// StockError перечисляет все позиции, которых не хватает на складе.
type StockError struct {
	Shortages []StockShortage
}

func (e *StockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s requested %d available %d", s.Variant, s.RequestedQty, s.AvailableQty))
	}
	return "stock insufficient: " + strings.Join(parts, "; ")
}

func (e *StockError) Unwrap() error {
	return ErrStockInsufficient
}

// FieldError описывает нарушение ограничения во входных данных.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// InputError описывает ошибку валидации входных данных с перечнем полей.
type InputError struct {
	Fields []FieldError
}

func (e *InputError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

func (e *InputError) Unwrap() error {
	return ErrValidationFailed
}

// NewInputError создаёт ошибку валидации для одного поля.
func NewInputError(field, reason string) *InputError {
	return &InputError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

// StoreFailure оборачивает ошибку хранилища в ErrStoreUnavailable, сохраняя исходную причину.
func StoreFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
