// Package model содержит доменные сущности сервиса состояния витрины:
// корзину, избранное, складские остатки, промокоды и заказы.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuantity ограничивает количество в строке корзины и позиции заказа.
// MaxCount ограничивает остатки и счётчики промокодов столбцом INTEGER.
const (
	MaxQuantity = 1000
	MaxCount    = 1<<31 - 1
)

// MaxMoney наибольшая сумма, которая помещается в NUMERIC(12,2).
var MaxMoney = decimal.RequireFromString("9999999999.99")

// VariantKey идентифицирует вариант товара, единицу складского учёта.
type VariantKey struct {
	ProductID string `json:"productId" validate:"required,max=64"`
	ColorName string `json:"colorName" validate:"required,max=64"`
	SizeName  string `json:"sizeName" validate:"required,max=32"`
}

// String возвращает ключ в виде productID/color/size для логов и сообщений.
func (k VariantKey) String() string {
	return k.ProductID + "/" + k.ColorName + "/" + k.SizeName
}

// CartRow описывает строку корзины пользователя.
// Естественный ключ: (UserID, ProductID, ColorName, SizeName).
type CartRow struct {
	UserID    string
	Variant   VariantKey
	Quantity  int
	UnitPrice decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key возвращает естественный ключ строки корзины в пределах пользователя.
func (r CartRow) Key() VariantKey {
	return r.Variant
}

// FavoriteRow описывает товар в избранном. Естественный ключ: (UserID, ProductID).
type FavoriteRow struct {
	UserID    string
	ProductID string
	CreatedAt time.Time
}

// ClientCartRow описывает строку корзины из клиентского снимка. Данным не доверяем.
type ClientCartRow struct {
	VariantKey
	Quantity int             `json:"quantity" validate:"gte=0,lte=1000"`
	Price    decimal.Decimal `json:"price" validate:"gte=0,lte=9999999999.99"`
}

// ClientFavoriteRow описывает строку избранного из клиентского снимка.
type ClientFavoriteRow struct {
	ProductID string `json:"productId" validate:"required,max=64"`
}

// StockRecord хранит доступный остаток варианта. AvailableQuantity никогда не бывает отрицательным.
type StockRecord struct {
	Variant           VariantKey
	AvailableQuantity int
	UpdatedAt         time.Time
}

// ProductInfo содержит отображаемые данные товара из каталога.
type ProductInfo struct {
	ProductID    string          `json:"productId"`
	Name         string          `json:"name"`
	Image        string          `json:"image,omitempty"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
}

// EnrichedCartRow описывает строку корзины с данными каталога. Product может быть nil,
// если каталог недоступен или товар не найден.
type EnrichedCartRow struct {
	Variant   VariantKey      `json:"variant"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Product   *ProductInfo    `json:"product,omitempty"`
}

// EnrichedFavorite описывает товар из избранного с данными каталога.
type EnrichedFavorite struct {
	ProductID string       `json:"productId"`
	Product   *ProductInfo `json:"product,omitempty"`
}

// NormalizePromoCode приводит промокод к каноническому виду: коды нечувствительны к регистру.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
