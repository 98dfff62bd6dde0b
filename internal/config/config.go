// Package config содержит логику чтения конфигурации сервиса состояния витрины.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultRunAddress   = "localhost:8080"
	defaultOrderTimeout = 10 * time.Second
)

var defaultShippingFee = decimal.RequireFromString("5.00")

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress     string          `env:"RUN_ADDRESS"`
	DatabaseURI    string          `env:"DATABASE_URI"`
	CatalogAddress string          `env:"CATALOG_ADDRESS"`
	SessionSecret  string          `env:"SESSION_SECRET"`
	ShippingFee    decimal.Decimal `env:"SHIPPING_FEE"`
	OrderTimeout   time.Duration   `env:"ORDER_TIMEOUT"`
}

// Parse считывает конфигурацию из флагов командной строки, файла .env и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory store if empty")
	flag.StringVar(&cfg.CatalogAddress, "c", "", "catalog service address")
	flag.StringVar(&cfg.SessionSecret, "s", "", "session token signing key")
	flag.TextVar(&cfg.ShippingFee, "f", defaultShippingFee, "flat shipping fee")
	flag.DurationVar(&cfg.OrderTimeout, "t", defaultOrderTimeout, "order transaction timeout")

	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.OrderTimeout <= 0 {
		return nil, fmt.Errorf("order timeout must be positive, got %s", cfg.OrderTimeout)
	}
	if cfg.ShippingFee.IsNegative() {
		return nil, fmt.Errorf("shipping fee must not be negative, got %s", cfg.ShippingFee)
	}

	return cfg, nil
}
