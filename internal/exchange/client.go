package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"margin_bot/internal/models"
)

// Client — всё, что бот делает с биржей. Ордера не идемпотентны: вызывающий не ретраит.
type Client interface {
	PlaceBuy(ctx context.Context, symbol string, quoteQty float64) (models.Fill, error)
	PlaceSell(ctx context.Context, symbol string, qty float64) (models.Fill, error)
	GetBalance(ctx context.Context, asset string) (float64, error)
	Balances(ctx context.Context) (map[string]float64, error)
	TopSymbols(ctx context.Context, quote string, n int) ([]models.Symbol, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)

	// последняя цена из стрима (для paper-филлов и API)
	SetPrice(symbol string, price float64)
	GetPrice(symbol string) float64
}

const (
	ModeLive  = "live"
	ModePaper = "paper"
)

var ErrNoPrice = errors.New("no price for symbol")

// APIError — ошибка биржи с её кодом.
type APIError struct {
	Status int
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance http %d: code=%d msg=%s", e.Status, e.Code, e.Msg)
}

type Config struct {
	Mode       string
	BaseURL    string
	WSURL      string
	APIKey     string
	APISecret  string
	QuoteAsset string
	Timeout    time.Duration

	// paper
	PaperBalance float64
	PaperFeePct  float64
}

// New собирает клиента по режиму: live — реальные ордера, paper — симуляция на живых ценах.
func New(cfg Config) (Client, error) {
	pub := NewBinance(BinanceConfig{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		Timeout:   cfg.Timeout,
	})
	switch cfg.Mode {
	case ModeLive:
		if cfg.APIKey == "" || cfg.APISecret == "" {
			return nil, errors.New("exchange: live mode requires api key and secret")
		}
		return pub, nil
	case ModePaper, "":
		return NewPaper(PaperConfig{
			QuoteAsset: cfg.QuoteAsset,
			Balance:    cfg.PaperBalance,
			FeePct:     cfg.PaperFeePct,
		}, pub), nil
	default:
		return nil, fmt.Errorf("exchange: unknown mode %q", cfg.Mode)
	}
}
