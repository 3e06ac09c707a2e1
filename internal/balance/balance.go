package balance

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/opentracing/opentracing-go"

	"margin_bot/internal/models"
)

// Reader — единственная внешняя зависимость гейта: свободный баланс по котируемой валюте.
type Reader interface {
	GetBalance(ctx context.Context, asset string) (float64, error)
}

type Config struct {
	Asset   string
	Timeout time.Duration
}

// Decision — результат проверки баланса.
type Decision struct {
	OK        bool    `json:"ok"`
	Asset     string  `json:"asset"`
	Available float64 `json:"available"`
	Required  float64 `json:"required"`
	Slots     int     `json:"slots"`
}

type Gate struct {
	reader  Reader
	asset   string
	timeout time.Duration
}

func NewGate(reader Reader, cfg Config) *Gate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Asset == "" {
		cfg.Asset = "USDC"
	}
	return &Gate{reader: reader, asset: cfg.Asset, timeout: cfg.Timeout}
}

// RequiredSlots — сколько слотов ещё можно открыть.
func RequiredSlots(maxOpen, active int) int {
	if r := maxOpen - active; r > 0 {
		return r
	}
	return 0
}

// Authorize проверяет, что свободного баланса asset хватает на requiredSlots ордеров по quoteOrderQty.
// asset берётся из снапшота настроек тика; пустой — валюта из конфига.
// Ошибка чтения баланса — это ошибка, а не OK=false: вызывающий сам решает, что делать.
func (g *Gate) Authorize(ctx context.Context, asset string, requiredSlots int, quoteOrderQty float64) (Decision, error) {
	return g.authorize(ctx, g.assetOr(asset), requiredSlots, quoteOrderQty, false)
}

// Check — проверка "на все оставшиеся слоты", как при включении торговли и в /balance.
// Баланс читается всегда, даже когда свободных слотов нет.
func (g *Gate) Check(ctx context.Context, st models.RuntimeTradingSettings, activeOrders int) (Decision, error) {
	return g.authorize(ctx, g.assetOr(st.QuoteAsset), RequiredSlots(st.MaxOpenTrades, activeOrders), st.QuoteOrderQty, true)
}

func (g *Gate) assetOr(asset string) string {
	if asset == "" {
		return g.asset
	}
	return asset
}

func (g *Gate) authorize(ctx context.Context, asset string, slots int, qty float64, read bool) (d Decision, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("balance.Authorize: %w", err)
		}
	}()

	if slots < 0 {
		slots = 0
	}
	required := float64(slots) * qty
	d = Decision{Asset: asset, Required: required, Slots: slots}

	// ноль слотов ничего не требует, биржу не дёргаем
	if slots == 0 && !read {
		d.OK = true
		return d, nil
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "balance.authorize")
	defer span.Finish()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	available, err := g.reader.GetBalance(ctx, asset)
	if err != nil {
		return d, err
	}
	if math.IsNaN(available) {
		return d, fmt.Errorf("balance for %s is NaN", asset)
	}

	d.Available = available
	d.OK = available >= required
	return d, nil
}
