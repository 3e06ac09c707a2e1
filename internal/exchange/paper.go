package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"margin_bot/internal/models"
)

type PaperConfig struct {
	QuoteAsset string
	Balance    float64
	FeePct     float64 // комиссия в % от суммы сделки
}

// marketData — то, что paper берёт у настоящей биржи.
type marketData interface {
	TopSymbols(ctx context.Context, quote string, n int) ([]models.Symbol, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
	SetPrice(symbol string, price float64)
	GetPrice(symbol string) float64
}

// Paper — симуляция исполнения по последней цене стрима. Балансы в памяти.
type Paper struct {
	cfg    PaperConfig
	market marketData
	seq    atomic.Int64

	mu       sync.Mutex
	balances map[string]float64
}

func NewPaper(cfg PaperConfig, market marketData) *Paper {
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDC"
	}
	return &Paper{
		cfg:      cfg,
		market:   market,
		balances: map[string]float64{cfg.QuoteAsset: cfg.Balance},
	}
}

func (p *Paper) PlaceBuy(ctx context.Context, symbol string, quoteQty float64) (models.Fill, error) {
	if err := ctx.Err(); err != nil {
		return models.Fill{}, err
	}
	price := p.market.GetPrice(symbol)
	if price <= 0 {
		return models.Fill{}, fmt.Errorf("paper buy %s: %w", symbol, ErrNoPrice)
	}
	if quoteQty <= 0 {
		return models.Fill{}, fmt.Errorf("paper buy %s: quoteQty <= 0", symbol)
	}
	base := p.base(symbol)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.balances[p.cfg.QuoteAsset] < quoteQty {
		return models.Fill{}, fmt.Errorf("paper buy %s: %w", symbol, models.ErrInsufficientBalance)
	}
	qty := quoteQty * (1 - p.cfg.FeePct/100) / price
	p.balances[p.cfg.QuoteAsset] -= quoteQty
	p.balances[base] += qty

	return models.Fill{
		OrderID:  p.nextID(),
		Symbol:   symbol,
		Side:     models.SideBuy,
		Price:    price,
		Quantity: qty,
		QuoteQty: quoteQty,
	}, nil
}

func (p *Paper) PlaceSell(ctx context.Context, symbol string, qty float64) (models.Fill, error) {
	if err := ctx.Err(); err != nil {
		return models.Fill{}, err
	}
	price := p.market.GetPrice(symbol)
	if price <= 0 {
		return models.Fill{}, fmt.Errorf("paper sell %s: %w", symbol, ErrNoPrice)
	}
	base := p.base(symbol)

	p.mu.Lock()
	defer p.mu.Unlock()
	// после рестарта в памяти может не быть базового актива — продаём что просили
	if have := p.balances[base]; have > 0 && have < qty {
		qty = have
	}
	quote := qty * price * (1 - p.cfg.FeePct/100)
	p.balances[base] -= qty
	if p.balances[base] <= 0 {
		delete(p.balances, base)
	}
	p.balances[p.cfg.QuoteAsset] += quote

	return models.Fill{
		OrderID:  p.nextID(),
		Symbol:   symbol,
		Side:     models.SideSell,
		Price:    price,
		Quantity: qty,
		QuoteQty: quote,
	}, nil
}

func (p *Paper) GetBalance(_ context.Context, asset string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[asset], nil
}

func (p *Paper) Balances(_ context.Context) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]float64, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out, nil
}

func (p *Paper) TopSymbols(ctx context.Context, quote string, n int) ([]models.Symbol, error) {
	return p.market.TopSymbols(ctx, quote, n)
}

func (p *Paper) Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	return p.market.Klines(ctx, symbol, interval, limit)
}

func (p *Paper) SetPrice(symbol string, price float64) { p.market.SetPrice(symbol, price) }

func (p *Paper) GetPrice(symbol string) float64 { return p.market.GetPrice(symbol) }

func (p *Paper) base(symbol string) string {
	return strings.TrimSuffix(symbol, p.cfg.QuoteAsset)
}

func (p *Paper) nextID() string {
	return "paper-" + strconv.FormatInt(p.seq.Add(1), 10)
}
