package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"margin_bot/internal/balance"
	"margin_bot/internal/models"
	"margin_bot/internal/replacement"
	"margin_bot/internal/slots"
	"margin_bot/internal/strategy"
	"margin_bot/pkg/logger"
)

// Exchange — ордерные ноги. Ордера не идемпотентны, раннер их не ретраит.
type Exchange interface {
	PlaceBuy(ctx context.Context, symbol string, quoteQty float64) (models.Fill, error)
	PlaceSell(ctx context.Context, symbol string, qty float64) (models.Fill, error)
}

type SettingsSource interface {
	Current() models.RuntimeTradingSettings
}

type Authorizer interface {
	Authorize(ctx context.Context, asset string, requiredSlots int, quoteOrderQty float64) (balance.Decision, error)
	Check(ctx context.Context, st models.RuntimeTradingSettings, activeOrders int) (balance.Decision, error)
}

// Publisher — неблокирующая публикация событий.
type Publisher interface {
	Publish(e models.Event)
}

type Config struct {
	OrderTimeout   time.Duration // таймаут одной ордерной ноги
	CloseParallel  int           // сколько закрытий одновременно в фазе выходов
	BatchQueue     int
	HealthInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		OrderTimeout:   10 * time.Second,
		CloseParallel:  4,
		BatchQueue:     8,
		HealthInterval: 5 * time.Minute,
	}
}

type Runner struct {
	cfg Config

	table    *slots.Table
	scorer   *strategy.ScoreEngine
	repl     *replacement.Engine
	gate     Authorizer
	ex       Exchange
	settings SettingsSource
	pub      Publisher

	now func() time.Time

	tickMu sync.Mutex                       // один тик за раз
	cache  map[string]models.SignalSnapshot // последний снапшот по символу, под tickMu

	tradingOpen atomic.Bool
	lastTick    atomic.Int64
	ticks       atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Deps struct {
	Table    *slots.Table
	Scorer   *strategy.ScoreEngine
	Repl     *replacement.Engine
	Gate     Authorizer
	Exchange Exchange
	Settings SettingsSource
	Pub      Publisher
	Now      func() time.Time
}

func New(cfg Config, d Deps) *Runner {
	def := DefaultConfig()
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = def.OrderTimeout
	}
	if cfg.CloseParallel <= 0 {
		cfg.CloseParallel = def.CloseParallel
	}
	if cfg.BatchQueue <= 0 {
		cfg.BatchQueue = def.BatchQueue
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = def.HealthInterval
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	r := &Runner{
		cfg:      cfg,
		table:    d.Table,
		scorer:   d.Scorer,
		repl:     d.Repl,
		gate:     d.Gate,
		ex:       d.Exchange,
		settings: d.Settings,
		pub:      d.Pub,
		now:      d.Now,
		cache:    make(map[string]models.SignalSnapshot),
	}
	r.tradingOpen.Store(true)
	return r
}

// Start запускает цикл тиков по батчам из фида.
// Торговля открывается, только если баланса хватает на свободные слоты.
func (r *Runner) Start(parent context.Context, batches <-chan []models.SignalSnapshot) {
	r.ctx, r.cancel = context.WithCancel(parent)

	if _, err := r.EnableTrading(r.ctx); err != nil {
		r.SetTradingOpen(false)
		logger.Warn("[RUNNER] trading stays closed: %v", err)
	}

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.Run(r.ctx, batches)
	}()
	go func() {
		defer r.wg.Done()
		r.healthLoop(r.ctx)
	}()
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Run — один батч = один тик.
func (r *Runner) Run(ctx context.Context, batches <-chan []models.SignalSnapshot) {
	logger.Info("[RUNNER] ▶️ tick loop started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("[RUNNER] tick loop stopped")
			return
		case batch, ok := <-batches:
			if !ok {
				logger.Info("[RUNNER] batch channel closed")
				return
			}
			r.Tick(ctx, batch)
		}
	}
}

func (r *Runner) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := r.settings.Current()
			logger.Info("[HEALTH] ticks=%d | slots=%d/%d | trading=%v | replacements/h=%d",
				r.ticks.Load(), r.table.ActiveCount(), st.MaxOpenTrades, r.TradingOpen(),
				r.repl.Ledger().CountLastHour(r.now()))
		}
	}
}

// SetTradingOpen — рубильник: выключенная торговля только закрывает позиции.
func (r *Runner) SetTradingOpen(v bool) {
	old := r.tradingOpen.Swap(v)
	if old != v {
		logger.Info("[RUNNER] trading open=%v", v)
	}
}

// EnableTrading открывает торговлю после проверки баланса на все свободные слоты.
// При нехватке торговля не меняется, публикуется insufficientBalance и возвращается ErrInsufficientBalance.
func (r *Runner) EnableTrading(ctx context.Context) (balance.Decision, error) {
	st := r.settings.Current()
	dec, err := r.gate.Check(ctx, st, r.table.ActiveCount())
	if err != nil {
		return dec, err
	}
	if !dec.OK {
		logger.Warn("[BALANCE] trading not started: available %.2f %s < required %.2f",
			dec.Available, dec.Asset, dec.Required)
		r.publish(models.Event{
			Kind:      models.EventInsufficientBalance,
			Available: dec.Available,
			Required:  dec.Required,
			Message:   "trading not started",
		})
		return dec, models.ErrInsufficientBalance
	}
	r.SetTradingOpen(true)
	return dec, nil
}

func (r *Runner) TradingOpen() bool { return r.tradingOpen.Load() }

func (r *Runner) LastTick() time.Time {
	u := r.lastTick.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(0, u)
}

func (r *Runner) Table() *slots.Table { return r.table }

// Snapshots — последний известный вид рынка (для API).
func (r *Runner) Snapshots() []models.SignalSnapshot {
	r.tickMu.Lock()
	view := make(map[string]models.SignalSnapshot, len(r.cache))
	for k, v := range r.cache {
		view[k] = v
	}
	r.tickMu.Unlock()
	return r.scorer.Freeze(view, r.settings.Current())
}

func (r *Runner) publish(e models.Event) {
	if r.pub == nil {
		return
	}
	if e.At.IsZero() {
		e.At = r.now()
	}
	r.pub.Publish(e)
}
