package market

import (
	"context"
	"sort"
	"sync"
	"time"

	"margin_bot/internal/models"
	"margin_bot/internal/predict"
	"margin_bot/pkg/logger"
)

type Enricher interface {
	Enrich(ctx context.Context, snaps []models.SignalSnapshot, hist predict.History, st models.RuntimeTradingSettings) []models.SignalSnapshot
}

type SettingsSource interface {
	Current() models.RuntimeTradingSettings
}

// Tracker — отметки для /healthz.
type Tracker interface {
	TouchTick(t time.Time)
}

type Config struct {
	Interval     string
	TickInterval time.Duration
	HistorySize  int // сколько закрытых свечей держим на символ
}

// Hub собирает свечи из стрима и раз в тик отдаёт батч снапшотов раннеру.
type Hub struct {
	cfg      Config
	enricher Enricher
	settings SettingsSource
	tracker  Tracker
	out      chan<- []models.SignalSnapshot
	now      func() time.Time

	agg *candleAgg

	mu      sync.RWMutex
	series  map[string]*Series
	history map[string][]models.Candle
	price   map[string]float64
}

func NewHub(cfg Config, enricher Enricher, settings SettingsSource, tracker Tracker, out chan<- []models.SignalSnapshot) *Hub {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	return &Hub{
		cfg:      cfg,
		enricher: enricher,
		settings: settings,
		tracker:  tracker,
		out:      out,
		now:      time.Now,
		agg:      newCandleAgg(),
		series:   make(map[string]*Series),
		history:  make(map[string][]models.Candle),
		price:    make(map[string]float64),
	}
}

// OnCandle — обновление из стрима. Закрытая свеча сразу идёт в индикаторы,
// иначе следующая открытая перетрёт её в агрегаторе до тика.
func (h *Hub) OnCandle(c models.Candle) {
	if c.Symbol == "" {
		return
	}
	if c.Closed {
		h.mu.Lock()
		h.applyClosed(c)
		h.mu.Unlock()
	}
	h.agg.Put(c)
}

// Warm прогоняет исторические свечи через индикаторы до старта стрима.
func (h *Hub) Warm(symbol string, candles []models.Candle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range candles {
		c.Symbol = symbol
		c.Closed = true
		h.applyClosed(c)
	}
}

// под h.mu
func (h *Hub) applyClosed(c models.Candle) {
	hist := h.history[c.Symbol]
	if n := len(hist); n > 0 && !c.OpenTime.After(hist[n-1].OpenTime) {
		// повтор или старая свеча
		return
	}
	s, ok := h.series[c.Symbol]
	if !ok {
		s = NewSeries()
		h.series[c.Symbol] = s
	}
	s.Update(c)

	hist = append(hist, c)
	if len(hist) > h.cfg.HistorySize {
		hist = hist[len(hist)-h.cfg.HistorySize:]
	}
	h.history[c.Symbol] = hist
	h.price[c.Symbol] = c.Close
}

// Candles — копия закрытых свечей символа.
func (h *Hub) Candles(symbol string) []models.Candle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	src := h.history[symbol]
	out := make([]models.Candle, len(src))
	copy(out, src)
	return out
}

func (h *Hub) Symbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.price))
	for s := range h.price {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Build забирает накопленные цены и собирает снапшоты по всем известным символам.
// Цена — последняя из стрима, индикаторы — только по закрытым свечам.
func (h *Hub) Build(ctx context.Context) []models.SignalSnapshot {
	now := h.now()

	h.mu.Lock()
	for _, c := range h.agg.Drain() {
		if c.Close > 0 {
			h.price[c.Symbol] = c.Close
		}
	}
	snaps := make([]models.SignalSnapshot, 0, len(h.price))
	for sym, p := range h.price {
		ind := models.EmptyIndicators()
		if s, ok := h.series[sym]; ok {
			ind = s.Indicators()
		}
		snaps = append(snaps, models.SignalSnapshot{
			Symbol:     sym,
			Price:      p,
			At:         now,
			Indicators: ind,
		})
	}
	h.mu.Unlock()

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Symbol < snaps[j].Symbol })

	if h.enricher != nil && h.settings != nil {
		snaps = h.enricher.Enrich(ctx, snaps, h, h.settings.Current())
	}
	return snaps
}

// Run читает стрим и по тикеру отправляет батчи. Если раннер не успевает,
// батч выкидывается: следующий всё равно свежее.
func (h *Hub) Run(ctx context.Context, candles <-chan models.Candle) {
	t := time.NewTicker(h.cfg.TickInterval)
	defer t.Stop()

	logger.Info("[FEED] ▶️ started, tick=%s", h.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("[FEED] stopped")
			return
		case c, ok := <-candles:
			if !ok {
				logger.Warn("[FEED] candle stream closed")
				candles = nil
				continue
			}
			h.OnCandle(c)
		case <-t.C:
			batch := h.Build(ctx)
			if len(batch) == 0 {
				continue
			}
			if h.tracker != nil {
				h.tracker.TouchTick(h.now())
			}
			select {
			case h.out <- batch:
			default:
				logger.Warn("[FEED] runner busy, batch of %d dropped", len(batch))
			}
		}
	}
}
