package slots

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"margin_bot/internal/models"
)

// BuyFunc / SellFunc — ордерные ноги. Вызываются вне мьютекса таблицы.
type BuyFunc func(ctx context.Context, symbol string) (models.Fill, error)
type SellFunc func(ctx context.Context, pos models.Position) (models.Fill, error)

// Candidate — то, что нужно таблице для открытия позиции.
type Candidate struct {
	Symbol     string
	Price      float64
	TrendScore float64
	AI         models.Prediction
}

func CandidateFrom(s models.SignalSnapshot) Candidate {
	ai := s.AI
	if !ai.IsAvailable() && s.ML.IsAvailable() {
		ai = s.ML
	}
	return Candidate{Symbol: s.Symbol, Price: s.Price, TrendScore: s.TrendScore, AI: ai}
}

// Table — пул слотов. Все переходы статусов линеаризуются под mu,
// биржевой I/O идёт между резервированием (или CAS) и коммитом/откатом.
type Table struct {
	mu        sync.Mutex
	positions map[string]*models.Position // id -> позиция
	bySymbol  map[string]string           // symbol -> id, только активные

	seq uint64
	now func() time.Time
}

type Option func(*Table)

func WithClock(now func() time.Time) Option {
	return func(t *Table) { t.now = now }
}

func NewTable(opts ...Option) *Table {
	t := &Table{
		positions: make(map[string]*models.Position),
		bySymbol:  make(map[string]string),
		now:       time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// TryOpen резервирует слот (Opening), покупает и коммитит позицию в Open.
// При ошибке покупки резерв снимается, слот снова свободен.
func (t *Table) TryOpen(ctx context.Context, c Candidate, maxOpen int, buy BuyFunc) (models.Position, error) {
	t.mu.Lock()
	if _, held := t.bySymbol[c.Symbol]; held {
		t.mu.Unlock()
		return models.Position{}, fmt.Errorf("open %s: %w", c.Symbol, models.ErrSymbolHeld)
	}
	if len(t.bySymbol) >= maxOpen {
		t.mu.Unlock()
		return models.Position{}, fmt.Errorf("open %s: %w", c.Symbol, models.ErrCapacity)
	}
	t.seq++
	p := &models.Position{
		ID:              fmt.Sprintf("%s-%d", c.Symbol, t.seq),
		Symbol:          c.Symbol,
		Side:            models.SideBuy,
		Status:          models.StatusOpening,
		CurrentPrice:    c.Price,
		EntryAI:         c.AI,
		EntryTrendScore: c.TrendScore,
		TrendScore:      c.TrendScore,
	}
	t.positions[p.ID] = p
	t.bySymbol[p.Symbol] = p.ID
	t.mu.Unlock()

	fill, err := buy(ctx, c.Symbol)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.remove(p)
		return models.Position{}, fmt.Errorf("open %s: %w", c.Symbol, err)
	}

	price := fill.Price
	if !(price > 0) {
		price = c.Price
	}
	p.OrderID = fill.OrderID
	p.OpenPrice = price
	p.HighPrice = price
	p.CurrentPrice = price
	p.Quantity = fill.Quantity
	p.QuoteQty = fill.QuoteQty
	p.OpenedAt = t.now()
	p.Status = models.StatusOpen
	return *p, nil
}

// RequestClose — CAS Open -> ClosingRequested, продажа, затем Closed (или откат в Open).
// Второй конкурентный вызов для той же позиции получает ErrCloseInFlight.
func (t *Table) RequestClose(ctx context.Context, id string, reason models.CloseReason, exitAI models.Prediction, sell SellFunc) (models.Position, error) {
	t.mu.Lock()
	p, ok := t.positions[id]
	if !ok {
		t.mu.Unlock()
		return models.Position{}, fmt.Errorf("close %s: %w", id, models.ErrNotFound)
	}
	if p.Manual && reason != models.ReasonManual && p.Status == models.StatusOpen {
		t.mu.Unlock()
		return models.Position{}, fmt.Errorf("close %s: %w", id, models.ErrManualPending)
	}
	switch p.Status {
	case models.StatusOpen:
	case models.StatusClosingRequested:
		t.mu.Unlock()
		return models.Position{}, fmt.Errorf("close %s: %w", id, models.ErrCloseInFlight)
	default:
		t.mu.Unlock()
		return models.Position{}, fmt.Errorf("close %s: %w", id, models.ErrNotOpen)
	}
	p.Status = models.StatusClosingRequested
	p.CloseReason = reason
	if exitAI.IsAvailable() {
		p.ExitAI = exitAI
	}
	cp := *p
	t.mu.Unlock()

	fill, err := sell(ctx, cp)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		p.Status = models.StatusOpen
		p.CloseReason = models.ReasonNone
		if reason == models.ReasonManual {
			p.Manual = false
		}
		return models.Position{}, fmt.Errorf("close %s: %w", id, err)
	}

	price := fill.Price
	if !(price > 0) {
		price = p.CurrentPrice
	}
	qty := p.Quantity
	if fill.Quantity > 0 {
		qty = fill.Quantity
	}
	p.ClosePrice = price
	p.ClosedAt = t.now()
	p.Profit = (price - p.OpenPrice) * qty
	p.Status = models.StatusClosed
	t.remove(p)
	return *p, nil
}

// ManualClose — закрытие по команде пользователя. Сначала помечаем позицию,
// чтобы автоматическое закрытие, ещё не выигравшее CAS, получило ErrManualPending.
func (t *Table) ManualClose(ctx context.Context, symbol string, sell SellFunc) (models.Position, error) {
	t.mu.Lock()
	id, ok := t.bySymbol[symbol]
	if !ok {
		t.mu.Unlock()
		return models.Position{}, fmt.Errorf("manual close %s: %w", symbol, models.ErrNotFound)
	}
	p := t.positions[id]
	switch p.Status {
	case models.StatusOpen:
	case models.StatusClosingRequested:
		t.mu.Unlock()
		return models.Position{}, fmt.Errorf("manual close %s: %w", symbol, models.ErrCloseInFlight)
	default:
		t.mu.Unlock()
		return models.Position{}, fmt.Errorf("manual close %s: %w", symbol, models.ErrNotOpen)
	}
	p.Manual = true
	t.mu.Unlock()

	return t.RequestClose(ctx, id, models.ReasonManual, models.Prediction{}, sell)
}

// Mark обновляет текущую цену, максимум и скор по символу, взводит трейлинг.
// Прогноз на выходе сюда не пишется: его фиксирует RequestClose.
// Трейлинг взводится, когда максимум достиг open*(1+armBuffer%), и больше не снимается.
func (t *Table) Mark(symbol string, price, trendScore, armBufferPct float64) {
	if !(price > 0) || math.IsInf(price, 0) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.bySymbol[symbol]
	if !ok {
		return
	}
	p := t.positions[id]
	if p.Status != models.StatusOpen && p.Status != models.StatusClosingRequested {
		return
	}
	p.CurrentPrice = price
	if price > p.HighPrice {
		p.HighPrice = price
	}
	if !math.IsNaN(trendScore) {
		p.TrendScore = trendScore
	}
	if !p.TrailArmed && p.OpenPrice > 0 && p.HighPrice >= p.OpenPrice*(1+armBufferPct/100) {
		p.TrailArmed = true
	}
}

// Restore поднимает открытые позиции из хранилища после рестарта.
func (t *Table) Restore(ps []models.Position) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, rp := range ps {
		if rp.Status != models.StatusOpen {
			continue
		}
		if _, held := t.bySymbol[rp.Symbol]; held {
			continue
		}
		if _, dup := t.positions[rp.ID]; dup || rp.ID == "" {
			t.seq++
			rp.ID = fmt.Sprintf("%s-%d", rp.Symbol, t.seq)
		}
		if rp.HighPrice < rp.OpenPrice {
			rp.HighPrice = rp.OpenPrice
		}
		rp.Manual = false
		p := rp
		t.positions[p.ID] = &p
		t.bySymbol[p.Symbol] = p.ID
		n++
	}
	return n
}

// Snapshot — копия всех активных позиций (Opening, Open, Closing), по времени открытия.
func (t *Table) Snapshot() []models.Position {
	t.mu.Lock()
	out := make([]models.Position, 0, len(t.bySymbol))
	for _, id := range t.bySymbol {
		out = append(out, *t.positions[id])
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Open — только позиции в статусе Open.
func (t *Table) Open() []models.Position {
	all := t.Snapshot()
	out := all[:0]
	for _, p := range all {
		if p.Status == models.StatusOpen {
			out = append(out, p)
		}
	}
	return out
}

func (t *Table) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bySymbol)
}

func (t *Table) Held(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.bySymbol[symbol]
	return ok
}

func (t *Table) Get(id string) (models.Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[id]
	if !ok {
		return models.Position{}, false
	}
	return *p, true
}

func (t *Table) remove(p *models.Position) {
	delete(t.positions, p.ID)
	if t.bySymbol[p.Symbol] == p.ID {
		delete(t.bySymbol, p.Symbol)
	}
}
