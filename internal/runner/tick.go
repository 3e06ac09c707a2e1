package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"margin_bot/internal/exits"
	"margin_bot/internal/models"
	"margin_bot/internal/replacement"
	"margin_bot/internal/slots"
	"margin_bot/pkg/logger"
)

// TickReport — что произошло за тик.
type TickReport struct {
	At        time.Time
	Symbols   int
	Closed    []models.Position
	Replaced  *replacement.Decision
	Opened    []models.Position
	Rejected  int
	SkipAdmit bool
}

// Tick — один цикл решений:
// вид рынка -> mark -> выходы -> максимум одна замена -> свободные слоты -> события.
func (r *Runner) Tick(ctx context.Context, batch []models.SignalSnapshot) (rep TickReport) {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	span, ctx := opentracing.StartSpanFromContext(ctx, "runner.tick")
	defer span.Finish()

	st := r.settings.Current()
	now := r.now()
	rep.At = now

	defer func() {
		r.lastTick.Store(now.UnixNano())
		r.ticks.Add(1)
		span.SetTag("closed", len(rep.Closed))
		span.SetTag("opened", len(rep.Opened))
	}()

	// 1. замораживаем вид: символы без обновления держат прошлый снапшот
	for _, s := range batch {
		if s.Symbol == "" {
			continue
		}
		r.cache[s.Symbol] = s
	}
	view := make(map[string]models.SignalSnapshot, len(r.cache))
	for k, v := range r.cache {
		view[k] = v
	}
	ranked := r.scorer.Freeze(view, st)
	bySym := make(map[string]models.SignalSnapshot, len(ranked))
	for _, s := range ranked {
		bySym[s.Symbol] = s
	}
	rep.Symbols = len(ranked)

	// 2. цены и максимумы по удерживаемым символам, до любых проверок
	for _, p := range r.table.Snapshot() {
		s, ok := bySym[p.Symbol]
		if !ok {
			continue
		}
		r.safe("mark "+p.Symbol, func() {
			r.table.Mark(p.Symbol, s.Price, s.TrendScore, st.TrailArmBufferPercentage)
		})
	}

	// 3. выходы: все закрытия завершаются до замены
	rep.Closed = r.runExits(ctx, now, st, bySym)

	// 4. одна замена за тик
	if r.TradingOpen() {
		// закрытые в этом тике символы не перезаходят в нём же
		attempted := map[string]bool{}
		for _, p := range rep.Closed {
			attempted[p.Symbol] = true
		}
		var d replacement.Decision
		r.safe("replace", func() {
			d = r.repl.Decide(now, st, r.table.Snapshot(), ranked)
		})
		if d.Replace {
			rep.Replaced = &d
			attempted[d.Admit.Symbol] = true
			attempted[d.Evict.Symbol] = true
			skip, closed, opened := r.runReplacement(ctx, now, st, d, view[d.Evict.Symbol])
			rep.SkipAdmit = skip
			if closed != nil {
				rep.Closed = append(rep.Closed, *closed)
			}
			if opened != nil {
				rep.Opened = append(rep.Opened, *opened)
			} else {
				rep.Rejected++
			}
		} else if d.Reason != "" && st.EnableAggressiveReplacement {
			logger.Debug("[REPLACE] skip: %s", d.Reason)
		}

		// 5. свободные слоты
		if !rep.SkipAdmit {
			opened, rejected := r.admit(ctx, st, ranked, attempted)
			rep.Opened = append(rep.Opened, opened...)
			rep.Rejected += rejected
		}
	}

	if len(rep.Closed) > 0 || len(rep.Opened) > 0 {
		logger.Info("[TICK] symbols=%d closed=%d opened=%d slots=%d/%d",
			rep.Symbols, len(rep.Closed), len(rep.Opened), r.table.ActiveCount(), st.MaxOpenTrades)
	}
	return rep
}

// runExits оценивает все открытые позиции и закрывает сработавшие параллельно.
func (r *Runner) runExits(ctx context.Context, now time.Time, st models.RuntimeTradingSettings, bySym map[string]models.SignalSnapshot) []models.Position {
	type intent struct {
		pos models.Position
		d   exits.Decision
	}
	var intents []intent
	for _, p := range r.table.Open() {
		p := p
		r.safe("exit "+p.Symbol, func() {
			d := exits.Evaluate(now, p, bySym[p.Symbol], st)
			if d.Close {
				intents = append(intents, intent{pos: p, d: d})
			}
		})
	}
	if len(intents) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		closed []models.Position
		wg     sync.WaitGroup
		sem    = make(chan struct{}, r.cfg.CloseParallel)
	)
	for _, in := range intents {
		in := in
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			r.safe("close "+in.pos.Symbol, func() {
				logger.Info("[EXIT] %s %s: %s", in.pos.Symbol, in.d.Reason, in.d.Detail)
				p, err := r.table.RequestClose(ctx, in.pos.ID, in.d.Reason, in.d.ExitAI, r.sellLeg)
				if err != nil {
					r.rejectClose(in.pos, in.d.Reason, err)
					return
				}
				r.publishClosed(p)
				mu.Lock()
				closed = append(closed, p)
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	return closed
}

// runReplacement: сначала закрываем слабую, потом открываем кандидата через гейт (один слот).
// skipAdmit=true — слот оставляем пустым до следующего тика.
func (r *Runner) runReplacement(ctx context.Context, now time.Time, st models.RuntimeTradingSettings, d replacement.Decision, evicted models.SignalSnapshot) (skipAdmit bool, closed, opened *models.Position) {
	logger.Info("[REPLACE] %s (%.3f) -> %s (%.3f)", d.Evict.Symbol, d.Evict.TrendScore, d.Admit.Symbol, d.Admit.TrendScore)

	old, err := r.table.RequestClose(ctx, d.Evict.ID, models.ReasonReplaced, exitSignal(evicted, st), r.sellLeg)
	if err != nil {
		r.rejectClose(d.Evict, models.ReasonReplaced, err)
		return true, nil, nil
	}
	r.publishClosed(old)
	closed = &old

	p, err := r.openOne(ctx, st, d.Admit)
	if err != nil {
		logger.Warn("[REPLACE] open leg %s failed, slot stays empty: %v", d.Admit.Symbol, err)
		return true, closed, nil
	}
	opened = &p

	r.repl.Commit(now, d)
	r.publish(models.Event{
		Kind:      models.EventReplaced,
		Symbol:    d.Admit.Symbol,
		OldSymbol: d.Evict.Symbol,
		NewSymbol: d.Admit.Symbol,
		OldScore:  d.Evict.TrendScore,
		NewScore:  d.Admit.TrendScore,
		Price:     p.OpenPrice,
	})
	return false, closed, opened
}

// admit заполняет свободные слоты лучшими кандидатами. Кандидат пробуется не больше раза за тик.
func (r *Runner) admit(ctx context.Context, st models.RuntimeTradingSettings, ranked []models.SignalSnapshot, attempted map[string]bool) (opened []models.Position, rejected int) {
	for _, s := range ranked {
		if r.table.ActiveCount() >= st.MaxOpenTrades {
			return
		}
		if s.TrendScore < st.EntryScoreThreshold {
			return // дальше только хуже
		}
		if attempted[s.Symbol] || r.table.Held(s.Symbol) || !s.HasPrice() {
			continue
		}
		if vetoed(s, st) {
			continue
		}
		attempted[s.Symbol] = true

		p, err := r.openOne(ctx, st, s)
		if err == nil {
			opened = append(opened, p)
			continue
		}
		rejected++
		// баланса нет или он не читается — дальше по списку смысла нет
		if errors.Is(err, models.ErrInsufficientBalance) || errors.Is(err, models.ErrCapacity) || errors.Is(err, errBalanceRead) {
			return
		}
	}
	return
}

var errBalanceRead = errors.New("balance read failed")

// openOne — путь однослотового входа: гейт баланса, затем TryOpen.
func (r *Runner) openOne(ctx context.Context, st models.RuntimeTradingSettings, s models.SignalSnapshot) (p models.Position, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("[PANIC] open %s: %v\n%s", s.Symbol, rec, debug.Stack())
			err = fmt.Errorf("open %s: panic: %v", s.Symbol, rec)
		}
	}()

	dec, err := r.gate.Authorize(ctx, st.QuoteAsset, 1, st.QuoteOrderQty)
	if err != nil {
		r.publish(models.Event{Kind: models.EventRejected, Symbol: s.Symbol, Error: err.Error()})
		return p, fmt.Errorf("%w: %v", errBalanceRead, err)
	}
	if !dec.OK {
		logger.Warn("[BALANCE] %s: available %.2f %s < required %.2f", s.Symbol, dec.Available, dec.Asset, dec.Required)
		r.publish(models.Event{
			Kind:      models.EventInsufficientBalance,
			Symbol:    s.Symbol,
			Available: dec.Available,
			Required:  dec.Required,
		})
		return p, models.ErrInsufficientBalance
	}

	qty := st.QuoteOrderQty
	p, err = r.table.TryOpen(ctx, slots.CandidateFrom(s), st.MaxOpenTrades, func(ctx context.Context, symbol string) (models.Fill, error) {
		return r.buyLeg(ctx, symbol, qty)
	})
	if err != nil {
		logger.Warn("[OPEN] %s rejected: %v", s.Symbol, err)
		r.publish(models.Event{Kind: models.EventRejected, Symbol: s.Symbol, Error: err.Error()})
		return p, err
	}

	logger.Info("[OPEN] %s @ %.8f qty=%.8f score=%.3f", p.Symbol, p.OpenPrice, p.Quantity, p.EntryTrendScore)
	cp := p
	r.publish(models.Event{Kind: models.EventOpened, Symbol: p.Symbol, PositionID: p.ID, Price: p.OpenPrice, Position: &cp})
	return p, nil
}

func (r *Runner) buyLeg(ctx context.Context, symbol string, quoteQty float64) (models.Fill, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "exchange.buy")
	defer span.Finish()
	span.SetTag("symbol", symbol)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.OrderTimeout)
	defer cancel()
	return r.ex.PlaceBuy(ctx, symbol, quoteQty)
}

func (r *Runner) sellLeg(ctx context.Context, p models.Position) (models.Fill, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "exchange.sell")
	defer span.Finish()
	span.SetTag("symbol", p.Symbol)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.OrderTimeout)
	defer cancel()
	return r.ex.PlaceSell(ctx, p.Symbol, p.Quantity)
}

func (r *Runner) publishClosed(p models.Position) {
	logger.Info("[CLOSE] %s %s @ %.8f profit=%.4f", p.Symbol, p.CloseReason, p.ClosePrice, p.Profit)
	cp := p
	r.publish(models.Event{
		Kind:       models.EventClosed,
		Symbol:     p.Symbol,
		PositionID: p.ID,
		Reason:     p.CloseReason,
		Price:      p.ClosePrice,
		Profit:     p.Profit,
		Position:   &cp,
	})
}

func (r *Runner) rejectClose(p models.Position, reason models.CloseReason, err error) {
	logger.Warn("[CLOSE] %s %s rejected: %v", p.Symbol, reason, err)
	r.publish(models.Event{Kind: models.EventRejected, Symbol: p.Symbol, PositionID: p.ID, Reason: reason, Error: err.Error()})
}

// safe изолирует панику одного шага (символ/позиция), тик продолжается.
func (r *Runner) safe(step string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("[PANIC] %s: %v\n%s", step, rec, debug.Stack())
		}
	}()
	fn()
}

// exitSignal — прогноз, который записываем в позицию на выходе.
func exitSignal(s models.SignalSnapshot, st models.RuntimeTradingSettings) models.Prediction {
	if st.EnableOpenAISignals && s.AI.IsAvailable() {
		return s.AI
	}
	if st.EnableMLPredictions && s.ML.IsAvailable() {
		return s.ML
	}
	return models.Prediction{}
}

// vetoed — не входим против уверенного прогноза вниз.
func vetoed(s models.SignalSnapshot, st models.RuntimeTradingSettings) bool {
	if st.EnableOpenAISignals && s.AI.IsDown(st.AIVetoConfidence) {
		return true
	}
	return st.EnableMLPredictions && s.ML.IsDown(st.AIVetoConfidence)
}
