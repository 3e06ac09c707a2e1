package predict

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"margin_bot/internal/models"
	"margin_bot/pkg/logger"
)

// History — закрытые свечи по символу.
type History interface {
	Candles(symbol string) []models.Candle
}

type cached struct {
	candle time.Time // время последней закрытой свечи, на которой считали
	ml     models.Prediction
	ai     models.Prediction
}

// Enricher заполняет ML/AI в снапшотах. Доступный прогноз пересчитывается только
// на новой закрытой свече; сбой провайдера даёт Unavailable на этот тик и повтор на следующем.
type Enricher struct {
	ml       Provider
	ai       Provider
	timeout  time.Duration
	parallel int

	mu    sync.Mutex
	cache map[string]cached
}

func NewEnricher(ml, ai Provider, timeout time.Duration, parallel int) *Enricher {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if parallel <= 0 {
		parallel = 4
	}
	return &Enricher{
		ml:       ml,
		ai:       ai,
		timeout:  timeout,
		parallel: parallel,
		cache:    make(map[string]cached),
	}
}

// Enrich возвращает копию snaps с проставленными прогнозами включённых источников.
func (e *Enricher) Enrich(ctx context.Context, snaps []models.SignalSnapshot, hist History, st models.RuntimeTradingSettings) []models.SignalSnapshot {
	out := make([]models.SignalSnapshot, len(snaps))
	copy(out, snaps)

	useML := st.EnableMLPredictions && e.ml != nil
	useAI := st.EnableOpenAISignals && e.ai != nil
	if !useML && !useAI {
		return out
	}

	sem := make(chan struct{}, e.parallel)
	var wg sync.WaitGroup
	for i := range out {
		i := i
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			e.enrichOne(ctx, &out[i], hist, useML, useAI)
		}()
	}
	wg.Wait()
	return out
}

func (e *Enricher) enrichOne(ctx context.Context, s *models.SignalSnapshot, hist History, useML, useAI bool) {
	var candles []models.Candle
	if hist != nil {
		candles = hist.Candles(s.Symbol)
	}
	if len(candles) == 0 {
		if useML {
			s.ML = models.Unavailable(SourceML, "no history")
		}
		if useAI {
			s.AI = models.Unavailable(SourceOpenAI, "no history")
		}
		return
	}
	last := candles[len(candles)-1].OpenTime

	e.mu.Lock()
	c, ok := e.cache[s.Symbol]
	e.mu.Unlock()

	fresh := ok && c.candle.Equal(last)
	in := Input{Symbol: s.Symbol, Candles: candles, Indicators: s.Indicators}

	if useML {
		if !fresh || !c.ml.IsAvailable() {
			c.ml = e.call(ctx, e.ml, in)
		}
		s.ML = c.ml
	}
	if useAI {
		if !fresh || !c.ai.IsAvailable() {
			c.ai = e.call(ctx, e.ai, in)
		}
		s.AI = c.ai
	}
	c.candle = last

	e.mu.Lock()
	e.cache[s.Symbol] = c
	e.mu.Unlock()
}

func (e *Enricher) call(ctx context.Context, p Provider, in Input) (pred models.Prediction) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "predict."+p.Name())
	span.SetTag("symbol", in.Symbol)
	defer span.Finish()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("[PANIC] predict %s %s: %v", p.Name(), in.Symbol, r)
			pred = models.Unavailable(p.Name(), "panic")
		}
	}()

	pred, err := p.Predict(ctx, in)
	if err != nil {
		span.SetTag("error", true)
		logger.Debug("[PREDICT] %s %s unavailable: %v", p.Name(), in.Symbol, err)
		return models.Unavailable(p.Name(), err.Error())
	}
	pred.Source = p.Name()
	return pred
}

// Forget — символ ушёл из вотчлиста.
func (e *Enricher) Forget(symbol string) {
	e.mu.Lock()
	delete(e.cache, symbol)
	e.mu.Unlock()
}
