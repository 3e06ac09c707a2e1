package market

import (
	"sync"

	"margin_bot/internal/models"
)

// candleAgg — последняя свеча по символу между тиками.
type candleAgg struct {
	mu   sync.Mutex
	last map[string]models.Candle
}

func newCandleAgg() *candleAgg {
	return &candleAgg{last: make(map[string]models.Candle)}
}

func (a *candleAgg) Put(c models.Candle) {
	a.mu.Lock()
	a.last[c.Symbol] = c
	a.mu.Unlock()
}

func (a *candleAgg) Drain() []models.Candle {
	a.mu.Lock()
	out := make([]models.Candle, 0, len(a.last))
	for _, c := range a.last {
		out = append(out, c)
	}
	// очищаем — следующий тик перезапишет
	a.last = make(map[string]models.Candle)
	a.mu.Unlock()
	return out
}
