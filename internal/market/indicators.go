package market

import (
	"math"

	"margin_bot/internal/models"
)

// Периоды как у индикаторов на графике.
const (
	rsiPeriod    = 14
	emaPeriod    = 20
	macdFast     = 12
	macdSlow     = 26
	macdSignal   = 9
	stochPeriod  = 14
	stochSmoothK = 3
	stochSmoothD = 3
	atrPeriod    = 14
)

type emaState struct {
	period int
	alpha  float64
	value  float64
	warmup int
}

func newEMA(period int) emaState {
	if period <= 1 {
		period = 1
	}
	return emaState{
		period: period,
		alpha:  2.0 / (float64(period) + 1),
	}
}

func (e *emaState) Update(price float64) {
	if e.warmup == 0 {
		e.value = price
		e.warmup = 1
		return
	}
	e.value = e.alpha*price + (1-e.alpha)*e.value
	if e.warmup < e.period {
		e.warmup++
	}
}

func (e *emaState) Ready() bool    { return e.warmup >= e.period }
func (e *emaState) Value() float64 { return e.value }

// rsiState — RSI Уайлдера: первые period изменений усредняются, дальше сглаживание 1/period.
type rsiState struct {
	period      int
	prev        float64
	avgGain     float64
	avgLoss     float64
	n           int
	initialized bool
}

func (r *rsiState) Update(price float64) {
	if !r.initialized {
		r.prev = price
		r.initialized = true
		return
	}
	change := price - r.prev
	r.prev = price
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	p := float64(r.period)
	if r.n < r.period {
		r.avgGain += gain / p
		r.avgLoss += loss / p
		r.n++
		return
	}
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
}

func (r *rsiState) Value() float64 {
	if r.n < r.period {
		return math.NaN()
	}
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}

// window — фиксированное окно последних значений.
type window struct {
	size int
	vals []float64
}

func (w *window) push(v float64) {
	w.vals = append(w.vals, v)
	if len(w.vals) > w.size {
		w.vals = w.vals[1:]
	}
}

func (w *window) full() bool { return len(w.vals) >= w.size }

func (w *window) mean() float64 {
	if !w.full() {
		return math.NaN()
	}
	s := 0.0
	for _, v := range w.vals {
		s += v
	}
	return s / float64(len(w.vals))
}

// Series — индикаторы одного символа, обновляются только закрытыми свечами.
type Series struct {
	ema      emaState
	macdF    emaState
	macdS    emaState
	macdSig  emaState
	rsi      rsiState
	highs    window
	lows     window
	rawK     window
	slowK    window
	atr      float64
	atrN     int
	trSum    float64
	prevCl   float64
	hasPrev  bool
	count    int
	lastMACD float64
}

func NewSeries() *Series {
	return &Series{
		ema:     newEMA(emaPeriod),
		macdF:   newEMA(macdFast),
		macdS:   newEMA(macdSlow),
		macdSig: newEMA(macdSignal),
		rsi:     rsiState{period: rsiPeriod},
		highs:   window{size: stochPeriod},
		lows:    window{size: stochPeriod},
		rawK:    window{size: stochSmoothK},
		slowK:   window{size: stochSmoothD},
	}
}

func (s *Series) Update(c models.Candle) {
	s.count++
	s.ema.Update(c.Close)
	s.rsi.Update(c.Close)

	s.macdF.Update(c.Close)
	s.macdS.Update(c.Close)
	if s.macdS.Ready() {
		s.lastMACD = s.macdF.Value() - s.macdS.Value()
		s.macdSig.Update(s.lastMACD)
	}

	// стохастик: сырой %K, сглаженный slowK, и slowD от slowK
	s.highs.push(c.High)
	s.lows.push(c.Low)
	if s.highs.full() {
		hi, lo := maxOf(s.highs.vals), minOf(s.lows.vals)
		k := 50.0
		if hi > lo {
			k = (c.Close - lo) / (hi - lo) * 100
		}
		s.rawK.push(k)
		if s.rawK.full() {
			s.slowK.push(s.rawK.mean())
		}
	}

	// ATR Уайлдера
	tr := c.High - c.Low
	if s.hasPrev {
		tr = math.Max(tr, math.Max(math.Abs(c.High-s.prevCl), math.Abs(c.Low-s.prevCl)))
	}
	s.prevCl = c.Close
	s.hasPrev = true
	if s.atrN < atrPeriod {
		s.trSum += tr
		s.atrN++
		if s.atrN == atrPeriod {
			s.atr = s.trSum / atrPeriod
		}
	} else {
		s.atr = (s.atr*(atrPeriod-1) + tr) / atrPeriod
	}
}

// Indicators — текущие значения; неготовые = NaN.
func (s *Series) Indicators() models.Indicators {
	ind := models.EmptyIndicators()
	if s.ema.Ready() {
		ind.EMA = s.ema.Value()
	}
	ind.RSI = s.rsi.Value()
	if s.macdS.Ready() {
		ind.MACD = s.lastMACD
		if s.macdSig.Ready() {
			ind.MACDSignal = s.macdSig.Value()
			ind.MACDHist = ind.MACD - ind.MACDSignal
		}
	}
	if s.slowK.full() {
		ind.StochK = s.slowK.vals[len(s.slowK.vals)-1]
		ind.StochD = s.slowK.mean()
	}
	if s.atrN >= atrPeriod {
		ind.ATR = s.atr
	}
	return ind
}

// Bars — сколько закрытых свечей прошло через серию.
func (s *Series) Bars() int { return s.count }

func maxOf(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}

func minOf(v []float64) float64 {
	m := math.Inf(1)
	for _, x := range v {
		m = math.Min(m, x)
	}
	return m
}
