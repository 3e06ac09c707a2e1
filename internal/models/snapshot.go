package models

import (
	"math"
	"time"
)

// Indicators — последние значения индикаторов по символу. Отсутствующее значение = NaN.
type Indicators struct {
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	EMA        float64 `json:"ema"`
	StochK     float64 `json:"stoch_k"`
	StochD     float64 `json:"stoch_d"`
	ATR        float64 `json:"atr"`
}

func EmptyIndicators() Indicators {
	nan := math.NaN()
	return Indicators{RSI: nan, MACD: nan, MACDSignal: nan, MACDHist: nan, EMA: nan, StochK: nan, StochD: nan, ATR: nan}
}

// SignalSnapshot — всё, что известно о символе на момент тика. Неизменяем после заморозки.
type SignalSnapshot struct {
	Symbol     string     `json:"symbol"`
	Price      float64    `json:"price"`
	At         time.Time  `json:"at"`
	Indicators Indicators `json:"indicators"`
	ML         Prediction `json:"ml"`
	AI         Prediction `json:"ai"`

	// TrendScore заполняется ScoreEngine при заморозке вида.
	TrendScore float64 `json:"trend_score"`
}

func (s SignalSnapshot) HasPrice() bool {
	return s.Price > 0 && !math.IsInf(s.Price, 0)
}
