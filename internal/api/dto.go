package api

import (
	"math"
	"time"

	"margin_bot/internal/models"
)

// JSON не умеет NaN, поэтому отсутствующий индикатор уходит как null.
type indicatorsDTO struct {
	RSI        *float64 `json:"rsi"`
	MACD       *float64 `json:"macd"`
	MACDSignal *float64 `json:"macd_signal"`
	MACDHist   *float64 `json:"macd_hist"`
	EMA        *float64 `json:"ema"`
	StochK     *float64 `json:"stoch_k"`
	StochD     *float64 `json:"stoch_d"`
	ATR        *float64 `json:"atr"`
}

type signalDTO struct {
	Symbol     string            `json:"symbol"`
	Price      float64           `json:"price"`
	At         time.Time         `json:"at"`
	TrendScore float64           `json:"trend_score"`
	Indicators indicatorsDTO     `json:"indicators"`
	ML         models.Prediction `json:"ml"`
	AI         models.Prediction `json:"ai"`
}

func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func toSignalDTO(s models.SignalSnapshot) signalDTO {
	in := s.Indicators
	return signalDTO{
		Symbol:     s.Symbol,
		Price:      s.Price,
		At:         s.At,
		TrendScore: s.TrendScore,
		Indicators: indicatorsDTO{
			RSI:        num(in.RSI),
			MACD:       num(in.MACD),
			MACDSignal: num(in.MACDSignal),
			MACDHist:   num(in.MACDHist),
			EMA:        num(in.EMA),
			StochK:     num(in.StochK),
			StochD:     num(in.StochD),
			ATR:        num(in.ATR),
		},
		ML: s.ML,
		AI: s.AI,
	}
}

type positionDTO struct {
	models.Position
	PnLPct float64 `json:"pnl_pct"`
	AgeSec int64   `json:"age_sec"`
}
