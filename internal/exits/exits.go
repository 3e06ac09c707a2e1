package exits

import (
	"fmt"
	"math"
	"time"

	"margin_bot/internal/models"
)

// Decision — одно намерение закрыть позицию (или его отсутствие).
type Decision struct {
	Close  bool
	Reason models.CloseReason
	ExitAI models.Prediction
	Detail string
}

func hold(ai models.Prediction) Decision { return Decision{ExitAI: ai} }

// Evaluate проверяет триггеры по приоритету и возвращает первый сработавший.
// Цена и максимум берутся из позиции, их уже обновил slots.Table.Mark.
// Нулевой процент отключает соответствующий триггер.
func Evaluate(now time.Time, p models.Position, sig models.SignalSnapshot, st models.RuntimeTradingSettings) Decision {
	ai := exitPrediction(sig, st)
	if p.Status != models.StatusOpen || !(p.OpenPrice > 0) {
		return hold(ai)
	}
	price := p.CurrentPrice
	if !(price > 0) || math.IsInf(price, 0) {
		return hold(ai)
	}
	open := p.OpenPrice

	// 1. жёсткий стоп
	if st.StopLossPercentage > 0 {
		if lvl := open * (1 - st.StopLossPercentage/100); price <= lvl {
			return fire(models.ReasonStopLoss, ai, "price=%.8f <= sl=%.8f", price, lvl)
		}
	}

	// 2. тейк
	if st.TakeProfitPercentage > 0 {
		if lvl := open * (1 + st.TakeProfitPercentage/100); price >= lvl {
			return fire(models.ReasonTakeProfit, ai, "price=%.8f >= tp=%.8f", price, lvl)
		}
	}

	// 3. убиваем зависшую позицию, если она не в плюсе
	if st.TimeBasedKillMinutes > 0 {
		limit := time.Duration(st.TimeBasedKillMinutes) * time.Minute
		if age := now.Sub(p.OpenedAt); age >= limit && price <= open {
			return fire(models.ReasonTimeKill, ai, "age=%s >= %s, pnl=%.2f%%", age.Truncate(time.Second), limit, p.PnLPct())
		}
	}

	// 4. динамика: трейлинг важнее слабого тренда, оба только после взвода
	if st.EnableDynamicStopLoss && p.TrailArmed {
		if st.TrailingStopPercentage > 0 {
			if lvl := p.HighPrice * (1 - st.TrailingStopPercentage/100); price <= lvl {
				return fire(models.ReasonTrailingStop, ai, "price=%.8f <= trail=%.8f (high=%.8f)", price, lvl, p.HighPrice)
			}
		}
		if st.WeakTrendStopLossPercentage > 0 && p.TrendScore < st.WeakTrendScoreThreshold {
			if lvl := open * (1 - st.WeakTrendStopLossPercentage/100); price <= lvl {
				return fire(models.ReasonWeakTrend, ai, "score=%.3f < %.3f, price=%.8f <= %.8f",
					p.TrendScore, st.WeakTrendScoreThreshold, price, lvl)
			}
		}
	}

	// 5. AI-вето
	for _, v := range vetoSources(sig, st) {
		if v.IsDown(st.AIVetoConfidence) {
			return fire(models.ReasonAIVeto, v, "%s says Down conf=%.2f >= %.2f", v.Source, v.Confidence, st.AIVetoConfidence)
		}
	}

	return hold(ai)
}

// exitPrediction выбирает прогноз для вето: OpenAI, затем ML, только включённые источники.
func exitPrediction(sig models.SignalSnapshot, st models.RuntimeTradingSettings) models.Prediction {
	if st.EnableOpenAISignals && sig.AI.IsAvailable() {
		return sig.AI
	}
	if st.EnableMLPredictions && sig.ML.IsAvailable() {
		return sig.ML
	}
	return models.Prediction{}
}

func vetoSources(sig models.SignalSnapshot, st models.RuntimeTradingSettings) []models.Prediction {
	out := make([]models.Prediction, 0, 2)
	if st.EnableOpenAISignals {
		out = append(out, sig.AI)
	}
	if st.EnableMLPredictions {
		out = append(out, sig.ML)
	}
	return out
}

func fire(r models.CloseReason, ai models.Prediction, format string, args ...any) Decision {
	return Decision{Close: true, Reason: r, ExitAI: ai, Detail: fmt.Sprintf(format, args...)}
}
