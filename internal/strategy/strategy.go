package strategy

import (
	"math"
	"sort"

	"margin_bot/internal/models"
)

// Weights — вклад каждой компоненты в итоговый скор.
// Технические веса в сумме дают 1, поэтому техническая часть лежит в [-1,1].
type Weights struct {
	RSI   float64
	MACD  float64
	EMA   float64
	Stoch float64

	ML float64
	AI float64
}

func DefaultWeights() Weights {
	return Weights{
		RSI:   0.25,
		MACD:  0.35,
		EMA:   0.25,
		Stoch: 0.15,
		ML:    0.5,
		AI:    0.5,
	}
}

// ScoreEngine — чистая функция снапшот -> число. Больше = сильнее бычий сигнал.
type ScoreEngine struct {
	w Weights
}

func NewScoreEngine() *ScoreEngine {
	return &ScoreEngine{w: DefaultWeights()}
}

func NewScoreEngineWithWeights(w Weights) *ScoreEngine {
	return &ScoreEngine{w: w}
}

func (e *ScoreEngine) Score(s models.SignalSnapshot, st models.RuntimeTradingSettings) float64 {
	score := e.Technical(s)

	if st.EnableMLPredictions {
		score += predictionTerm(s.ML, e.w.ML)
	}
	if st.EnableOpenAISignals {
		score += predictionTerm(s.AI, e.w.AI)
	}
	return finite(score)
}

// Technical — только индикаторная часть, без прогнозов.
func (e *ScoreEngine) Technical(s models.SignalSnapshot) float64 {
	ind := s.Indicators
	var sum float64

	// RSI: 50 нейтрально, 100 -> +1, 0 -> -1
	if ok(ind.RSI) {
		sum += e.w.RSI * clamp((ind.RSI-50)/50)
	}

	// MACD относительно сигнальной линии, нормируем на ATR (или на цену, если ATR нет)
	if ok(ind.MACD) && ok(ind.MACDSignal) {
		norm := 1.0
		switch {
		case ok(ind.ATR) && ind.ATR > 0:
			norm = ind.ATR
		case s.Price > 0:
			norm = s.Price * 0.001
		}
		sum += e.w.MACD * math.Tanh((ind.MACD-ind.MACDSignal)/norm)
	}

	// цена над EMA — бычий фон; 1% отклонения ~ tanh(1)
	if ok(ind.EMA) && ind.EMA > 0 && s.Price > 0 {
		sum += e.w.EMA * math.Tanh((s.Price-ind.EMA)/ind.EMA*100)
	}

	// стохастик: K выше D — импульс вверх
	if ok(ind.StochK) && ok(ind.StochD) {
		sum += e.w.Stoch * clamp((ind.StochK-ind.StochD)/20)
	}

	return finite(sum)
}

func predictionTerm(p models.Prediction, weight float64) float64 {
	if !p.IsAvailable() || !ok(p.Confidence) {
		return 0
	}
	return p.Direction.Sign() * p.Confidence * weight
}

// Freeze проставляет TrendScore каждому снапшоту и возвращает отсортированный рейтинг.
func (e *ScoreEngine) Freeze(view map[string]models.SignalSnapshot, st models.RuntimeTradingSettings) []models.SignalSnapshot {
	out := make([]models.SignalSnapshot, 0, len(view))
	for sym, snap := range view {
		snap.Symbol = sym
		snap.TrendScore = e.Score(snap, st)
		out = append(out, snap)
	}
	Rank(out)
	return out
}

// Rank сортирует по убыванию скора, при равенстве — по имени символа.
func Rank(snaps []models.SignalSnapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].TrendScore != snaps[j].TrendScore {
			return snaps[i].TrendScore > snaps[j].TrendScore
		}
		return snaps[i].Symbol < snaps[j].Symbol
	})
}

func ok(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func finite(v float64) float64 {
	if !ok(v) {
		return 0
	}
	return v
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
