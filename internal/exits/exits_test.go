package exits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"margin_bot/internal/models"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func openPos(open, price float64) models.Position {
	return models.Position{
		ID:           "A-1",
		Symbol:       "A",
		Status:       models.StatusOpen,
		OpenPrice:    open,
		HighPrice:    open,
		CurrentPrice: price,
		Quantity:     1,
		OpenedAt:     now.Add(-time.Minute),
	}
}

func quiet() models.RuntimeTradingSettings {
	st := models.DefaultRuntimeSettings()
	st.EnableOpenAISignals = false
	st.EnableMLPredictions = false
	return st
}

func TestEvaluate_StopLossScenario(t *testing.T) {
	st := quiet()
	st.MaxOpenTrades = 3
	st.StopLossPercentage = 2

	d := Evaluate(now, openPos(100, 97), models.SignalSnapshot{}, st)
	assert.True(t, d.Close)
	assert.Equal(t, models.ReasonStopLoss, d.Reason)
	assert.Equal(t, "stop-loss", string(d.Reason))
}

func TestEvaluate_Boundaries(t *testing.T) {
	st := quiet()
	st.StopLossPercentage = 2
	st.TakeProfitPercentage = 1

	assert.Equal(t, models.ReasonStopLoss, Evaluate(now, openPos(100, 98), models.SignalSnapshot{}, st).Reason)
	assert.False(t, Evaluate(now, openPos(100, 98.01), models.SignalSnapshot{}, st).Close)
	assert.Equal(t, models.ReasonTakeProfit, Evaluate(now, openPos(100, 101), models.SignalSnapshot{}, st).Reason)
	assert.False(t, Evaluate(now, openPos(100, 100.99), models.SignalSnapshot{}, st).Close)
}

func TestEvaluate_ZeroPercentDisablesTrigger(t *testing.T) {
	st := quiet()
	st.StopLossPercentage = 0
	st.TakeProfitPercentage = 0

	assert.False(t, Evaluate(now, openPos(100, 50), models.SignalSnapshot{}, st).Close)
	assert.False(t, Evaluate(now, openPos(100, 150), models.SignalSnapshot{}, st).Close)
}

func TestEvaluate_TimeKillOnlyWhenNotProfitable(t *testing.T) {
	st := quiet()
	st.TimeBasedKillMinutes = 30

	p := openPos(100, 99.9)
	p.OpenedAt = now.Add(-30 * time.Minute)
	assert.Equal(t, models.ReasonTimeKill, Evaluate(now, p, models.SignalSnapshot{}, st).Reason)

	p.CurrentPrice = 100.5
	assert.False(t, Evaluate(now, p, models.SignalSnapshot{}, st).Close)

	p.CurrentPrice = 99.9
	p.OpenedAt = now.Add(-29 * time.Minute)
	assert.False(t, Evaluate(now, p, models.SignalSnapshot{}, st).Close)

	st.TimeBasedKillMinutes = 0
	p.OpenedAt = now.Add(-24 * time.Hour)
	assert.False(t, Evaluate(now, p, models.SignalSnapshot{}, st).Close)
}

func TestEvaluate_TrailingNeedsArming(t *testing.T) {
	st := quiet()
	st.TakeProfitPercentage = 5
	st.TrailingStopPercentage = 0.5
	st.TrailArmBufferPercentage = 1

	p := openPos(100, 100.2)
	p.HighPrice = 100.9 // не взведён
	assert.False(t, Evaluate(now, p, models.SignalSnapshot{}, st).Close)

	p.HighPrice = 102
	p.TrailArmed = true
	p.CurrentPrice = 101.4
	d := Evaluate(now, p, models.SignalSnapshot{}, st)
	assert.Equal(t, models.ReasonTrailingStop, d.Reason)

	p.CurrentPrice = 101.6
	assert.False(t, Evaluate(now, p, models.SignalSnapshot{}, st).Close)

	st.EnableDynamicStopLoss = false
	p.CurrentPrice = 101.4
	assert.False(t, Evaluate(now, p, models.SignalSnapshot{}, st).Close)
}

func TestEvaluate_TrailingBeatsWeakTrend(t *testing.T) {
	st := quiet()
	st.StopLossPercentage = 5
	st.TrailingStopPercentage = 0.5
	st.WeakTrendStopLossPercentage = 0.5
	st.WeakTrendScoreThreshold = 0

	p := openPos(100, 99.4)
	p.HighPrice = 101
	p.TrailArmed = true
	p.TrendScore = -0.4

	assert.Equal(t, models.ReasonTrailingStop, Evaluate(now, p, models.SignalSnapshot{}, st).Reason)

	st.TrailingStopPercentage = 0
	assert.Equal(t, models.ReasonWeakTrend, Evaluate(now, p, models.SignalSnapshot{}, st).Reason)

	p.TrendScore = 0.2
	assert.False(t, Evaluate(now, p, models.SignalSnapshot{}, st).Close)

	p.TrendScore = -0.4
	p.TrailArmed = false
	assert.False(t, Evaluate(now, p, models.SignalSnapshot{}, st).Close)
}

func TestEvaluate_AIVeto(t *testing.T) {
	st := quiet()
	st.AIVetoConfidence = 0.85

	sig := models.SignalSnapshot{AI: models.Available("openai", models.DirectionDown, 0.9)}
	p := openPos(100, 100.1)

	// источник выключен — вето нет
	assert.False(t, Evaluate(now, p, sig, st).Close)

	st.EnableOpenAISignals = true
	d := Evaluate(now, p, sig, st)
	assert.Equal(t, models.ReasonAIVeto, d.Reason)
	assert.Equal(t, 0.9, d.ExitAI.Confidence)

	sig.AI = models.Available("openai", models.DirectionDown, 0.8)
	assert.False(t, Evaluate(now, p, sig, st).Close)

	st.EnableMLPredictions = true
	sig.ML = models.Available("ml", models.DirectionDown, 0.97)
	assert.Equal(t, models.ReasonAIVeto, Evaluate(now, p, sig, st).Reason)
}

func TestEvaluate_HigherPriorityWinsOverVeto(t *testing.T) {
	st := quiet()
	st.EnableOpenAISignals = true
	st.StopLossPercentage = 2

	sig := models.SignalSnapshot{AI: models.Available("openai", models.DirectionDown, 1)}
	d := Evaluate(now, openPos(100, 97), sig, st)
	assert.Equal(t, models.ReasonStopLoss, d.Reason)
	assert.Equal(t, models.DirectionDown, d.ExitAI.Direction)
}

func TestEvaluate_SkipsNonOpen(t *testing.T) {
	st := quiet()
	p := openPos(100, 50)
	p.Status = models.StatusClosingRequested
	assert.False(t, Evaluate(now, p, models.SignalSnapshot{}, st).Close)

	p.Status = models.StatusOpening
	assert.False(t, Evaluate(now, p, models.SignalSnapshot{}, st).Close)
}
