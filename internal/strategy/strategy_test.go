package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margin_bot/internal/models"
)

func snap(sym string, price float64) models.SignalSnapshot {
	return models.SignalSnapshot{Symbol: sym, Price: price, Indicators: models.EmptyIndicators()}
}

func TestScore_EmptyIndicatorsIsZero(t *testing.T) {
	e := NewScoreEngine()
	st := models.DefaultRuntimeSettings()

	s := snap("BTCUSDC", 100)
	assert.Equal(t, 0.0, e.Score(s, st))
}

func TestScore_BullishIndicatorsArePositive(t *testing.T) {
	e := NewScoreEngine()
	st := models.DefaultRuntimeSettings()
	st.EnableOpenAISignals = false

	s := snap("BTCUSDC", 101)
	s.Indicators.RSI = 70
	s.Indicators.MACD = 2
	s.Indicators.MACDSignal = 1
	s.Indicators.ATR = 1
	s.Indicators.EMA = 100
	s.Indicators.StochK = 80
	s.Indicators.StochD = 60

	got := e.Score(s, st)
	assert.Greater(t, got, 0.5)
	assert.LessOrEqual(t, got, 1.0)
}

func TestScore_TechnicalBounded(t *testing.T) {
	e := NewScoreEngine()

	s := snap("X", 1e9)
	s.Indicators.RSI = 1000
	s.Indicators.MACD = 1e12
	s.Indicators.MACDSignal = -1e12
	s.Indicators.EMA = 1
	s.Indicators.StochK = 100
	s.Indicators.StochD = 0

	got := e.Technical(s)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestScore_NaNAndInfAreIgnored(t *testing.T) {
	e := NewScoreEngine()
	st := models.DefaultRuntimeSettings()

	s := snap("X", 100)
	s.Indicators.RSI = math.Inf(1)
	s.Indicators.MACD = math.NaN()
	s.Indicators.MACDSignal = 1
	s.AI = models.Prediction{Kind: models.PredictionAvailable, Direction: models.DirectionUp, Confidence: math.NaN()}

	got := e.Score(s, st)
	assert.False(t, math.IsNaN(got))
	assert.Equal(t, 0.0, got)
}

func TestScore_PredictionsOnlyWhenEnabledAndAvailable(t *testing.T) {
	e := NewScoreEngine()
	s := snap("X", 100)
	s.ML = models.Available("ml", models.DirectionUp, 0.8)
	s.AI = models.Available("openai", models.DirectionDown, 0.6)

	st := models.DefaultRuntimeSettings()
	st.EnableMLPredictions = false
	st.EnableOpenAISignals = false
	assert.Equal(t, 0.0, e.Score(s, st))

	st.EnableMLPredictions = true
	assert.InDelta(t, 0.4, e.Score(s, st), 1e-9)

	st.EnableOpenAISignals = true
	assert.InDelta(t, 0.1, e.Score(s, st), 1e-9)

	s.AI = models.Unavailable("openai", "timeout")
	assert.InDelta(t, 0.4, e.Score(s, st), 1e-9)
}

func TestRank_OrdersByScoreThenSymbol(t *testing.T) {
	snaps := []models.SignalSnapshot{
		{Symbol: "ETHUSDC", TrendScore: 0.5},
		{Symbol: "ADAUSDC", TrendScore: 0.9},
		{Symbol: "BNBUSDC", TrendScore: 0.5},
		{Symbol: "SOLUSDC", TrendScore: -0.2},
	}
	Rank(snaps)

	got := make([]string, 0, len(snaps))
	for _, s := range snaps {
		got = append(got, s.Symbol)
	}
	require.Equal(t, []string{"ADAUSDC", "BNBUSDC", "ETHUSDC", "SOLUSDC"}, got)
}

func TestFreeze_AssignsScoresAndSymbols(t *testing.T) {
	e := NewScoreEngine()
	st := models.DefaultRuntimeSettings()

	up := snap("", 100)
	up.AI = models.Available("openai", models.DirectionUp, 1)
	view := map[string]models.SignalSnapshot{
		"AAA": snap("", 100),
		"BBB": up,
	}

	out := e.Freeze(view, st)
	require.Len(t, out, 2)
	assert.Equal(t, "BBB", out[0].Symbol)
	assert.InDelta(t, 0.5, out[0].TrendScore, 1e-9)
	assert.Equal(t, "AAA", out[1].Symbol)
}
