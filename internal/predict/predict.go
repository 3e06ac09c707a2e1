package predict

import (
	"context"
	"strings"

	"margin_bot/internal/models"
)

const (
	SourceML     = "ml"
	SourceOpenAI = "openai"
)

// Input — то, на чём строится прогноз по символу.
type Input struct {
	Symbol     string
	Candles    []models.Candle // закрытые, oldest-first
	Indicators models.Indicators
}

// Provider — внешний прогноз. Ошибка означает «прогноза нет», а не «вниз».
type Provider interface {
	Name() string
	Predict(ctx context.Context, in Input) (models.Prediction, error)
}

// ParseDirection понимает up/down/sideways в любом регистре и варианты меток.
func ParseDirection(s string) (models.Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "bullish", "buy", "long":
		return models.DirectionUp, true
	case "down", "bearish", "sell", "short":
		return models.DirectionDown, true
	case "sideway", "sideways", "flat", "neutral", "hold":
		return models.DirectionSideway, true
	}
	return "", false
}
