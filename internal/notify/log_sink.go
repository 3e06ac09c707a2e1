package notify

import (
	"context"

	"go.uber.org/zap"

	"margin_bot/internal/models"
	"margin_bot/pkg/logger"
)

// LogSink пишет события структурно в zap.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Handle(_ context.Context, e models.Event) error {
	fields := []zap.Field{
		zap.String("kind", string(e.Kind)),
		zap.String("symbol", e.Symbol),
	}
	switch e.Kind {
	case models.EventClosed:
		fields = append(fields, zap.String("reason", string(e.Reason)), zap.Float64("price", e.Price), zap.Float64("profit", e.Profit))
	case models.EventOpened:
		fields = append(fields, zap.Float64("price", e.Price), zap.String("position_id", e.PositionID))
	case models.EventReplaced:
		fields = append(fields, zap.String("replaced", e.OldSymbol), zap.String("added", e.NewSymbol))
	case models.EventInsufficientBalance:
		fields = append(fields, zap.Float64("available", e.Available), zap.Float64("required", e.Required))
	case models.EventRejected:
		fields = append(fields, zap.String("error", e.Error))
	}
	logger.L().Info("[EVENT] "+Format(e), fields...)
	return nil
}
