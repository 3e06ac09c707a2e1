package market

import (
	"go.uber.org/fx"

	"margin_bot/internal/models"
	"margin_bot/internal/modules/config"
	health "margin_bot/internal/modules/health/service"
	"margin_bot/internal/predict"
	"margin_bot/internal/settings"
)

type Batches chan []models.SignalSnapshot

func NewBatches(cfg *config.Config) Batches {
	n := cfg.Runner.BatchQueue
	if n <= 0 {
		n = 8
	}
	return make(Batches, n)
}

func NewConfig(cfg *config.Config) Config {
	return Config{
		Interval:     cfg.Trading.Interval,
		TickInterval: cfg.Trading.TickInterval,
		HistorySize:  cfg.Trading.WarmupBars * 2,
	}
}

func NewFromDeps(cfg Config, e *predict.Enricher, st *settings.Store, state *health.State, out Batches) *Hub {
	return NewHub(cfg, e, st, state, out)
}

func Module() fx.Option {
	return fx.Module("market",
		fx.Provide(
			NewBatches,
			func(b Batches) <-chan []models.SignalSnapshot { return b },
			NewConfig,
			NewFromDeps, // *Hub
		),
	)
}
