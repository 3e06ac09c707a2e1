package runner

import (
	"context"

	"go.uber.org/fx"

	"margin_bot/internal/balance"
	"margin_bot/internal/exchange"
	"margin_bot/internal/models"
	"margin_bot/internal/modules/config"
	"margin_bot/internal/notify"
	"margin_bot/internal/replacement"
	"margin_bot/internal/settings"
	"margin_bot/internal/slots"
	"margin_bot/internal/store"
	"margin_bot/internal/strategy"
	"margin_bot/pkg/logger"
)

func NewConfig(cfg *config.Config) Config {
	return Config{
		OrderTimeout:   cfg.Exchange.Timeout,
		CloseParallel:  cfg.Runner.CloseParallel,
		BatchQueue:     cfg.Runner.BatchQueue,
		HealthInterval: cfg.Runner.HealthInterval,
	}
}

type params struct {
	fx.In

	Cfg      Config
	Table    *slots.Table
	Scorer   *strategy.ScoreEngine
	Repl     *replacement.Engine
	Gate     *balance.Gate
	Exchange exchange.Client
	Settings *settings.Store
	Bus      *notify.Bus
}

func NewRunner(p params) *Runner {
	return New(p.Cfg, Deps{
		Table:    p.Table,
		Scorer:   p.Scorer,
		Repl:     p.Repl,
		Gate:     p.Gate,
		Exchange: p.Exchange,
		Settings: p.Settings,
		Pub:      p.Bus,
	})
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewConfig,
			NewRunner, // *Runner
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			r *Runner,
			repo store.Repository,
			batches <-chan []models.SignalSnapshot,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(startCtx context.Context) error {
					open, err := repo.LoadOpen(startCtx)
					if err != nil {
						return err
					}
					if n := r.Table().Restore(open); n > 0 {
						logger.Info("[RUNNER] restored %d open positions", n)
					}
					r.Start(ctx, batches)
					return nil
				},
				OnStop: func(_ context.Context) error {
					r.Stop()
					return nil
				},
			})
		}),
	)
}
