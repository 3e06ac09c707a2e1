package store

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"margin_bot/internal/modules/config"
	"margin_bot/internal/modules/postgres"
	"margin_bot/internal/notify"
)

// NewRepository выбирает бэкенд по store.driver.
func NewRepository(ctx context.Context, cfg *config.Config) (Repository, error) {
	switch cfg.Store.Driver {
	case "pg":
		m, err := postgres.Connect(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		return NewPostgres(ctx, m)
	case "sqlite", "":
		return NewSQLite(cfg.Store.SQLitePath)
	}
	return nil, fmt.Errorf("store: unknown driver %q", cfg.Store.Driver)
}

func Module() fx.Option {
	return fx.Module("store",
		fx.Provide(NewRepository),
		fx.Invoke(func(lc fx.Lifecycle, repo Repository, bus *notify.Bus) {
			bus.Register(NewSink(repo))
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					return repo.Close()
				},
			})
		}),
	)
}
