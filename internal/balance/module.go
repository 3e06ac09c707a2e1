package balance

import (
	"go.uber.org/fx"

	"margin_bot/internal/modules/config"
)

func NewConfig(cfg *config.Config) Config {
	return Config{
		Asset:   cfg.Trading.QuoteAsset,
		Timeout: cfg.Exchange.Timeout,
	}
}

func Module() fx.Option {
	return fx.Module("balance",
		fx.Provide(
			NewConfig,
			NewGate,
		),
	)
}
