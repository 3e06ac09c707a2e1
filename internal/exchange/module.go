package exchange

import (
	"go.uber.org/fx"

	"margin_bot/internal/balance"
	"margin_bot/internal/modules/config"
)

func NewConfig(cfg *config.Config) Config {
	return Config{
		Mode:         cfg.Exchange.Mode,
		BaseURL:      cfg.Exchange.BaseURL,
		WSURL:        cfg.Exchange.WSURL,
		APIKey:       cfg.Exchange.APIKey,
		APISecret:    cfg.Exchange.APISecret,
		QuoteAsset:   cfg.Trading.QuoteAsset,
		Timeout:      cfg.Exchange.Timeout,
		PaperBalance: cfg.Exchange.PaperBalance,
		PaperFeePct:  cfg.Exchange.PaperFeePct,
	}
}

func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(
			NewConfig,
			New, // Client
			func(c Client) balance.Reader { return c },
			func(cfg Config, c Client) *KlineStream {
				return NewKlineStream(cfg.WSURL, c)
			},
		),
	)
}
