package settings

import (
	"context"

	"go.uber.org/fx"

	"margin_bot/internal/models"
	"margin_bot/internal/modules/config"
	"margin_bot/pkg/logger"
)

func NewFromConfig(cfg *config.Config) (*Store, error) {
	return NewStore(cfg.Trading.SettingsFile)
}

func Module() fx.Option {
	return fx.Module("settings",
		fx.Provide(NewFromConfig),
		fx.Invoke(func(lc fx.Lifecycle, s *Store) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					st := s.Current()
					logger.Info("[SETTINGS] max_open=%d qty=%.2f %s sl=%.2f%% tp=%.2f%% replacement=%v",
						st.MaxOpenTrades, st.QuoteOrderQty, st.QuoteAsset,
						st.StopLossPercentage, st.TakeProfitPercentage, st.EnableAggressiveReplacement)
					s.OnChange(func(old, cur models.RuntimeTradingSettings) {
						if old.MaxOpenTrades != cur.MaxOpenTrades {
							logger.Info("[SETTINGS] max_open_trades %d -> %d", old.MaxOpenTrades, cur.MaxOpenTrades)
						}
					})
					s.Watch()
					return nil
				},
			})
		}),
	)
}
