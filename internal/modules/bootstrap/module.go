package bootstrap

import (
	"context"

	"go.uber.org/fx"

	"margin_bot/internal/exchange"
	"margin_bot/internal/market"
	bootstrap "margin_bot/internal/modules/bootstrap/service"
	"margin_bot/internal/modules/config"
	health "margin_bot/internal/modules/health/service"
	"margin_bot/internal/notify"
	"margin_bot/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			func(cfg *config.Config, ex exchange.Client) *bootstrap.Watchlist {
				return bootstrap.NewWatchlist(ex, cfg.Trading.QuoteAsset, cfg.Trading.Symbols)
			},
			func(cfg *config.Config, ex exchange.Client, hub *market.Hub, bus *notify.Bus) *bootstrap.Warmuper {
				return bootstrap.NewWarmuper(ex, hub, bus, cfg.Trading.Interval, cfg.Trading.WarmupBars)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			ctx context.Context,
			cfg *config.Config,
			wl *bootstrap.Watchlist,
			wu *bootstrap.Warmuper,
			ws *exchange.KlineStream,
			hub *market.Hub,
			state *health.State,
		) {
			ctx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})

			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					ws.OnStatus(state.SetWSConnected)
					go func() {
						defer close(done)

						syms, err := wl.Resolve(ctx, cfg.Trading.WatchTopN)
						if err != nil {
							logger.Error("[BOOT] watchlist error: %v", err)
							return
						}
						if len(syms) == 0 {
							logger.Error("[BOOT] watchlist is empty")
							return
						}
						logger.Info("[BOOT] watchlist: %d symbols", len(syms))

						// прогрев не фатален: символы без истории дождутся закрытых свечей из стрима
						if err := wu.Warmup(ctx, syms); err != nil {
							logger.Warn("[BOOT] warmup error: %v", err)
						} else {
							logger.Info("[BOOT] warmup done: %d symbols", len(syms))
						}
						state.SetReady(true)

						hub.Run(ctx, ws.Stream(ctx, syms, cfg.Trading.Interval))
					}()
					return nil
				},
				OnStop: func(context.Context) error {
					cancel()
					<-done
					state.SetReady(false)
					return nil
				},
			})
		}),
	)
}
