package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"margin_bot/internal/modules/config"
	"margin_bot/pkg/logger"
)

const queueSize = 1024

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			func() *Bus { return NewBus(queueSize) },
			NewHub,
		),
		fx.Invoke(func(lc fx.Lifecycle, bus *Bus, hub *Hub, cfg *config.Config, ctx context.Context) {
			bus.Register(LogSink{})
			bus.Register(hub)

			var rdb *redis.Client
			lc.Append(fx.Hook{
				OnStart: func(startCtx context.Context) error {
					if cfg.Redis.Addr != "" {
						rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
						if err := rdb.Ping(startCtx).Err(); err != nil {
							// без redis бот торгует дальше
							logger.Error("[NOTIFY] redis %s unavailable: %v", cfg.Redis.Addr, err)
						} else {
							bus.Register(NewRedisSink(rdb, cfg.Redis.Stream, cfg.Redis.Channel))
						}
					}
					bus.Start(ctx)
					return nil
				},
				OnStop: func(context.Context) error {
					bus.Stop()
					hub.Close()
					if rdb != nil {
						return rdb.Close()
					}
					return nil
				},
			})
		}),
	)
}
