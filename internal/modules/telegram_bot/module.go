package telegram

import (
	"context"

	"go.uber.org/fx"

	"margin_bot/internal/balance"
	"margin_bot/internal/modules/config"
	"margin_bot/internal/modules/telegram_bot/service"
	"margin_bot/internal/notify"
	"margin_bot/internal/runner"
	"margin_bot/internal/settings"
	"margin_bot/pkg/logger"
)

// NewTelegram — nil без токена: бот работает и без телеграма.
func NewTelegram(cfg *config.Config, r *runner.Runner, st *settings.Store, gate *balance.Gate) (*service.Telegram, error) {
	if cfg.Telegram.Token == "" {
		logger.Warn("[TG] token is empty, telegram disabled")
		return nil, nil
	}
	if cfg.Telegram.ChatID == 0 {
		logger.Warn("[TG] chat_id is empty, commands are accepted from any chat and notifications are off")
	}
	return service.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, service.Deps{
		Trader:    r,
		Positions: r.Table(),
		Settings:  st,
		Balance:   gate,
	})
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			NewTelegram, // *service.Telegram
		),
		// Запуск основного цикла через Lifecycle
		fx.Invoke(
			func(lc fx.Lifecycle, ctx context.Context, t *service.Telegram, bus *notify.Bus) {
				if t == nil {
					return
				}
				bus.Register(t)
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						t.Start(ctx)
						return nil
					},
					OnStop: func(context.Context) error {
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
