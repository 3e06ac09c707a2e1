package config

import (
	"go.uber.org/fx"

	"margin_bot/pkg/logger"
)

// Module — конфиг и логгер. Инициализация логгера идёт первым invoke, до остальных модулей.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
		),
		fx.Invoke(InitLogger),
	)
}

func InitLogger(cfg *Config) error {
	logger.SetServiceName(cfg.Service.Name)
	if _, err := logger.Init(cfg.Log); err != nil {
		return err
	}
	logger.Info("[CONFIG] %s: exchange=%s quote=%s store=%s", cfg.Service.Name, cfg.Exchange.Mode, cfg.Trading.QuoteAsset, cfg.Store.Driver)
	return nil
}
