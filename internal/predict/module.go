package predict

import (
	"go.uber.org/fx"

	"margin_bot/internal/modules/config"
	"margin_bot/pkg/logger"
)

type Providers struct {
	ML *MLClient
	AI *OpenAIClient
}

func NewProviders(cfg *config.Config) Providers {
	var p Providers
	if cfg.Predict.MLURL != "" {
		p.ML = NewMLClient(cfg.Predict.MLURL, cfg.Predict.Timeout)
	} else {
		logger.Warn("[PREDICT] ml_url is empty, ML predictions disabled")
	}
	if cfg.Predict.OpenAIKey != "" {
		p.AI = NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.Predict.OpenAIKey,
			BaseURL: cfg.Predict.OpenAIBaseURL,
			Model:   cfg.Predict.OpenAIModel,
			Timeout: cfg.Predict.Timeout,
		})
	} else {
		logger.Warn("[PREDICT] openai key is empty, OpenAI signals disabled")
	}
	return p
}

func NewFromConfig(cfg *config.Config, p Providers) *Enricher {
	// nil-указатель в интерфейсе не равен nil, поэтому раскладываем явно
	var ml, ai Provider
	if p.ML != nil {
		ml = p.ML
	}
	if p.AI != nil {
		ai = p.AI
	}
	return NewEnricher(ml, ai, cfg.Predict.Timeout, cfg.Predict.Parallel)
}

func Module() fx.Option {
	return fx.Module("predict",
		fx.Provide(
			NewProviders,
			NewFromConfig,
		),
	)
}
