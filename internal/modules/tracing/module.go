package tracing

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"

	"margin_bot/internal/modules/config"
	"margin_bot/pkg/tracing"
)

func Module() fx.Option {
	return fx.Module("tracing",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config) (opentracing.Tracer, error) {
				tr, closer, err := tracing.InitTracer(tracing.Config{
					ServiceName: cfg.Service.Name,
					Host:        cfg.Tracing.Host,
					Port:        cfg.Tracing.Port,
					SampleRate:  cfg.Tracing.SampleRate,
				})
				if err != nil {
					return nil, err
				}
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						closer()
						return nil
					},
				})
				return tr, nil
			},
		),
		// трейсер нужен глобально (opentracing.StartSpanFromContext), поэтому форсим создание
		fx.Invoke(func(opentracing.Tracer) {}),
	)
}
