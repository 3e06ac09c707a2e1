package tracing

import (
	"fmt"
	"io"

	"github.com/opentracing/opentracing-go"
	jCfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"

	"margin_bot/pkg/logger"
)

type Config struct {
	ServiceName string
	Host        string
	Port        int
	// доля сэмплируемых трейсов, 0 — по умолчанию все
	SampleRate float64
}

// InitTracer ставит глобальный jaeger-трейсер. Без хоста трейсинг выключен:
// остаётся noop-трейсер opentracing, спаны ничего не стоят.
func InitTracer(conf Config) (opentracing.Tracer, func(), error) {
	if conf.Host == "" {
		logger.Warn("[TRACE] jaeger host is empty, tracing disabled")
		return opentracing.NoopTracer{}, func() {}, nil
	}
	if conf.ServiceName == "" {
		conf.ServiceName = "margin_bot"
	}

	sampler := &jCfg.SamplerConfig{Type: "const", Param: 1}
	if conf.SampleRate > 0 && conf.SampleRate < 1 {
		sampler = &jCfg.SamplerConfig{Type: "probabilistic", Param: conf.SampleRate}
	}

	cfg := &jCfg.Configuration{
		ServiceName: conf.ServiceName,
		Sampler:     sampler,
		Reporter: &jCfg.ReporterConfig{
			LogSpans:           false,
			LocalAgentHostPort: fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		},
	}

	tracer, closer, err := cfg.NewTracer(
		jCfg.Metrics(metrics.NullFactory),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("tracing.InitTracer: %w", err)
	}

	opentracing.SetGlobalTracer(tracer)
	return tracer, closeFn(closer), nil
}

func closeFn(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Error("[TRACE] error closing jaeger tracer: %v", err)
		}
	}
}
