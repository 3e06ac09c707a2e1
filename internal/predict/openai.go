package predict

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"margin_bot/internal/models"
)

const systemPrompt = `You are a crypto spot trading assistant. Given recent 1m candles and indicators for one symbol, ` +
	`predict the price direction for the next 15 minutes. Answer with JSON only: ` +
	`{"direction":"up|down|sideways","confidence":0..1,"risk":"low|medium|high","reason":"short text"}`

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Candles int // сколько последних свечей в промпт
}

// OpenAIClient — прогноз через chat completions с JSON-ответом.
type OpenAIClient struct {
	client  openai.Client
	model   string
	candles int
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	opts = append(opts, option.WithMaxRetries(0))
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Candles <= 0 {
		cfg.Candles = 30
	}
	return &OpenAIClient{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		candles: cfg.Candles,
	}
}

func (c *OpenAIClient) Name() string { return SourceOpenAI }

type aiAnswer struct {
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Risk       string  `json:"risk"`
	Reason     string  `json:"reason"`
}

func (c *OpenAIClient) Predict(ctx context.Context, in Input) (models.Prediction, error) {
	format := shared.NewResponseFormatJSONObjectParam()
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(c.prompt(in)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &format},
		Temperature:    openai.Float(0.2),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("openai %s: %w", in.Symbol, err)
	}
	if len(resp.Choices) == 0 {
		return models.Prediction{}, fmt.Errorf("openai %s: empty choices", in.Symbol)
	}
	return parseAnswer(resp.Choices[0].Message.Content)
}

func parseAnswer(content string) (models.Prediction, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimSuffix(strings.TrimPrefix(content, "```"), "```")

	var a aiAnswer
	if err := sonic.UnmarshalString(strings.TrimSpace(content), &a); err != nil {
		return models.Prediction{}, fmt.Errorf("openai decode: %w", err)
	}
	dir, ok := ParseDirection(a.Direction)
	if !ok {
		return models.Prediction{}, fmt.Errorf("openai: unknown direction %q", a.Direction)
	}
	// иногда модель отвечает в процентах
	if a.Confidence > 1 && a.Confidence <= 100 {
		a.Confidence /= 100
	}
	p := models.Available(SourceOpenAI, dir, a.Confidence)
	p.Reason = a.Reason
	return p, nil
}

func (c *OpenAIClient) prompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\n", in.Symbol)

	ind := in.Indicators
	fmt.Fprintf(&b, "RSI(14)=%s MACD=%s signal=%s hist=%s EMA(20)=%s StochK=%s StochD=%s ATR=%s\n",
		fv(ind.RSI), fv(ind.MACD), fv(ind.MACDSignal), fv(ind.MACDHist), fv(ind.EMA), fv(ind.StochK), fv(ind.StochD), fv(ind.ATR))

	candles := in.Candles
	if len(candles) > c.candles {
		candles = candles[len(candles)-c.candles:]
	}
	b.WriteString("Candles (time,open,high,low,close,volume):\n")
	for _, k := range candles {
		fmt.Fprintf(&b, "%s,%g,%g,%g,%g,%g\n", k.OpenTime.UTC().Format("15:04"), k.Open, k.High, k.Low, k.Close, k.Volume)
	}
	return b.String()
}

func fv(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.6g", v)
}
