package predict

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"margin_bot/internal/models"
)

// MLClient — HTTP-клиент сервиса модели (LSTM на python).
type MLClient struct {
	baseURL string
	http    *http.Client
}

func NewMLClient(baseURL string, timeout time.Duration) *MLClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &MLClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *MLClient) Name() string { return SourceML }

type mlCandle struct {
	OpenTime int64   `json:"t"`
	Open     float64 `json:"o"`
	High     float64 `json:"h"`
	Low      float64 `json:"l"`
	Close    float64 `json:"c"`
	Volume   float64 `json:"v"`
}

type mlRequest struct {
	Symbol  string     `json:"symbol"`
	Candles []mlCandle `json:"candles"`
}

// Score: [down, sideways, up]
type mlResponse struct {
	Prediction     string    `json:"prediction"`
	Confidence     float64   `json:"confidence"`
	ExpectedReturn float64   `json:"expected_return"`
	Score          []float64 `json:"score"`
}

// минимальная история, на которой модель обучена
const mlMinCandles = 50

func (c *MLClient) Predict(ctx context.Context, in Input) (models.Prediction, error) {
	if len(in.Candles) < mlMinCandles {
		return models.Prediction{}, fmt.Errorf("ml: need %d candles, have %d", mlMinCandles, len(in.Candles))
	}

	req := mlRequest{Symbol: in.Symbol, Candles: make([]mlCandle, 0, len(in.Candles))}
	for _, k := range in.Candles {
		req.Candles = append(req.Candles, mlCandle{
			OpenTime: k.OpenTime.UnixMilli(),
			Open:     k.Open, High: k.High, Low: k.Low, Close: k.Close, Volume: k.Volume,
		})
	}
	body, err := sonic.Marshal(req)
	if err != nil {
		return models.Prediction{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return models.Prediction{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("ml predict %s: %w", in.Symbol, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return models.Prediction{}, fmt.Errorf("ml predict http %d: %s", resp.StatusCode, string(data))
	}

	var r mlResponse
	if err := sonic.Unmarshal(data, &r); err != nil {
		return models.Prediction{}, fmt.Errorf("ml decode: %w", err)
	}
	dir, ok := ParseDirection(r.Prediction)
	if !ok {
		return models.Prediction{}, fmt.Errorf("ml: unknown label %q", r.Prediction)
	}

	p := models.Available(SourceML, dir, r.Confidence)
	p.ExpectedReturn = r.ExpectedReturn
	if len(r.Score) == 3 {
		p.ProbDown, p.ProbSideway, p.ProbUp = r.Score[0], r.Score[1], r.Score[2]
	}
	return p, nil
}

// Healthy — GET /health отвечает 2xx.
func (c *MLClient) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode/100 == 2
}
