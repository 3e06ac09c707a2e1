package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

const defaultBaseURL = "https://api.binance.com"

type BinanceConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	RecvWindow time.Duration
	Timeout    time.Duration
}

// Binance — спотовый REST-клиент (подписанные запросы HMAC-SHA256).
type Binance struct {
	mu      sync.RWMutex
	prices  map[string]float64
	filters map[string]lotFilter

	http      *http.Client
	baseURL   string
	apiKey    string
	apiSecret string
	recv      time.Duration
	now       func() time.Time
}

func NewBinance(cfg BinanceConfig) *Binance {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Binance{
		prices:    make(map[string]float64),
		filters:   make(map[string]lotFilter),
		http:      &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		recv:      cfg.RecvWindow,
		now:       time.Now,
	}
}

func (b *Binance) SetPrice(symbol string, price float64) {
	b.mu.Lock()
	b.prices[symbol] = price
	b.mu.Unlock()
}

func (b *Binance) GetPrice(symbol string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.prices[symbol]
}

func (b *Binance) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// signed — приватный запрос: timestamp + recvWindow + signature в query.
func (b *Binance) signed(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if b.apiKey == "" || b.apiSecret == "" {
		return nil, errors.New("api creds empty")
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(b.now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(b.recv.Milliseconds(), 10))
	query := params.Encode()
	query += "&signature=" + b.sign(query)

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path+"?"+query, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("X-MBX-APIKEY", b.apiKey)
	return b.do(req)
}

func (b *Binance) public(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := b.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	return b.do(req)
}

func (b *Binance) do(req *http.Request) ([]byte, error) {
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := sonic.Unmarshal(data, apiErr); err != nil || apiErr.Msg == "" {
			apiErr.Msg = string(data)
		}
		return nil, apiErr
	}
	return data, nil
}

func parseFloat(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse: %v (%q)", name, err, s)
	}
	return v, nil
}
