package exchange

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"margin_bot/internal/models"
)

type ticker24h struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	QuoteVolume string `json:"quoteVolume"`
}

// Стейблы в вотчлист не берём.
var skipBases = map[string]bool{"USDT": true, "USDC": true, "FDUSD": true, "TUSD": true, "BUSD": true, "DAI": true, "EUR": true}

// TopSymbols — топ-n пар к quote по 24h обороту в котируемой валюте.
func (b *Binance) TopSymbols(ctx context.Context, quote string, n int) ([]models.Symbol, error) {
	if n <= 0 {
		return nil, nil
	}
	data, err := b.public(ctx, "/api/v3/ticker/24hr", nil)
	if err != nil {
		return nil, fmt.Errorf("ticker 24hr: %w", err)
	}
	var tickers []ticker24h
	if err := sonic.Unmarshal(data, &tickers); err != nil {
		return nil, fmt.Errorf("ticker 24hr decode: %w", err)
	}

	arr := make([]models.Symbol, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, quote) {
			continue
		}
		base := strings.TrimSuffix(t.Symbol, quote)
		if base == "" || skipBases[base] {
			continue
		}
		last, _ := strconv.ParseFloat(t.LastPrice, 64)
		vol, _ := strconv.ParseFloat(t.QuoteVolume, 64)
		if last <= 0 || vol <= 0 {
			continue
		}
		b.SetPrice(t.Symbol, last)
		arr = append(arr, models.Symbol{Name: t.Symbol, Capitalisation: vol})
	}

	sort.Slice(arr, func(i, j int) bool { return arr[i].Capitalisation > arr[j].Capitalisation })
	if n > len(arr) {
		n = len(arr)
	}
	arr = arr[:n]
	for i := range arr {
		arr[i].Rank = i + 1
	}
	return arr, nil
}

type lotFilter struct {
	StepSize float64
	MinQty   float64
}

func (f lotFilter) floor(q float64) float64 {
	if f.StepSize <= 0 {
		return q
	}
	return math.Floor(q/f.StepSize+1e-9) * f.StepSize
}

func (f lotFilter) format(q float64) string {
	prec := 8
	if f.StepSize > 0 {
		prec = int(math.Max(0, math.Round(-math.Log10(f.StepSize))))
	}
	return strconv.FormatFloat(q, 'f', prec, 64)
}

// lotFilter — LOT_SIZE из exchangeInfo, кэшируется на символ.
func (b *Binance) lotFilter(ctx context.Context, symbol string) (lotFilter, error) {
	b.mu.RLock()
	f, ok := b.filters[symbol]
	b.mu.RUnlock()
	if ok {
		return f, nil
	}

	data, err := b.public(ctx, "/api/v3/exchangeInfo", url.Values{"symbol": {symbol}})
	if err != nil {
		return lotFilter{}, err
	}
	var info struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Status  string `json:"status"`
			Filters []struct {
				FilterType string `json:"filterType"`
				StepSize   string `json:"stepSize"`
				MinQty     string `json:"minQty"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := sonic.Unmarshal(data, &info); err != nil {
		return lotFilter{}, fmt.Errorf("exchangeInfo decode: %w", err)
	}
	if len(info.Symbols) == 0 {
		return lotFilter{}, fmt.Errorf("symbol %s not found", symbol)
	}
	s := info.Symbols[0]
	if s.Status != "" && s.Status != "TRADING" {
		return lotFilter{}, fmt.Errorf("symbol %s not trading: status=%s", symbol, s.Status)
	}
	for _, fl := range s.Filters {
		if fl.FilterType != "LOT_SIZE" {
			continue
		}
		if f.StepSize, err = parseFloat("stepSize", fl.StepSize); err != nil {
			return lotFilter{}, err
		}
		if f.MinQty, err = parseFloat("minQty", fl.MinQty); err != nil {
			return lotFilter{}, err
		}
	}

	b.mu.Lock()
	b.filters[symbol] = f
	b.mu.Unlock()
	return f, nil
}

// Klines — история закрытых свечей для прогрева индикаторов, oldest-first.
func (b *Binance) Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	data, err := b.public(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}
	// строка: [openTime, o, h, l, c, v, closeTime, ...]
	var rows [][]any
	if err := sonic.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("klines decode: %w", err)
	}

	out := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		c := models.Candle{Symbol: symbol, Interval: interval, Closed: true}
		c.OpenTime = time.UnixMilli(int64(num(row[0])))
		c.CloseTime = time.UnixMilli(int64(num(row[6])))
		c.Open, c.High, c.Low, c.Close, c.Volume = num(row[1]), num(row[2]), num(row[3]), num(row[4]), num(row[5])
		if c.Close <= 0 {
			continue
		}
		out = append(out, c)
	}
	// последняя строка — текущая незакрытая свеча
	if n := len(out); n > 0 && out[n-1].CloseTime.After(b.now()) {
		out = out[:n-1]
	}
	if n := len(out); n > 0 {
		b.SetPrice(symbol, out[n-1].Close)
	}
	return out, nil
}

func num(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case int64:
		return float64(t)
	}
	return 0
}
