package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"

	"margin_bot/internal/models"
)

type orderResp struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Fills               []struct {
		Price string `json:"price"`
		Qty   string `json:"qty"`
	} `json:"fills"`
}

// PlaceBuy — маркет-покупка на сумму quoteQty в котируемой валюте.
func (b *Binance) PlaceBuy(ctx context.Context, symbol string, quoteQty float64) (models.Fill, error) {
	if quoteQty <= 0 {
		return models.Fill{}, fmt.Errorf("PlaceBuy: quoteQty <= 0")
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", "BUY")
	params.Set("type", "MARKET")
	params.Set("quoteOrderQty", strconv.FormatFloat(quoteQty, 'f', -1, 64))
	params.Set("newOrderRespType", "FULL")

	return b.placeOrder(ctx, models.SideBuy, params)
}

// PlaceSell — маркет-продажа количества qty, округлённого вниз до шага лота.
func (b *Binance) PlaceSell(ctx context.Context, symbol string, qty float64) (models.Fill, error) {
	f, err := b.lotFilter(ctx, symbol)
	if err != nil {
		return models.Fill{}, fmt.Errorf("PlaceSell filters: %w", err)
	}
	q := f.floor(qty)
	if q <= 0 || q < f.MinQty {
		return models.Fill{}, fmt.Errorf("PlaceSell: qty %.8f below lot min %.8f", qty, f.MinQty)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", "SELL")
	params.Set("type", "MARKET")
	params.Set("quantity", f.format(q))
	params.Set("newOrderRespType", "FULL")

	return b.placeOrder(ctx, models.SideSell, params)
}

func (b *Binance) placeOrder(ctx context.Context, side models.Side, params url.Values) (models.Fill, error) {
	symbol := params.Get("symbol")
	data, err := b.signed(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return models.Fill{}, fmt.Errorf("place %s %s: %w", side, symbol, err)
	}

	var r orderResp
	if err := sonic.Unmarshal(data, &r); err != nil {
		return models.Fill{}, fmt.Errorf("place %s decode: %w; body=%s", side, err, string(data))
	}

	qty, err := parseFloat("executedQty", r.ExecutedQty)
	if err != nil {
		return models.Fill{}, err
	}
	quote, err := parseFloat("cummulativeQuoteQty", r.CummulativeQuoteQty)
	if err != nil {
		return models.Fill{}, err
	}
	if qty <= 0 {
		return models.Fill{}, fmt.Errorf("place %s %s: nothing executed, status=%s", side, symbol, r.Status)
	}

	fill := models.Fill{
		OrderID:  strconv.FormatInt(r.OrderID, 10),
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		QuoteQty: quote,
		Price:    quote / qty,
	}
	b.SetPrice(symbol, fill.Price)
	return fill, nil
}
