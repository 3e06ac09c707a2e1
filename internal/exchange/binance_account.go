package exchange

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
)

type accountResp struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// Balances — свободные остатки по всем ненулевым активам.
func (b *Binance) Balances(ctx context.Context) (map[string]float64, error) {
	data, err := b.signed(ctx, http.MethodGet, "/api/v3/account", nil)
	if err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	var r accountResp
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("account decode: %w", err)
	}

	out := make(map[string]float64, len(r.Balances))
	for _, bal := range r.Balances {
		free, err := parseFloat(bal.Asset+".free", bal.Free)
		if err != nil {
			return nil, err
		}
		if free > 0 {
			out[bal.Asset] = free
		}
	}
	return out, nil
}

func (b *Binance) GetBalance(ctx context.Context, asset string) (float64, error) {
	all, err := b.Balances(ctx)
	if err != nil {
		return 0, err
	}
	return all[asset], nil
}
