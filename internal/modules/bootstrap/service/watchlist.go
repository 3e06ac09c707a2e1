package service

import (
	"context"
	"strings"

	"margin_bot/internal/models"
)

type SymbolSource interface {
	TopSymbols(ctx context.Context, quote string, n int) ([]models.Symbol, error)
}

// Watchlist — символы для стрима: фиксированный список из конфига или топ по объёму.
type Watchlist struct {
	src   SymbolSource
	quote string
	fixed []string
}

func NewWatchlist(src SymbolSource, quote string, fixed []string) *Watchlist {
	return &Watchlist{src: src, quote: quote, fixed: fixed}
}

func (w *Watchlist) Resolve(ctx context.Context, n int) ([]string, error) {
	if len(w.fixed) > 0 {
		out := make([]string, 0, len(w.fixed))
		seen := make(map[string]struct{}, len(w.fixed))
		for _, s := range w.fixed {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
		return out, nil
	}

	top, err := w.src.TopSymbols(ctx, w.quote, n)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(top))
	for _, s := range top {
		out = append(out, s.Name)
	}
	return out, nil
}
