package api

import (
	"net/http"

	"go.uber.org/fx"

	"margin_bot/internal/balance"
	"margin_bot/internal/notify"
	"margin_bot/internal/predict"
	"margin_bot/internal/runner"
	"margin_bot/internal/settings"
	"margin_bot/internal/store"
)

type params struct {
	fx.In

	Runner    *runner.Runner
	Settings  *settings.Store
	Gate      *balance.Gate
	Repo      store.Repository
	Providers predict.Providers
	Hub       *notify.Hub
}

func NewFromDeps(p params) *Handler {
	d := Deps{
		Positions: p.Runner.Table(),
		Trader:    p.Runner,
		Settings:  p.Settings,
		Balance:   p.Gate,
		History:   p.Repo,
		Events:    p.Hub,
	}
	if p.Providers.ML != nil {
		d.AI = p.Providers.ML
	}
	return NewHandler(d)
}

func Module() fx.Option {
	return fx.Module("api",
		fx.Provide(NewFromDeps),
		fx.Invoke(func(mux *http.ServeMux, h *Handler) {
			h.Register(mux)
		}),
	)
}
