package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"margin_bot/internal/balance"
	"margin_bot/internal/models"
	"margin_bot/internal/report"
	"margin_bot/pkg/logger"
)

type Positions interface {
	Snapshot() []models.Position
}

type Trader interface {
	ManualClose(ctx context.Context, symbol string) (models.Position, error)
	SetTradingOpen(v bool)
	EnableTrading(ctx context.Context) (balance.Decision, error)
	TradingOpen() bool
	LastTick() time.Time
	Snapshots() []models.SignalSnapshot
}

type Settings interface {
	Current() models.RuntimeTradingSettings
	ApplyPreset(name string) (models.RuntimeTradingSettings, error)
}

type BalanceChecker interface {
	Check(ctx context.Context, st models.RuntimeTradingSettings, activeOrders int) (balance.Decision, error)
}

type History interface {
	ListClosed(ctx context.Context, limit int) ([]models.Position, error)
}

type AIHealth interface {
	Healthy(ctx context.Context) bool
}

type Deps struct {
	Positions Positions
	Trader    Trader
	Settings  Settings
	Balance   BalanceChecker
	History   History
	AI        AIHealth // nil, если ML-сервис не настроен
	Events    http.Handler
	Now       func() time.Time
}

// Handler — REST для дашборда и ручного управления.
type Handler struct {
	d Deps
}

func NewHandler(d Deps) *Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handler{d: d}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/positions", h.positions)
	mux.HandleFunc("POST /api/positions/{symbol}/close", h.closePosition)
	mux.HandleFunc("GET /api/balance", h.balance)
	mux.HandleFunc("GET /api/settings", h.settings)
	mux.HandleFunc("POST /api/settings/preset/{name}", h.preset)
	mux.HandleFunc("GET /api/trading", h.trading)
	mux.HandleFunc("POST /api/trading/{state}", h.setTrading)
	mux.HandleFunc("GET /api/orders/closed", h.closedOrders)
	mux.HandleFunc("GET /api/signals", h.signals)
	mux.HandleFunc("GET /api/ai/health", h.aiHealth)
	mux.HandleFunc("GET /api/ai/performance", h.performance)
	if h.d.Events != nil {
		mux.Handle("GET /ws", h.d.Events)
	}
}

func (h *Handler) positions(w http.ResponseWriter, _ *http.Request) {
	now := h.d.Now()
	ps := h.d.Positions.Snapshot()
	out := make([]positionDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, positionDTO{Position: p, PnLPct: p.PnLPct(), AgeSec: int64(p.Age(now).Seconds())})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) closePosition(w http.ResponseWriter, r *http.Request) {
	sym := strings.ToUpper(r.PathValue("symbol"))
	p, err := h.d.Trader.ManualClose(r.Context(), sym)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	active := 0
	for _, p := range h.d.Positions.Snapshot() {
		if p.Active() {
			active++
		}
	}
	d, err := h.d.Balance.Check(r.Context(), h.d.Settings.Current(), active)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) settings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Settings.Current())
}

func (h *Handler) preset(w http.ResponseWriter, r *http.Request) {
	st, err := h.d.Settings.ApplyPreset(r.PathValue("name"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) trading(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"open":     h.d.Trader.TradingOpen(),
		"lastTick": h.d.Trader.LastTick(),
	})
}

func (h *Handler) setTrading(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("state") {
	case "on":
		// включение только при достаточном балансе на свободные слоты
		d, err := h.d.Trader.EnableTrading(r.Context())
		if err != nil {
			writeJSON(w, statusFor(err), map[string]any{
				"error":   err.Error(),
				"balance": d,
			})
			return
		}
	case "off":
		h.d.Trader.SetTradingOpen(false)
	default:
		writeError(w, http.StatusBadRequest, errors.New("state must be on or off"))
		return
	}
	h.trading(w, r)
}

func (h *Handler) closedOrders(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	ps, err := h.d.History.ListClosed(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="orders.csv"`)
		if err := report.WriteCSV(w, ps); err != nil {
			logger.Warn("[API] csv export: %v", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *Handler) signals(w http.ResponseWriter, _ *http.Request) {
	snaps := h.d.Trader.Snapshots()
	out := make([]signalDTO, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, toSignalDTO(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) aiHealth(w http.ResponseWriter, r *http.Request) {
	if h.d.AI == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if !h.d.AI.Healthy(ctx) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) performance(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	ps, err := h.d.History.ListClosed(r.Context(), 5000)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report.Build(ps, h.d.Now(), days))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrCloseInFlight), errors.Is(err, models.ErrManualPending), errors.Is(err, models.ErrNotOpen),
		errors.Is(err, models.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidSettings):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := sonic.Marshal(v)
	if err != nil {
		logger.Error("[API] marshal: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
