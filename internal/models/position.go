package models

import "time"

type PositionStatus string

const (
	StatusOpening          PositionStatus = "OPENING" // слот зарезервирован, buy в полёте
	StatusOpen             PositionStatus = "OPEN"
	StatusClosingRequested PositionStatus = "CLOSING"
	StatusClosed           PositionStatus = "CLOSED"
)

type CloseReason string

const (
	ReasonNone         CloseReason = ""
	ReasonStopLoss     CloseReason = "stop-loss"
	ReasonTakeProfit   CloseReason = "take-profit"
	ReasonTimeKill     CloseReason = "time-kill"
	ReasonTrailingStop CloseReason = "trailing-stop"
	ReasonWeakTrend    CloseReason = "weak-trend"
	ReasonAIVeto       CloseReason = "ai-veto"
	ReasonReplaced     CloseReason = "replaced"
	ReasonManual       CloseReason = "manual"
)

type Position struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Symbol  string `json:"symbol"`
	Side    Side   `json:"side"`

	OpenPrice    float64   `json:"open_price"`
	OpenedAt     time.Time `json:"opened_at"`
	HighPrice    float64   `json:"high_price"`
	CurrentPrice float64   `json:"current_price"`
	Quantity     float64   `json:"quantity"`
	QuoteQty     float64   `json:"quote_qty"`

	EntryAI         Prediction `json:"entry_ai"`
	EntryTrendScore float64    `json:"entry_trend_score"`
	TrendScore      float64    `json:"trend_score"`
	ExitAI          Prediction `json:"exit_ai"`

	Status     PositionStatus `json:"status"`
	TrailArmed bool           `json:"trail_armed"`
	Manual     bool           `json:"manual,omitempty"`

	ClosePrice  float64     `json:"close_price,omitempty"`
	ClosedAt    time.Time   `json:"closed_at,omitempty"`
	CloseReason CloseReason `json:"close_reason,omitempty"`
	Profit      float64     `json:"profit,omitempty"`
}

// Active — позиция занимает слот.
func (p Position) Active() bool { return p.Status != StatusClosed }

// PnLPct — нереализованный результат в процентах от цены входа.
func (p Position) PnLPct() float64 {
	if p.OpenPrice <= 0 {
		return 0
	}
	return (p.CurrentPrice - p.OpenPrice) / p.OpenPrice * 100
}

func (p Position) Age(now time.Time) time.Duration { return now.Sub(p.OpenedAt) }
