package models

import "time"

type EventKind string

const (
	EventOpened              EventKind = "opened"
	EventClosed              EventKind = "closed"
	EventReplaced            EventKind = "replaced"
	EventInsufficientBalance EventKind = "insufficientBalance"
	EventRejected            EventKind = "rejected"
	EventService             EventKind = "service"
)

// Event — исходящее уведомление (лог, телеграм, дашборд, redis, БД).
type Event struct {
	Kind       EventKind   `json:"kind"`
	At         time.Time   `json:"at"`
	Symbol     string      `json:"symbol,omitempty"`
	PositionID string      `json:"position_id,omitempty"`
	Reason     CloseReason `json:"reason,omitempty"`
	Price      float64     `json:"price,omitempty"`
	Profit     float64     `json:"profit,omitempty"`

	// replaced
	OldSymbol string  `json:"replaced,omitempty"`
	NewSymbol string  `json:"added,omitempty"`
	OldScore  float64 `json:"replaced_score,omitempty"`
	NewScore  float64 `json:"new_score,omitempty"`

	// insufficientBalance
	Available float64 `json:"available,omitempty"`
	Required  float64 `json:"required,omitempty"`

	// rejected
	Error string `json:"error,omitempty"`

	// service
	Message string `json:"message,omitempty"`

	// opened/closed: полная копия позиции для стора и дашборда
	Position *Position `json:"position,omitempty"`
}
