package store

import (
	"context"
	"time"

	"github.com/bytedance/sonic"

	"margin_bot/internal/models"
)

// Repository — журнал сделок и событий. Для раннера это best-effort:
// ошибка записи не откатывает сделку.
type Repository interface {
	SaveOpened(ctx context.Context, p models.Position) error
	SaveClosed(ctx context.Context, p models.Position) error
	SaveEvent(ctx context.Context, e models.Event) error

	// LoadOpen — позиции, открытые на момент остановки (для восстановления слотов).
	LoadOpen(ctx context.Context) ([]models.Position, error)
	// ListClosed — последние закрытые сделки, новые первыми.
	ListClosed(ctx context.Context, limit int) ([]models.Position, error)
	Close() error
}

// Sink пишет события шины в Repository.
type Sink struct {
	repo Repository
}

func NewSink(repo Repository) *Sink { return &Sink{repo: repo} }

func (s *Sink) Name() string { return "store" }

func (s *Sink) Handle(ctx context.Context, e models.Event) error {
	switch e.Kind {
	case models.EventOpened:
		if e.Position != nil {
			if err := s.repo.SaveOpened(ctx, *e.Position); err != nil {
				return err
			}
		}
	case models.EventClosed:
		if e.Position != nil {
			if err := s.repo.SaveClosed(ctx, *e.Position); err != nil {
				return err
			}
		}
	}
	return s.repo.SaveEvent(ctx, e)
}

type orderRow struct {
	PositionID string
	OpenedAtMs int64
	Symbol     string
	Status     string
	ClosedAtMs int64
	Reason     string
	Profit     float64
	Payload    []byte
}

func toRow(p models.Position) (orderRow, error) {
	payload, err := sonic.Marshal(p)
	if err != nil {
		return orderRow{}, err
	}
	r := orderRow{
		PositionID: p.ID,
		OpenedAtMs: p.OpenedAt.UnixMilli(),
		Symbol:     p.Symbol,
		Status:     string(p.Status),
		Reason:     string(p.CloseReason),
		Profit:     p.Profit,
		Payload:    payload,
	}
	if !p.ClosedAt.IsZero() {
		r.ClosedAtMs = p.ClosedAt.UnixMilli()
	}
	return r, nil
}

func fromPayload(b []byte) (models.Position, error) {
	var p models.Position
	err := sonic.Unmarshal(b, &p)
	return p, err
}

func eventPayload(e models.Event) ([]byte, error) {
	return sonic.Marshal(e)
}

func ms(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}
