package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"margin_bot/internal/models"
	"margin_bot/pkg/db"
)

// Postgres — тот же журнал поверх pgx через менеджер транзакций.
type Postgres struct {
	db *db.PgTxManager
}

func NewPostgres(ctx context.Context, m *db.PgTxManager) (*Postgres, error) {
	r := &Postgres{db: m}
	if err := r.migrate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Postgres) Close() error {
	r.db.Close()
	return nil
}

func (r *Postgres) migrate(ctx context.Context) error {
	_, err := r.db.Conn().Exec(ctx, `
CREATE TABLE IF NOT EXISTS orders (
  position_id TEXT NOT NULL,
  opened_at_ms BIGINT NOT NULL,
  symbol TEXT NOT NULL,
  status TEXT NOT NULL,
  closed_at_ms BIGINT NOT NULL DEFAULT 0,
  close_reason TEXT NOT NULL DEFAULT '',
  profit DOUBLE PRECISION NOT NULL DEFAULT 0,
  payload JSONB NOT NULL,
  PRIMARY KEY (position_id, opened_at_ms)
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_closed ON orders(closed_at_ms);

CREATE TABLE IF NOT EXISTS events (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  kind TEXT NOT NULL,
  symbol TEXT NOT NULL,
  payload JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts_ms);
`)
	if err != nil {
		return fmt.Errorf("pg.migrate: %w", err)
	}
	return nil
}

const pgUpsertOrder = `
INSERT INTO orders(position_id, opened_at_ms, symbol, status, closed_at_ms, close_reason, profit, payload)
VALUES($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT(position_id, opened_at_ms) DO UPDATE SET
  status = EXCLUDED.status,
  closed_at_ms = EXCLUDED.closed_at_ms,
  close_reason = EXCLUDED.close_reason,
  profit = EXCLUDED.profit,
  payload = EXCLUDED.payload`

func (r *Postgres) upsert(ctx context.Context, p models.Position) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.upsert %s: %w", p.ID, err)
		}
	}()
	row, err := toRow(p)
	if err != nil {
		return err
	}
	return r.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, pgUpsertOrder,
			row.PositionID, row.OpenedAtMs, row.Symbol, row.Status,
			row.ClosedAtMs, row.Reason, row.Profit, row.Payload)
		return err
	})
}

func (r *Postgres) SaveOpened(ctx context.Context, p models.Position) error { return r.upsert(ctx, p) }

func (r *Postgres) SaveClosed(ctx context.Context, p models.Position) error { return r.upsert(ctx, p) }

func (r *Postgres) SaveEvent(ctx context.Context, e models.Event) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.SaveEvent: %w", err)
		}
	}()
	payload, err := eventPayload(e)
	if err != nil {
		return err
	}
	_, err = r.db.Conn().Exec(ctx,
		`INSERT INTO events(ts_ms, kind, symbol, payload) VALUES($1, $2, $3, $4)`,
		ms(e.At), string(e.Kind), e.Symbol, payload)
	return err
}

func (r *Postgres) LoadOpen(ctx context.Context) ([]models.Position, error) {
	return r.query(ctx, `SELECT payload FROM orders WHERE status = $1 ORDER BY opened_at_ms`, string(models.StatusOpen))
}

func (r *Postgres) ListClosed(ctx context.Context, limit int) ([]models.Position, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx, `SELECT payload FROM orders WHERE status = $1 ORDER BY closed_at_ms DESC LIMIT $2`,
		string(models.StatusClosed), limit)
}

func (r *Postgres) query(ctx context.Context, q string, args ...any) (out []models.Position, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.query: %w", err)
		}
	}()
	rows, err := r.db.Conn().Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		p, err := fromPayload(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
