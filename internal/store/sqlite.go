package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"margin_bot/internal/models"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)

	r := &SQLite{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate sqlite")
	}
	return r, nil
}

func (r *SQLite) Close() error { return r.db.Close() }

func (r *SQLite) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS orders (
  position_id TEXT NOT NULL,
  opened_at_ms INTEGER NOT NULL,
  symbol TEXT NOT NULL,
  status TEXT NOT NULL,
  closed_at_ms INTEGER NOT NULL DEFAULT 0,
  close_reason TEXT NOT NULL DEFAULT '',
  profit REAL NOT NULL DEFAULT 0,
  payload TEXT NOT NULL,
  PRIMARY KEY (position_id, opened_at_ms)
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_closed ON orders(closed_at_ms);

CREATE TABLE IF NOT EXISTS events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  kind TEXT NOT NULL,
  symbol TEXT NOT NULL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts_ms);
`)
	return err
}

const sqliteUpsertOrder = `
INSERT INTO orders(position_id, opened_at_ms, symbol, status, closed_at_ms, close_reason, profit, payload)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(position_id, opened_at_ms) DO UPDATE SET
  status = excluded.status,
  closed_at_ms = excluded.closed_at_ms,
  close_reason = excluded.close_reason,
  profit = excluded.profit,
  payload = excluded.payload`

func (r *SQLite) upsert(ctx context.Context, p models.Position) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("sqlite.upsert %s: %w", p.ID, err)
		}
	}()
	row, err := toRow(p)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqliteUpsertOrder,
		row.PositionID, row.OpenedAtMs, row.Symbol, row.Status,
		row.ClosedAtMs, row.Reason, row.Profit, string(row.Payload))
	return err
}

func (r *SQLite) SaveOpened(ctx context.Context, p models.Position) error { return r.upsert(ctx, p) }

func (r *SQLite) SaveClosed(ctx context.Context, p models.Position) error { return r.upsert(ctx, p) }

func (r *SQLite) SaveEvent(ctx context.Context, e models.Event) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("sqlite.SaveEvent: %w", err)
		}
	}()
	payload, err := eventPayload(e)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO events(ts_ms, kind, symbol, payload) VALUES(?, ?, ?, ?)`,
		ms(e.At), string(e.Kind), e.Symbol, string(payload))
	return err
}

func (r *SQLite) LoadOpen(ctx context.Context) ([]models.Position, error) {
	return r.query(ctx, `SELECT payload FROM orders WHERE status = ? ORDER BY opened_at_ms`, string(models.StatusOpen))
}

func (r *SQLite) ListClosed(ctx context.Context, limit int) ([]models.Position, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx, `SELECT payload FROM orders WHERE status = ? ORDER BY closed_at_ms DESC LIMIT ?`,
		string(models.StatusClosed), limit)
}

func (r *SQLite) query(ctx context.Context, q string, args ...any) (out []models.Position, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("sqlite.query: %w", err)
		}
	}()
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		p, err := fromPayload([]byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
