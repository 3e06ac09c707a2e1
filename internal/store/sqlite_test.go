package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margin_bot/internal/models"
)

func newRepo(t *testing.T) *SQLite {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "sub", "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

var opened = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func position(id, sym string) models.Position {
	return models.Position{
		ID: id, Symbol: sym, Status: models.StatusOpen,
		OpenPrice: 10, HighPrice: 11, Quantity: 2, QuoteQty: 20,
		OpenedAt: opened, EntryTrendScore: 0.7,
		EntryAI: models.Available("openai", models.DirectionUp, 0.8),
	}
}

func TestSQLite_OpenThenClose(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	p := position("AAA-1", "AAA")
	require.NoError(t, repo.SaveOpened(ctx, p))
	require.NoError(t, repo.SaveOpened(ctx, position("BBB-2", "BBB")))

	open, err := repo.LoadOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "AAA", open[0].Symbol)
	assert.Equal(t, models.DirectionUp, open[0].EntryAI.Direction)
	assert.True(t, open[0].OpenedAt.Equal(opened))

	p.Status = models.StatusClosed
	p.ClosePrice = 12
	p.ClosedAt = opened.Add(time.Hour)
	p.CloseReason = models.ReasonTakeProfit
	p.Profit = 4
	require.NoError(t, repo.SaveClosed(ctx, p))

	open, err = repo.LoadOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "BBB", open[0].Symbol)

	closed, err := repo.ListClosed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, models.ReasonTakeProfit, closed[0].CloseReason)
	assert.Equal(t, 4.0, closed[0].Profit)
}

func TestSQLite_SameIDDifferentOpenTimeKeptApart(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	first := position("AAA-1", "AAA")
	first.Status = models.StatusClosed
	first.ClosedAt = opened.Add(time.Minute)
	require.NoError(t, repo.SaveClosed(ctx, first))

	// после рестарта счётчик id начинается заново
	second := position("AAA-1", "AAA")
	second.OpenedAt = opened.Add(time.Hour)
	require.NoError(t, repo.SaveOpened(ctx, second))

	closed, _ := repo.ListClosed(ctx, 10)
	open, _ := repo.LoadOpen(ctx)
	assert.Len(t, closed, 1)
	assert.Len(t, open, 1)
}

func TestSink_PersistsEventsAndPositions(t *testing.T) {
	repo := newRepo(t)
	sink := NewSink(repo)
	ctx := context.Background()

	p := position("CCC-1", "CCC")
	require.NoError(t, sink.Handle(ctx, models.Event{Kind: models.EventOpened, At: opened, Symbol: "CCC", Position: &p}))
	require.NoError(t, sink.Handle(ctx, models.Event{Kind: models.EventRejected, At: opened, Symbol: "DDD", Error: "boom"}))

	open, err := repo.LoadOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	var n int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n))
	assert.Equal(t, 2, n)
}
