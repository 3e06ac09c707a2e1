package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margin_bot/internal/models"
)

var now = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func closed(sym string, profit float64, entry, exit models.Prediction, ago time.Duration) models.Position {
	closePrice := 100 + profit
	return models.Position{
		ID: sym + "-1", Symbol: sym, Status: models.StatusClosed,
		OpenPrice: 100, ClosePrice: closePrice, Quantity: 1, QuoteQty: 100,
		Profit: profit, EntryAI: entry, ExitAI: exit,
		OpenedAt: now.Add(-ago - time.Hour), ClosedAt: now.Add(-ago),
		CloseReason: models.ReasonTakeProfit,
	}
}

func TestBuild_Empty(t *testing.T) {
	p := Build(nil, now, 0)
	assert.Equal(t, 30, p.Days)
	assert.Zero(t, p.TotalOrders)
	assert.Zero(t, p.WinRate)
}

func TestBuild_Metrics(t *testing.T) {
	up := models.Available("ml", models.DirectionUp, 0.8)
	side := models.Available("ml", models.DirectionSideway, 0.6)
	down := models.Available("ml", models.DirectionDown, 0.9)
	none := models.Prediction{}

	orders := []models.Position{
		closed("A", 5, up, down, time.Hour),
		closed("B", -3, up, none, 2*time.Hour),
		closed("C", 0.2, side, up, 3*time.Hour),
		closed("D", 9, up, none, 40*24*time.Hour), // вне окна
		closed("E", 1, none, none, time.Hour),     // без прогноза
	}
	open := closed("F", 0, up, none, 0)
	open.Status = models.StatusOpen
	orders = append(orders, open)

	p := Build(orders, now, 30)
	require.Equal(t, 3, p.TotalOrders)
	assert.Equal(t, 2, p.ProfitableOrders)
	assert.Equal(t, 1, p.LosingOrders)
	assert.InDelta(t, 2.0/3, p.WinRate, 1e-9)
	assert.InDelta(t, 2.2, p.TotalProfit, 1e-9)

	assert.Equal(t, Accuracy{Count: 2, Correct: 1, Accuracy: 0.5}, p.Entry[models.DirectionUp])
	assert.Equal(t, Accuracy{Count: 1, Correct: 1, Accuracy: 1}, p.Entry[models.DirectionSideway])
	assert.Equal(t, Accuracy{Count: 1, Correct: 1, Accuracy: 1}, p.DownExit)

	assert.Equal(t, 2, p.EntryConfidence["high"].Count)
	assert.Equal(t, 1, p.EntryConfidence["medium"].Count)
	assert.Equal(t, 2, p.ExitConfidence["high"].Count)

	require.Len(t, p.ProfitByPrediction, 2)
	assert.Equal(t, "Up", p.ProfitByPrediction[0].Prediction)
	assert.InDelta(t, 2, p.ProfitByPrediction[0].TotalProfit, 1e-9)

	assert.Equal(t, 1, p.Changes["Up->Down"].Count)
	assert.InDelta(t, 5, p.Changes["Up->Down"].AvgProfit, 1e-9)

	require.Len(t, p.ByDay, 1)
	assert.Equal(t, "2026-06-10", p.ByDay[0].Date)
	assert.Equal(t, 3, p.ByReason["take-profit"].Count)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []models.Position{
		closed("BTCUSDC", 5, models.Available("ml", models.DirectionUp, 0.8), models.Prediction{}, time.Hour),
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,symbol,opened_at"))
	assert.Contains(t, lines[1], "BTCUSDC")
	assert.Contains(t, lines[1], "take-profit")
}
