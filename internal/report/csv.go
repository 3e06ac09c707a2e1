package report

import (
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"margin_bot/internal/models"
)

type csvRow struct {
	ID         string  `csv:"id"`
	Symbol     string  `csv:"symbol"`
	OpenedAt   string  `csv:"opened_at"`
	ClosedAt   string  `csv:"closed_at"`
	OpenPrice  float64 `csv:"open_price"`
	ClosePrice float64 `csv:"close_price"`
	Quantity   float64 `csv:"quantity"`
	QuoteQty   float64 `csv:"quote_qty"`
	Profit     float64 `csv:"profit"`
	Reason     string  `csv:"reason"`
	EntryAI    string  `csv:"entry_ai"`
	EntryConf  float64 `csv:"entry_confidence"`
	ExitAI     string  `csv:"exit_ai"`
	ExitConf   float64 `csv:"exit_confidence"`
	EntryScore float64 `csv:"entry_trend_score"`
	Manual     bool    `csv:"manual"`
}

// WriteCSV — выгрузка закрытых сделок для таблиц.
func WriteCSV(w io.Writer, ps []models.Position) error {
	rows := make([]*csvRow, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, &csvRow{
			ID:         p.ID,
			Symbol:     p.Symbol,
			OpenedAt:   p.OpenedAt.UTC().Format(time.RFC3339),
			ClosedAt:   p.ClosedAt.UTC().Format(time.RFC3339),
			OpenPrice:  p.OpenPrice,
			ClosePrice: p.ClosePrice,
			Quantity:   p.Quantity,
			QuoteQty:   p.QuoteQty,
			Profit:     p.Profit,
			Reason:     string(p.CloseReason),
			EntryAI:    string(p.EntryAI.Direction),
			EntryConf:  p.EntryAI.Confidence,
			ExitAI:     string(p.ExitAI.Direction),
			ExitConf:   p.ExitAI.Confidence,
			EntryScore: p.EntryTrendScore,
			Manual:     p.Manual,
		})
	}
	return gocsv.Marshal(rows, w)
}
