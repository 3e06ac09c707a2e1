package notify

import (
	"fmt"

	"margin_bot/internal/models"
)

// Format — человекочитаемый текст события для телеграма и логов.
func Format(e models.Event) string {
	switch e.Kind {
	case models.EventOpened:
		s := fmt.Sprintf("🟢 Открыта %s по %s", e.Symbol, f4(e.Price))
		if p := e.Position; p != nil {
			s += fmt.Sprintf("\nКол-во: %s, сумма: %s\nScore: %s", f4(p.Quantity), f2(p.QuoteQty), f2(p.EntryTrendScore))
			if p.EntryAI.IsAvailable() {
				s += fmt.Sprintf("\nAI: %s (%.0f%%)", p.EntryAI.Direction, p.EntryAI.Confidence*100)
			}
		}
		return s
	case models.EventClosed:
		emoji := "🔴"
		if e.Profit > 0 {
			emoji = "✅"
		}
		s := fmt.Sprintf("%s Закрыта %s по %s [%s]\nPnL: %s", emoji, e.Symbol, f4(e.Price), e.Reason, f2(e.Profit))
		if p := e.Position; p != nil && p.OpenPrice > 0 {
			s += fmt.Sprintf(" (%+.2f%%)", (e.Price-p.OpenPrice)/p.OpenPrice*100)
		}
		return s
	case models.EventReplaced:
		return fmt.Sprintf("🔁 Замена: %s (%s) → %s (%s)", e.OldSymbol, f2(e.OldScore), e.NewSymbol, f2(e.NewScore))
	case models.EventInsufficientBalance:
		return fmt.Sprintf("⚠️ Недостаточно средств: доступно %s, нужно %s", f2(e.Available), f2(e.Required))
	case models.EventService:
		return "ℹ️ " + e.Message
	case models.EventRejected:
		return fmt.Sprintf("❗️ Отказ %s: %s", e.Symbol, e.Error)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Symbol)
}

func f2(v float64) string { return fmt.Sprintf("%.2f", v) }
func f4(v float64) string { return fmt.Sprintf("%.4f", v) }
