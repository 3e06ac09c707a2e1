package runner

import (
	"context"
	"strings"

	"margin_bot/internal/models"
	"margin_bot/pkg/logger"
)

// ManualClose — закрытие по команде пользователя (API/Telegram).
// Не ждёт тика: конкурирует с автоматикой через CAS таблицы и выигрывает у незакоммиченного авто-закрытия.
func (r *Runner) ManualClose(ctx context.Context, symbol string) (models.Position, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	logger.Info("[MANUAL] close %s requested", symbol)

	p, err := r.table.ManualClose(ctx, symbol, r.sellLeg)
	if err != nil {
		r.publish(models.Event{Kind: models.EventRejected, Symbol: symbol, Reason: models.ReasonManual, Error: err.Error()})
		return p, err
	}
	r.publishClosed(p)
	return p, nil
}
