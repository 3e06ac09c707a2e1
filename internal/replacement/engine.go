package replacement

import (
	"fmt"
	"sort"
	"time"

	"margin_bot/internal/models"
)

// Decision — результат одной попытки замены за тик.
type Decision struct {
	Replace bool
	Evict   models.Position
	Admit   models.SignalSnapshot
	Reason  string // почему замены нет
}

func reject(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

type Engine struct {
	ledger *Ledger
}

func NewEngine(ledger *Ledger) *Engine {
	return &Engine{ledger: ledger}
}

func (e *Engine) Ledger() *Ledger { return e.ledger }

// Decide ничего не меняет: только выбирает пару (слабейшая позиция, сильнейший кандидат)
// и проверяет все условия. held — все активные позиции таблицы, ranked — рейтинг по убыванию скора.
func (e *Engine) Decide(now time.Time, st models.RuntimeTradingSettings, held []models.Position, ranked []models.SignalSnapshot) Decision {
	if !st.EnableAggressiveReplacement {
		return reject("disabled")
	}
	if len(held) < st.MaxOpenTrades || st.MaxOpenTrades == 0 {
		return reject("not at capacity: %d/%d", len(held), st.MaxOpenTrades)
	}

	w, ok := weakest(held)
	if !ok {
		return reject("no open position to evict")
	}
	c, ok := strongest(held, ranked, st.MaxCandidateDepth)
	if !ok {
		return reject("no candidate")
	}

	if c.TrendScore < st.SurgeScoreThreshold {
		return reject("%s score %.3f < surge %.3f", c.Symbol, c.TrendScore, st.SurgeScoreThreshold)
	}
	if gap := c.TrendScore - w.TrendScore; gap < st.ReplacementScoreGap {
		return reject("gap %.3f (%s %.3f vs %s %.3f) < %.3f", gap, c.Symbol, c.TrendScore, w.Symbol, w.TrendScore, st.ReplacementScoreGap)
	}
	minAge := time.Duration(st.MinPositionAgeForReplacementSeconds) * time.Second
	if age := now.Sub(w.OpenedAt); age < minAge {
		return reject("%s too young: %s < %s", w.Symbol, age.Truncate(time.Second), minAge)
	}
	cooldown := time.Duration(st.ReplacementCooldownSeconds) * time.Second
	if e.ledger.InCooldown(w.Symbol, now, cooldown) {
		return reject("%s in cooldown", w.Symbol)
	}
	if e.ledger.InCooldown(c.Symbol, now, cooldown) {
		return reject("%s in cooldown", c.Symbol)
	}
	if n := e.ledger.CountLastHour(now); n >= st.MaxReplacementsPerHour {
		return reject("rate limit: %d/%d per hour", n, st.MaxReplacementsPerHour)
	}

	return Decision{Replace: true, Evict: w, Admit: c}
}

// Commit — запись в журнал, только когда закрытие и открытие прошли.
func (e *Engine) Commit(now time.Time, d Decision) {
	e.ledger.Record(now, d.Evict.Symbol, d.Admit.Symbol)
}

func weakest(held []models.Position) (models.Position, bool) {
	open := make([]models.Position, 0, len(held))
	for _, p := range held {
		if p.Status == models.StatusOpen {
			open = append(open, p)
		}
	}
	if len(open) == 0 {
		return models.Position{}, false
	}
	sort.SliceStable(open, func(i, j int) bool {
		if open[i].TrendScore != open[j].TrendScore {
			return open[i].TrendScore < open[j].TrendScore
		}
		return open[i].Symbol < open[j].Symbol
	})
	return open[0], true
}

func strongest(held []models.Position, ranked []models.SignalSnapshot, depth int) (models.SignalSnapshot, bool) {
	if depth < 1 {
		return models.SignalSnapshot{}, false
	}
	taken := make(map[string]struct{}, len(held))
	for _, p := range held {
		taken[p.Symbol] = struct{}{}
	}
	// ranked уже отсортирован, первый не занятый символ с ценой и есть лучший из top-depth
	for _, s := range ranked {
		if _, ok := taken[s.Symbol]; ok || !s.HasPrice() {
			continue
		}
		return s, true
	}
	return models.SignalSnapshot{}, false
}
