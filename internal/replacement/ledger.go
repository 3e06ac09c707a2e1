package replacement

import (
	"sync"
	"time"
)

const rateWindow = time.Hour

// Ledger — журнал замен: время последней замены по символу и скользящее окно за час.
// Пишет только раннер после успешных обеих ног, читают Decide и API.
type Ledger struct {
	mu      sync.Mutex
	last    map[string]time.Time
	history []time.Time
}

func NewLedger() *Ledger {
	return &Ledger{last: make(map[string]time.Time)}
}

// Record фиксирует замену для обоих символов.
func (l *Ledger) Record(at time.Time, symbols ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range symbols {
		l.last[s] = at
	}
	l.history = append(l.history, at)
	l.pruneLocked(at)
}

func (l *Ledger) LastReplacement(symbol string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.last[symbol]
	return t, ok
}

// InCooldown — с последней замены символа прошло меньше cooldown.
func (l *Ledger) InCooldown(symbol string, now time.Time, cooldown time.Duration) bool {
	last, ok := l.LastReplacement(symbol)
	if !ok {
		return false
	}
	return now.Sub(last) < cooldown
}

// CountLastHour — число замен в окне (now-1h, now].
func (l *Ledger) CountLastHour(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)
	n := 0
	for _, t := range l.history {
		if !t.After(now) {
			n++
		}
	}
	return n
}

// Entries — копия состояния для API/персиста.
func (l *Ledger) Entries() map[string]time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]time.Time, len(l.last))
	for k, v := range l.last {
		out[k] = v
	}
	return out
}

func (l *Ledger) pruneLocked(now time.Time) {
	cut := now.Add(-rateWindow)
	i := 0
	for i < len(l.history) && !l.history[i].After(cut) {
		i++
	}
	if i > 0 {
		l.history = append(l.history[:0], l.history[i:]...)
	}
}
