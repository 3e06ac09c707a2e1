package report

import (
	"sort"
	"time"

	"margin_bot/internal/models"
)

// sideways считается угаданным, если сделка закрылась почти в ноль
const sidewaysBandPct = 0.5

type Accuracy struct {
	Count    int     `json:"count"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

type Band struct {
	Count       int     `json:"count"`
	Accuracy    float64 `json:"accuracy"`
	AvgProfit   float64 `json:"avg_profit"`
	TotalProfit float64 `json:"total_profit"`
}

type PredictionProfit struct {
	Prediction  string  `json:"prediction"`
	Count       int     `json:"count"`
	TotalProfit float64 `json:"total_profit"`
	AvgProfit   float64 `json:"avg_profit"`
	WinRate     float64 `json:"win_rate"`
}

type Transition struct {
	Count     int     `json:"count"`
	AvgProfit float64 `json:"avg_profit"`
}

type Day struct {
	Date               string  `json:"date"`
	TotalOrders        int     `json:"total_orders"`
	ProfitableOrders   int     `json:"profitable_orders"`
	TotalProfit        float64 `json:"total_profit"`
	AvgEntryConfidence float64 `json:"avg_entry_confidence"`
	AvgExitConfidence  float64 `json:"avg_exit_confidence"`
}

type Performance struct {
	Days             int     `json:"days"`
	TotalOrders      int     `json:"total_orders"`
	ProfitableOrders int     `json:"profitable_orders"`
	LosingOrders     int     `json:"losing_orders"`
	WinRate          float64 `json:"win_rate"`
	TotalProfit      float64 `json:"total_profit"`

	Entry map[models.Direction]Accuracy `json:"entry"`
	// выход по Down был "хорошим", если сделка в плюсе
	DownExit Accuracy `json:"down_exit"`

	EntryConfidence map[string]Band `json:"entry_confidence"`
	ExitConfidence  map[string]Band `json:"exit_confidence"`

	ProfitByPrediction []PredictionProfit    `json:"profit_by_prediction"`
	Changes            map[string]Transition `json:"changes"`
	ByDay              []Day                 `json:"by_day"`
	ByReason           map[string]Band       `json:"by_reason"`
}

var bands = []struct {
	name     string
	min, max float64
}{
	{"high", 0.7, 1.01},
	{"medium", 0.5, 0.7},
	{"low", 0, 0.5},
}

// Build считает метрики по закрытым сделкам за последние days дней.
// Учитываются только сделки с прогнозом на входе.
func Build(orders []models.Position, now time.Time, days int) Performance {
	if days <= 0 {
		days = 30
	}
	cutoff := now.AddDate(0, 0, -days)

	var ps []models.Position
	for _, p := range orders {
		if p.Status != models.StatusClosed || p.ClosedAt.Before(cutoff) || !p.EntryAI.IsAvailable() {
			continue
		}
		ps = append(ps, p)
	}

	out := Performance{
		Days:            days,
		Entry:           map[models.Direction]Accuracy{},
		EntryConfidence: map[string]Band{},
		ExitConfidence:  map[string]Band{},
		Changes:         map[string]Transition{},
		ByReason:        map[string]Band{},
	}
	if len(ps) == 0 {
		return out
	}

	out.TotalOrders = len(ps)
	for _, p := range ps {
		out.TotalProfit += p.Profit
		switch {
		case p.Profit > 0:
			out.ProfitableOrders++
		case p.Profit < 0:
			out.LosingOrders++
		}
	}
	out.WinRate = ratio(out.ProfitableOrders, out.TotalOrders)

	for _, d := range []models.Direction{models.DirectionUp, models.DirectionDown, models.DirectionSideway} {
		out.Entry[d] = entryAccuracy(ps, d)
	}
	out.DownExit = downExit(ps)

	for _, b := range bands {
		out.EntryConfidence[b.name] = band(ps, func(p models.Position) bool {
			return p.EntryAI.Confidence >= b.min && p.EntryAI.Confidence < b.max
		})
		out.ExitConfidence[b.name] = band(ps, func(p models.Position) bool {
			return p.ExitAI.IsAvailable() && p.ExitAI.Confidence >= b.min && p.ExitAI.Confidence < b.max
		})
	}

	out.ProfitByPrediction = byPrediction(ps)
	out.Changes = changes(ps)
	out.ByDay = byDay(ps)

	reasons := map[models.CloseReason]struct{}{}
	for _, p := range ps {
		reasons[p.CloseReason] = struct{}{}
	}
	for r := range reasons {
		r := r
		out.ByReason[string(r)] = band(ps, func(p models.Position) bool { return p.CloseReason == r })
	}
	return out
}

func correctEntry(p models.Position) bool {
	switch p.EntryAI.Direction {
	case models.DirectionUp:
		return p.Profit > 0
	case models.DirectionDown:
		return p.Profit < 0
	case models.DirectionSideway:
		return p.OpenPrice > 0 && abs((p.ClosePrice-p.OpenPrice)/p.OpenPrice*100) < sidewaysBandPct
	}
	return false
}

func entryAccuracy(ps []models.Position, d models.Direction) Accuracy {
	var a Accuracy
	for _, p := range ps {
		if p.EntryAI.Direction != d {
			continue
		}
		a.Count++
		if correctEntry(p) {
			a.Correct++
		}
	}
	a.Accuracy = ratio(a.Correct, a.Count)
	return a
}

func downExit(ps []models.Position) Accuracy {
	var a Accuracy
	for _, p := range ps {
		if !p.ExitAI.IsAvailable() || p.ExitAI.Direction != models.DirectionDown {
			continue
		}
		a.Count++
		if p.Profit > 0 {
			a.Correct++
		}
	}
	a.Accuracy = ratio(a.Correct, a.Count)
	return a
}

func band(ps []models.Position, match func(models.Position) bool) Band {
	var b Band
	wins := 0
	for _, p := range ps {
		if !match(p) {
			continue
		}
		b.Count++
		b.TotalProfit += p.Profit
		if p.Profit > 0 {
			wins++
		}
	}
	if b.Count > 0 {
		b.Accuracy = ratio(wins, b.Count)
		b.AvgProfit = b.TotalProfit / float64(b.Count)
	}
	return b
}

func byPrediction(ps []models.Position) []PredictionProfit {
	idx := map[models.Direction]*PredictionProfit{}
	wins := map[models.Direction]int{}
	for _, p := range ps {
		d := p.EntryAI.Direction
		pp, ok := idx[d]
		if !ok {
			pp = &PredictionProfit{Prediction: string(d)}
			idx[d] = pp
		}
		pp.Count++
		pp.TotalProfit += p.Profit
		if p.Profit > 0 {
			wins[d]++
		}
	}
	out := make([]PredictionProfit, 0, len(idx))
	for d, pp := range idx {
		pp.AvgProfit = pp.TotalProfit / float64(pp.Count)
		pp.WinRate = ratio(wins[d], pp.Count)
		out = append(out, *pp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalProfit != out[j].TotalProfit {
			return out[i].TotalProfit > out[j].TotalProfit
		}
		return out[i].Prediction < out[j].Prediction
	})
	return out
}

// changes — как менялся прогноз между входом и выходом, для входов по Up.
func changes(ps []models.Position) map[string]Transition {
	out := map[string]Transition{}
	for _, to := range []models.Direction{models.DirectionDown, models.DirectionUp, models.DirectionSideway} {
		var t Transition
		sum := 0.0
		for _, p := range ps {
			if p.EntryAI.Direction == models.DirectionUp && p.ExitAI.IsAvailable() && p.ExitAI.Direction == to {
				t.Count++
				sum += p.Profit
			}
		}
		if t.Count > 0 {
			t.AvgProfit = sum / float64(t.Count)
		}
		out["Up->"+string(to)] = t
	}
	return out
}

func byDay(ps []models.Position) []Day {
	type acc struct {
		Day
		entrySum float64
		exitSum  float64
		exitN    int
	}
	idx := map[string]*acc{}
	for _, p := range ps {
		key := p.ClosedAt.UTC().Format("2006-01-02")
		a, ok := idx[key]
		if !ok {
			a = &acc{Day: Day{Date: key}}
			idx[key] = a
		}
		a.TotalOrders++
		a.TotalProfit += p.Profit
		if p.Profit > 0 {
			a.ProfitableOrders++
		}
		a.entrySum += p.EntryAI.Confidence
		if p.ExitAI.IsAvailable() && p.ExitAI.Confidence > 0 {
			a.exitSum += p.ExitAI.Confidence
			a.exitN++
		}
	}
	out := make([]Day, 0, len(idx))
	for _, a := range idx {
		a.AvgEntryConfidence = a.entrySum / float64(a.TotalOrders)
		if a.exitN > 0 {
			a.AvgExitConfidence = a.exitSum / float64(a.exitN)
		}
		out = append(out, a.Day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
