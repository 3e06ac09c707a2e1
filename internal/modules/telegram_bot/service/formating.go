package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"margin_bot/internal/balance"
	"margin_bot/internal/models"
	"margin_bot/internal/notify"
)

func formatEvent(e models.Event) string { return notify.Format(e) }

func formatSettings(st models.RuntimeTradingSettings, tradingOpen bool) string {
	return fmt.Sprintf(
		"*⚙️ Торговля* (%s)\n\n"+
			"Слотов: `%d`\n"+
			"Размер ордера: `%s %s`\n\n"+
			"*📉 Выходы*\n"+
			"Stop: `%s%%`\n"+
			"TP: `%s%%`\n"+
			"Trailing: `%s%%` (взвод `+%s%%`), *%s*\n"+
			"Weak trend: `%s%%` при score < `%s`\n"+
			"Time kill: `%d мин`\n\n"+
			"*🔁 Замены*: *%s*\n"+
			"Surge: `%s`, gap: `%s`\n"+
			"Cooldown: `%ds`, в час: `%d`\n"+
			"Мин. возраст: `%ds`\n\n"+
			"*🤖 AI*\n"+
			"ML: *%s*, OpenAI: *%s*\n"+
			"Veto: `%s`\n",
		onOff(tradingOpen),
		st.MaxOpenTrades,
		f2(st.QuoteOrderQty), st.QuoteAsset,
		f2(st.StopLossPercentage),
		f2(st.TakeProfitPercentage),
		f2(st.TrailingStopPercentage), f2(st.TrailArmBufferPercentage), onOff(st.EnableDynamicStopLoss),
		f2(st.WeakTrendStopLossPercentage), f2(st.WeakTrendScoreThreshold),
		st.TimeBasedKillMinutes,
		onOff(st.EnableAggressiveReplacement),
		f2(st.SurgeScoreThreshold), f2(st.ReplacementScoreGap),
		st.ReplacementCooldownSeconds, st.MaxReplacementsPerHour,
		st.MinPositionAgeForReplacementSeconds,
		onOff(st.EnableMLPredictions), onOff(st.EnableOpenAISignals),
		f2(st.AIVetoConfidence),
	)
}

func formatPositions(ps []models.Position, now time.Time) string {
	if len(ps) == 0 {
		return "📭 Открытых позиций нет"
	}
	var b strings.Builder
	b.WriteString("📊 Открытые позиции:\n")
	for _, p := range ps {
		fmt.Fprintf(&b, "- %s [%s] %s @ %s → %s (%+.2f%%) score=%s age=%s\n",
			p.Symbol, p.Status, f4(p.Quantity), f4(p.OpenPrice), f4(p.CurrentPrice),
			p.PnLPct(), f2(p.TrendScore), p.Age(now).Truncate(time.Second))
	}
	return b.String()
}

func formatBalance(d balance.Decision) string {
	status := "✅ хватает"
	if !d.OK {
		status = "⚠️ не хватает"
	}
	return fmt.Sprintf("💰 Баланс %s: %s\nНужно на %d слот(ов): %s\n%s",
		d.Asset, f2(d.Available), d.Slots, f2(d.Required), status)
}

func presetNames() []string {
	names := make([]string, 0, len(models.Presets))
	for k := range models.Presets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
