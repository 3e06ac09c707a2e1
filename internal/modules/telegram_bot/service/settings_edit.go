package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"margin_bot/internal/models"
)

type editable struct {
	title string
	hint  string
	min   float64
	max   float64
	set   func(st *models.RuntimeTradingSettings, v float64)
}

// поля, которые можно править из чата; остальное — через файл настроек
var editables = map[string]editable{
	"sl": {"Stop-loss", "в %, например `2`", 0, 50,
		func(st *models.RuntimeTradingSettings, v float64) { st.StopLossPercentage = v }},
	"tp": {"Take-profit", "в %, например `1.5`", 0, 100,
		func(st *models.RuntimeTradingSettings, v float64) { st.TakeProfitPercentage = v }},
	"trail": {"Trailing", "в %, например `0.5`", 0, 50,
		func(st *models.RuntimeTradingSettings, v float64) { st.TrailingStopPercentage = v }},
	"slots": {"Слотов", "целое, например `3`", 1, 50,
		func(st *models.RuntimeTradingSettings, v float64) { st.MaxOpenTrades = int(v) }},
	"qty": {"Размер ордера", "в котируемой валюте, например `100`", 1, 1e7,
		func(st *models.RuntimeTradingSettings, v float64) { st.QuoteOrderQty = v }},
	"surge": {"Surge score", "например `1.0`", -10, 10,
		func(st *models.RuntimeTradingSettings, v float64) { st.SurgeScoreThreshold = v }},
	"gap": {"Score gap", "например `0.25`", 0, 10,
		func(st *models.RuntimeTradingSettings, v float64) { st.ReplacementScoreGap = v }},
	"kill": {"Time kill", "в минутах, `0` — выкл", 0, 10080,
		func(st *models.RuntimeTradingSettings, v float64) { st.TimeBasedKillMinutes = int(v) }},
}

var toggles = map[string]func(st *models.RuntimeTradingSettings){
	"replace": func(st *models.RuntimeTradingSettings) { st.EnableAggressiveReplacement = !st.EnableAggressiveReplacement },
	"dyn_sl":  func(st *models.RuntimeTradingSettings) { st.EnableDynamicStopLoss = !st.EnableDynamicStopLoss },
	"ml":      func(st *models.RuntimeTradingSettings) { st.EnableMLPredictions = !st.EnableMLPredictions },
	"openai":  func(st *models.RuntimeTradingSettings) { st.EnableOpenAISignals = !st.EnableOpenAISignals },
}

func settingsKeyboard() tgbotapi.InlineKeyboardMarkup {
	btn := tgbotapi.NewInlineKeyboardButtonData
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(btn("📉 SL", "set:sl"), btn("📈 TP", "set:tp"), btn("🧲 Trail", "set:trail")),
		tgbotapi.NewInlineKeyboardRow(btn("🎰 Слоты", "set:slots"), btn("💵 Ордер", "set:qty"), btn("⏱ Kill", "set:kill")),
		tgbotapi.NewInlineKeyboardRow(btn("🚀 Surge", "set:surge"), btn("↕️ Gap", "set:gap")),
		tgbotapi.NewInlineKeyboardRow(btn("🔁 Замены", "toggle:replace"), btn("🛡 Dyn SL", "toggle:dyn_sl")),
		tgbotapi.NewInlineKeyboardRow(btn("🤖 ML", "toggle:ml"), btn("🧠 OpenAI", "toggle:openai")),
	)
}

func (t *Telegram) askValue(ctx context.Context, chatID int64, key string) {
	e, ok := editables[key]
	if !ok {
		return
	}
	t.setAwait(chatID, key)
	_, _ = t.Send(ctx, chatID, fmt.Sprintf("✍️ Введи *%s* %s\n\nОтмена: напиши `отмена`", e.title, e.hint))
}

func (t *Telegram) handleAwaitValue(ctx context.Context, chatID int64, text, key string) {
	text = strings.TrimSpace(text)
	if strings.EqualFold(text, "отмена") {
		t.clearAwait(chatID)
		t.handleSettingsMenu(ctx, chatID)
		return
	}

	e, ok := editables[key]
	if !ok {
		t.clearAwait(chatID)
		return
	}
	v, err := parseFloat(text)
	if err != nil || math.IsNaN(v) || v < e.min || v > e.max {
		_, _ = t.SendF(ctx, chatID, "❗️Нужно число %s..%s", f2(e.min), f2(e.max))
		return
	}

	if _, err := t.d.Settings.Update(func(st *models.RuntimeTradingSettings) { e.set(st, v) }); err != nil {
		_, _ = t.SendF(ctx, chatID, "⚠️ Не удалось сохранить: %v", err)
		return
	}
	t.clearAwait(chatID)
	t.handleSettingsMenu(ctx, chatID)
}

func (t *Telegram) toggle(ctx context.Context, chatID int64, key string) {
	fn, ok := toggles[key]
	if !ok {
		return
	}
	if _, err := t.d.Settings.Update(fn); err != nil {
		_, _ = t.SendF(ctx, chatID, "⚠️ Не удалось сохранить: %v", err)
		return
	}
	t.handleSettingsMenu(ctx, chatID)
}
