package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"margin_bot/internal/models"
	"margin_bot/pkg/logger"
)

const helpText = "Команды:\n" +
	"/positions — открытые позиции\n" +
	"/close SYMBOL — закрыть позицию\n" +
	"/balance — проверка баланса на свободные слоты\n" +
	"/trading on|off — открытие новых позиций\n" +
	"/preset [имя] — профиль риска\n" +
	"/settings — текущие настройки"

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	// 1) Обычные сообщения
	if msg := update.Message; msg != nil {
		chatID := msg.Chat.ID
		if !t.allowed(chatID) {
			logger.Warn("[TG] message from foreign chat %d ignored", chatID)
			return
		}

		if msg.IsCommand() {
			t.handleCommand(ctx, chatID, msg.Command(), strings.TrimSpace(msg.CommandArguments()))
			return
		}

		// ввод значения настройки
		if key, ok := t.peekAwait(chatID); ok {
			t.handleAwaitValue(ctx, chatID, msg.Text, key)
			return
		}
		return
	}

	// 2) Inline-кнопки (CallbackQuery)
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil || !t.allowed(cb.Message.Chat.ID) {
			return
		}
		t.handleCallback(ctx, cb.Message.Chat.ID, cb)
	}
}

func (t *Telegram) allowed(chatID int64) bool {
	return t.chatID == 0 || chatID == t.chatID
}

func (t *Telegram) handleCommand(ctx context.Context, chatID int64, cmd, args string) {
	switch cmd {
	case "start", "help":
		_, _ = t.Send(ctx, chatID, helpText)
	case "positions":
		_, _ = t.Send(ctx, chatID, formatPositions(t.d.Positions.Snapshot(), time.Now()))
	case "close":
		if args == "" {
			_, _ = t.Send(ctx, chatID, "Формат: /close BTCUSDC")
			return
		}
		// подтверждение ждёт callback, поэтому не блокируем цикл апдейтов
		go t.handleClose(ctx, chatID, strings.ToUpper(args))
	case "balance":
		t.handleBalance(ctx, chatID)
	case "trading":
		t.handleTrading(ctx, chatID, strings.ToLower(args))
	case "preset":
		if args == "" {
			t.handlePresetMenu(ctx, chatID)
			return
		}
		t.applyPreset(ctx, chatID, strings.ToLower(args))
	case "settings":
		t.handleSettingsMenu(ctx, chatID)
	default:
		_, _ = t.Send(ctx, chatID, helpText)
	}
}

func (t *Telegram) handleClose(ctx context.Context, chatID int64, symbol string) {
	if !t.Confirm(ctx, chatID, fmt.Sprintf("Закрыть %s по рынку?", symbol), t.confirmTimeout) {
		return
	}
	p, err := t.d.Trader.ManualClose(ctx, symbol)
	if err != nil {
		_, _ = t.SendF(ctx, chatID, "❗️ Не удалось закрыть %s: %v", symbol, err)
		return
	}
	// само закрытие придёт событием шины, здесь только ответ на команду
	_, _ = t.SendF(ctx, chatID, "👌 %s закрыта по %s", p.Symbol, f4(p.ClosePrice))
}

func (t *Telegram) handleBalance(ctx context.Context, chatID int64) {
	active := 0
	for _, p := range t.d.Positions.Snapshot() {
		if p.Active() {
			active++
		}
	}
	d, err := t.d.Balance.Check(ctx, t.d.Settings.Current(), active)
	if err != nil {
		_, _ = t.SendF(ctx, chatID, "❗️ Ошибка получения баланса: %v", err)
		return
	}
	_, _ = t.Send(ctx, chatID, formatBalance(d))
}

func (t *Telegram) handleTrading(ctx context.Context, chatID int64, arg string) {
	switch arg {
	case "on":
		d, err := t.d.Trader.EnableTrading(ctx)
		switch {
		case errors.Is(err, models.ErrInsufficientBalance):
			_, _ = t.Send(ctx, chatID, "⛔️ Торговля не включена\n"+formatBalance(d))
			return
		case err != nil:
			_, _ = t.SendF(ctx, chatID, "❗️ Не удалось проверить баланс: %v", err)
			return
		}
		_, _ = t.Send(ctx, chatID, "▶️ Торговля включена")
	case "off":
		t.d.Trader.SetTradingOpen(false)
		_, _ = t.Send(ctx, chatID, "⏹ Новые входы остановлены, выходы работают")
	default:
		last := "ещё не было"
		if lt := t.d.Trader.LastTick(); !lt.IsZero() {
			last = lt.Format("15:04:05")
		}
		_, _ = t.SendF(ctx, chatID, "Торговля: *%s*, последний тик: %s\nФормат: /trading on|off",
			onOff(t.d.Trader.TradingOpen()), last)
	}
}

func (t *Telegram) handlePresetMenu(ctx context.Context, chatID int64) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, name := range presetNames() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(presetTitle(name), "preset:"+name),
		))
	}
	msg := tgbotapi.NewMessage(chatID, "Выбери профиль риска:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, _ = t.SendMessage(ctx, msg)
}

func (t *Telegram) applyPreset(ctx context.Context, chatID int64, name string) {
	st, err := t.d.Settings.ApplyPreset(name)
	if err != nil {
		_, _ = t.SendF(ctx, chatID, "❗️ %v\nДоступны: %s", err, strings.Join(presetNames(), ", "))
		return
	}
	msg := tgbotapi.NewMessage(chatID, "✅ "+presetTitle(name)+"\n\n"+formatSettings(st, t.d.Trader.TradingOpen()))
	msg.ParseMode = "Markdown"
	_, _ = t.SendMessage(ctx, msg)
}

func (t *Telegram) handleSettingsMenu(ctx context.Context, chatID int64) {
	msg := tgbotapi.NewMessage(chatID, formatSettings(t.d.Settings.Current(), t.d.Trader.TradingOpen()))
	msg.ParseMode = "Markdown"
	msg.ReplyMarkup = settingsKeyboard()
	_, _ = t.SendMessage(ctx, msg)
}

func (t *Telegram) handleCallback(ctx context.Context, chatID int64, cb *tgbotapi.CallbackQuery) {
	// отвечаем ТГ, чтобы убрать "часики" на кнопке
	_, _ = t.bot.Request(tgbotapi.NewCallback(cb.ID, ""))

	data := cb.Data
	switch {
	case strings.HasPrefix(data, "preset:"):
		t.applyPreset(ctx, chatID, strings.TrimPrefix(data, "preset:"))
	case strings.HasPrefix(data, "set:"):
		t.askValue(ctx, chatID, strings.TrimPrefix(data, "set:"))
	case strings.HasPrefix(data, "toggle:"):
		t.toggle(ctx, chatID, strings.TrimPrefix(data, "toggle:"))
	case strings.Contains(data, "::"):
		// подтверждения: CONF::token / REJ::token
		t.handleConfirmCallback(chatID, data)
	}
}

// handleConfirmCallback обрабатывает callback-и вида CONF::token / REJ::token.
func (t *Telegram) handleConfirmCallback(chatID int64, data string) {
	verb, token := parseConfirmData(data)
	if verb == "" || token == "" {
		return
	}

	t.mu.Lock()
	p, ok := t.pendings[token]
	var msgID int
	if ok {
		msgID = p.msgID
		delete(t.pendings, token)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	accepted := verb == "CONF"
	p.ch <- accepted

	status := "Отклонено"
	emoji := "❌"
	if accepted {
		status = "Подтверждено"
		emoji = "✅"
	}

	_ = t.editReplyMarkupRemove(chatID, msgID)
	_ = t.editText(chatID, msgID, fmt.Sprintf("%s\n\n%s %s", p.prompt, emoji, status))
}

func presetTitle(name string) string {
	if p, ok := models.Presets[name]; ok {
		return p.Name + " — " + p.Description
	}
	return name
}

