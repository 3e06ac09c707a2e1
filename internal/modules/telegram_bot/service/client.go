package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"margin_bot/internal/balance"
	"margin_bot/internal/models"
	"margin_bot/pkg/logger"
)

// bot — то, что нужно от *tgbot.BotAPI.
type bot interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	Request(c tgbot.Chattable) (*tgbot.APIResponse, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

type Trader interface {
	ManualClose(ctx context.Context, symbol string) (models.Position, error)
	SetTradingOpen(v bool)
	EnableTrading(ctx context.Context) (balance.Decision, error)
	TradingOpen() bool
	LastTick() time.Time
}

type Positions interface {
	Snapshot() []models.Position
}

type Settings interface {
	Current() models.RuntimeTradingSettings
	ApplyPreset(name string) (models.RuntimeTradingSettings, error)
	Update(fn func(st *models.RuntimeTradingSettings)) (models.RuntimeTradingSettings, error)
}

type BalanceChecker interface {
	Check(ctx context.Context, st models.RuntimeTradingSettings, activeOrders int) (balance.Decision, error)
}

type Deps struct {
	Trader    Trader
	Positions Positions
	Settings  Settings
	Balance   BalanceChecker
}

type pending struct {
	ch     chan bool
	msgID  int
	prompt string
}

// Telegram — бот одного оператора: уведомления и ручное управление.
// Команды принимаются только из chatID.
type Telegram struct {
	bot    bot
	chatID int64
	d      Deps

	mu       sync.Mutex
	pendings map[string]*pending
	await    *awaitStore

	confirmTimeout time.Duration
	started        atomic.Bool
	stop           chan struct{}
	done           chan struct{}
}

func NewTelegram(token string, chatID int64, d Deps) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newTelegram(b, chatID, d), nil
}

func newTelegram(b bot, chatID int64, d Deps) *Telegram {
	return &Telegram{
		bot:            b,
		chatID:         chatID,
		d:              d,
		pendings:       make(map[string]*pending),
		await:          newAwaitStore(),
		confirmTimeout: time.Minute,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (t *Telegram) Send(_ context.Context, chatID int64, msg string) (tgbot.Message, error) {
	return t.bot.Send(tgbot.NewMessage(chatID, msg))
}

func (t *Telegram) SendF(ctx context.Context, chatID int64, format string, args ...any) (tgbot.Message, error) {
	return t.Send(ctx, chatID, fmt.Sprintf(format, args...))
}

func (t *Telegram) SendMessage(_ context.Context, message tgbot.MessageConfig) (tgbot.Message, error) {
	return t.bot.Send(message)
}

func (t *Telegram) editReplyMarkupRemove(chatID int64, msgID int) error {
	rm := tgbot.InlineKeyboardMarkup{InlineKeyboard: [][]tgbot.InlineKeyboardButton{}}
	edit := tgbot.NewEditMessageReplyMarkup(chatID, msgID, rm)
	_, err := t.bot.Request(edit)
	return err
}

func (t *Telegram) editText(chatID int64, msgID int, text string) error {
	edit := tgbot.NewEditMessageText(chatID, msgID, text)
	_, err := t.bot.Request(edit)
	return err
}

// Confirm — сообщение с кнопками и ожиданием callback.
func (t *Telegram) Confirm(ctx context.Context, chatID int64, prompt string, timeout time.Duration) bool {
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	p := &pending{
		ch:     make(chan bool, 1),
		prompt: prompt,
	}

	t.mu.Lock()
	t.pendings[token] = p
	t.mu.Unlock()

	btnYes := tgbot.NewInlineKeyboardButtonData("✅ Да", "CONF::"+token)
	btnNo := tgbot.NewInlineKeyboardButtonData("❌ Нет", "REJ::"+token)
	kb := tgbot.NewInlineKeyboardMarkup(tgbot.NewInlineKeyboardRow(btnYes, btnNo))

	msg := tgbot.NewMessage(chatID, prompt)
	msg.ReplyMarkup = kb

	sent, _ := t.bot.Send(msg)
	t.mu.Lock()
	p.msgID = sent.MessageID
	t.mu.Unlock()

	tmr := time.NewTimer(timeout)
	defer tmr.Stop()

	drop := func(suffix string) {
		_ = t.editReplyMarkupRemove(chatID, sent.MessageID)
		_ = t.editText(chatID, sent.MessageID, fmt.Sprintf("%s\n\n%s", prompt, suffix))
		t.mu.Lock()
		delete(t.pendings, token)
		t.mu.Unlock()
	}

	select {
	case ok := <-p.ch:
		return ok
	case <-tmr.C:
		drop("⏳ Таймаут")
		return false
	case <-ctx.Done():
		drop("⛔️ Отменено")
		return false
	}
}

// Name/Handle — Telegram как получатель событий шины.
func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Handle(ctx context.Context, e models.Event) error {
	if t.chatID == 0 {
		return nil
	}
	_, err := t.Send(ctx, t.chatID, formatEvent(e))
	return err
}

// Start — цикл long polling до отмены ctx или Stop.
func (t *Telegram) Start(ctx context.Context) {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		defer close(t.done)
		logger.Info("[TG] ▶️ polling started")
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, update)
			}
		}
	}()
}

func (t *Telegram) Stop() {
	if !t.started.Load() {
		return
	}
	close(t.stop)
	t.bot.StopReceivingUpdates()
	<-t.done
	logger.Info("[TG] polling stopped")
}
