package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margin_bot/internal/balance"
	"margin_bot/internal/models"
)

const chat = int64(42)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbot.MessageConfig
	requests []tgbot.Chattable
	updates  chan tgbot.Update
}

func (b *fakeBot) Send(c tgbot.Chattable) (tgbot.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbot.MessageConfig); ok {
		b.sent = append(b.sent, m)
	}
	return tgbot.Message{MessageID: len(b.sent)}, nil
}

func (b *fakeBot) Request(c tgbot.Chattable) (*tgbot.APIResponse, error) {
	b.mu.Lock()
	b.requests = append(b.requests, c)
	b.mu.Unlock()
	return &tgbot.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetUpdatesChan(tgbot.UpdateConfig) tgbot.UpdatesChannel { return b.updates }
func (b *fakeBot) StopReceivingUpdates()                                  {}

func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.sent))
	for _, m := range b.sent {
		out = append(out, m.Text)
	}
	return out
}

func (b *fakeBot) last() tgbot.MessageConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent[len(b.sent)-1]
}

type fakeTrader struct {
	mu     sync.Mutex
	open   bool
	closed []string

	enableDec   balance.Decision
	enableErr   error
	enableCalls int
}

func (f *fakeTrader) ManualClose(_ context.Context, symbol string) (models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if symbol == "NOPE" {
		return models.Position{}, models.ErrNotFound
	}
	f.closed = append(f.closed, symbol)
	return models.Position{Symbol: symbol, ClosePrice: 1.5}, nil
}
func (f *fakeTrader) SetTradingOpen(v bool) { f.open = v }
func (f *fakeTrader) EnableTrading(context.Context) (balance.Decision, error) {
	f.enableCalls++
	if f.enableErr != nil {
		return f.enableDec, f.enableErr
	}
	f.open = true
	return f.enableDec, nil
}
func (f *fakeTrader) TradingOpen() bool     { return f.open }
func (f *fakeTrader) LastTick() time.Time   { return time.Time{} }

type fakePositions []models.Position

func (f fakePositions) Snapshot() []models.Position { return f }

type fakeSettings struct {
	mu sync.Mutex
	st models.RuntimeTradingSettings
}

func (f *fakeSettings) Current() models.RuntimeTradingSettings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}
func (f *fakeSettings) ApplyPreset(name string) (models.RuntimeTradingSettings, error) {
	p, ok := models.Presets[name]
	if !ok {
		return f.Current(), models.ErrNotFound
	}
	return f.Update(p.Apply)
}
func (f *fakeSettings) Update(fn func(st *models.RuntimeTradingSettings)) (models.RuntimeTradingSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.st
	fn(&next)
	if err := next.Validate(); err != nil {
		return f.st, err
	}
	f.st = next
	return next, nil
}

type fakeBalance struct{ err error }

func (f fakeBalance) Check(_ context.Context, st models.RuntimeTradingSettings, active int) (balance.Decision, error) {
	if f.err != nil {
		return balance.Decision{}, f.err
	}
	n := balance.RequiredSlots(st.MaxOpenTrades, active)
	return balance.Decision{OK: false, Asset: "USDC", Available: 10, Required: float64(n) * st.QuoteOrderQty, Slots: n}, nil
}

func newTest(t *testing.T) (*Telegram, *fakeBot, *fakeTrader, *fakeSettings) {
	t.Helper()
	b := &fakeBot{updates: make(chan tgbot.Update, 8)}
	tr := &fakeTrader{open: true}
	st := &fakeSettings{st: models.DefaultRuntimeSettings()}
	tg := newTelegram(b, chat, Deps{
		Trader: tr,
		Positions: fakePositions{
			{ID: "A-1", Symbol: "AUSDC", Status: models.StatusOpen, OpenPrice: 10, CurrentPrice: 11, Quantity: 2, OpenedAt: time.Now()},
		},
		Settings: st,
		Balance:  fakeBalance{},
	})
	tg.confirmTimeout = time.Second
	return tg, b, tr, st
}

func command(chatID int64, text string) tgbot.Update {
	cmd := strings.SplitN(text, " ", 2)[0]
	return tgbot.Update{Message: &tgbot.Message{
		Chat:     &tgbot.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbot.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func text(chatID int64, s string) tgbot.Update {
	return tgbot.Update{Message: &tgbot.Message{Chat: &tgbot.Chat{ID: chatID}, Text: s}}
}

func callback(chatID int64, data string) tgbot.Update {
	return tgbot.Update{CallbackQuery: &tgbot.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbot.Message{MessageID: 1, Chat: &tgbot.Chat{ID: chatID}},
	}}
}

func TestCommands_ForeignChatIgnored(t *testing.T) {
	tg, b, _, _ := newTest(t)
	tg.handleUpdate(context.Background(), command(7, "/positions"))
	assert.Empty(t, b.texts())
}

func TestCommands_PositionsAndBalance(t *testing.T) {
	tg, b, _, _ := newTest(t)
	ctx := context.Background()

	tg.handleUpdate(ctx, command(chat, "/positions"))
	assert.Contains(t, b.last().Text, "AUSDC")
	assert.Contains(t, b.last().Text, "+10.00%")

	tg.handleUpdate(ctx, command(chat, "/balance"))
	assert.Contains(t, b.last().Text, "USDC")
	assert.Contains(t, b.last().Text, "2 слот")
	assert.Contains(t, b.last().Text, "не хватает")

	tg.d.Balance = fakeBalance{err: errors.New("timeout")}
	tg.handleUpdate(ctx, command(chat, "/balance"))
	assert.Contains(t, b.last().Text, "timeout")
}

func TestCommands_Trading(t *testing.T) {
	tg, b, tr, _ := newTest(t)
	ctx := context.Background()

	tg.handleUpdate(ctx, command(chat, "/trading off"))
	assert.False(t, tr.TradingOpen())
	tg.handleUpdate(ctx, command(chat, "/trading on"))
	assert.True(t, tr.TradingOpen())

	tg.handleUpdate(ctx, command(chat, "/trading"))
	assert.Contains(t, b.last().Text, "ещё не было")
}

func TestCommands_TradingOnRefusedWithoutBalance(t *testing.T) {
	tg, b, tr, _ := newTest(t)
	ctx := context.Background()
	tr.open = false
	tr.enableDec = balance.Decision{Asset: "USDC", Available: 0, Required: 9000, Slots: 3}
	tr.enableErr = models.ErrInsufficientBalance

	tg.handleUpdate(ctx, command(chat, "/trading on"))
	assert.Equal(t, 1, tr.enableCalls)
	assert.False(t, tr.TradingOpen())
	assert.Contains(t, b.last().Text, "не включена")
	assert.Contains(t, b.last().Text, "9000.00")

	tr.enableErr = errors.New("timeout")
	tg.handleUpdate(ctx, command(chat, "/trading on"))
	assert.False(t, tr.TradingOpen())
	assert.Contains(t, b.last().Text, "timeout")
}

func TestCommands_Preset(t *testing.T) {
	tg, b, _, st := newTest(t)
	ctx := context.Background()

	tg.handleUpdate(ctx, command(chat, "/preset"))
	assert.NotNil(t, b.last().ReplyMarkup)

	tg.handleUpdate(ctx, callback(chat, "preset:safe"))
	assert.Equal(t, 1.2, st.Current().StopLossPercentage)

	tg.handleUpdate(ctx, command(chat, "/preset bogus"))
	assert.Contains(t, b.last().Text, "Доступны")
}

func TestClose_RequiresConfirmation(t *testing.T) {
	tg, b, tr, _ := newTest(t)
	ctx := context.Background()

	tg.handleUpdate(ctx, command(chat, "/close ausdc"))

	var token string
	require.Eventually(t, func() bool {
		tg.mu.Lock()
		defer tg.mu.Unlock()
		for k := range tg.pendings {
			token = k
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)

	tg.handleUpdate(ctx, callback(chat, "CONF::"+token))
	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.closed) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "AUSDC", tr.closed[0])

	require.Eventually(t, func() bool {
		return strings.Contains(b.last().Text, "закрыта")
	}, time.Second, 5*time.Millisecond)
}

func TestClose_RejectedDoesNothing(t *testing.T) {
	tg, _, tr, _ := newTest(t)
	ctx := context.Background()
	tg.handleUpdate(ctx, command(chat, "/close AUSDC"))

	var token string
	require.Eventually(t, func() bool {
		tg.mu.Lock()
		defer tg.mu.Unlock()
		for k := range tg.pendings {
			token = k
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)
	tg.handleUpdate(ctx, callback(chat, "REJ::"+token))

	time.Sleep(20 * time.Millisecond)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Empty(t, tr.closed)
}

func TestSettingsEdit(t *testing.T) {
	tg, b, _, st := newTest(t)
	ctx := context.Background()

	tg.handleUpdate(ctx, callback(chat, "set:sl"))
	assert.Contains(t, b.last().Text, "Stop-loss")

	tg.handleUpdate(ctx, text(chat, "abc"))
	assert.Contains(t, b.last().Text, "Нужно число")

	tg.handleUpdate(ctx, text(chat, "3,5"))
	assert.Equal(t, 3.5, st.Current().StopLossPercentage)
	_, waiting := tg.peekAwait(chat)
	assert.False(t, waiting)

	before := st.Current().EnableAggressiveReplacement
	tg.handleUpdate(ctx, callback(chat, "toggle:replace"))
	assert.Equal(t, !before, st.Current().EnableAggressiveReplacement)
}

func TestAwait_Expires(t *testing.T) {
	tg, _, _, _ := newTest(t)
	base := time.Now()
	tg.await.now = func() time.Time { return base }
	tg.setAwait(chat, "sl")

	tg.await.now = func() time.Time { return base.Add(awaitTTL + time.Second) }
	_, ok := tg.peekAwait(chat)
	assert.False(t, ok)
}

func TestHandle_SendsFormattedEvent(t *testing.T) {
	tg, b, _, _ := newTest(t)
	err := tg.Handle(context.Background(), models.Event{Kind: models.EventReplaced, OldSymbol: "A", NewSymbol: "B"})
	require.NoError(t, err)
	assert.Equal(t, chat, b.last().ChatID)
	assert.Contains(t, b.last().Text, "A")
}

func TestStartStop(t *testing.T) {
	tg, b, _, _ := newTest(t)
	tg.Start(context.Background())
	b.updates <- command(chat, "/help")
	require.Eventually(t, func() bool { return len(b.texts()) == 1 }, time.Second, 5*time.Millisecond)
	tg.Stop()
}
