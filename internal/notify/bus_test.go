package notify

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margin_bot/internal/models"
)

type recSink struct {
	mu     sync.Mutex
	got    []models.Event
	err    error
	panics bool
	block  chan struct{}
}

func (r *recSink) Name() string { return "rec" }

func (r *recSink) Handle(_ context.Context, e models.Event) error {
	if r.block != nil {
		<-r.block
	}
	if r.panics {
		panic("boom")
	}
	r.mu.Lock()
	r.got = append(r.got, e)
	r.mu.Unlock()
	return r.err
}

func (r *recSink) events() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.got...)
}

func TestBus_FansOutToAllSinks(t *testing.T) {
	bus := NewBus(8)
	a, b := &recSink{}, &recSink{err: errors.New("down")}
	bad := &recSink{panics: true}
	bus.Register(a)
	bus.Register(bad)
	bus.Register(b)

	bus.Start(context.Background())
	bus.Publish(models.Event{Kind: models.EventOpened, Symbol: "AAA"})
	bus.Publish(models.Event{Kind: models.EventClosed, Symbol: "AAA"})
	bus.Stop()

	// паника и ошибка одного sink'а не мешают остальным
	assert.Len(t, a.events(), 2)
	assert.Len(t, b.events(), 2)
	assert.Equal(t, models.EventClosed, a.events()[1].Kind)
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus(2)
	block := make(chan struct{})
	s := &recSink{block: block}
	bus.Register(s)
	bus.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			bus.Publish(models.Event{Kind: models.EventRejected})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
	assert.Greater(t, bus.Dropped(), int64(0))

	close(block)
	bus.Stop()
}

func TestFormat(t *testing.T) {
	e := models.Event{Kind: models.EventClosed, Symbol: "BTCUSDC", Reason: models.ReasonStopLoss, Price: 97, Profit: -3,
		Position: &models.Position{OpenPrice: 100}}
	s := Format(e)
	assert.Contains(t, s, "stop-loss")
	assert.Contains(t, s, "-3.00%")

	r := Format(models.Event{Kind: models.EventReplaced, OldSymbol: "OLD", NewSymbol: "NEW"})
	assert.True(t, strings.Contains(r, "OLD") && strings.Contains(r, "NEW"))
}

func TestHub_BroadcastsEvents(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Handle(context.Background(), models.Event{Kind: models.EventOpened, Symbol: "ETHUSDC"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got models.Event
	require.NoError(t, sonic.Unmarshal(msg, &got))
	assert.Equal(t, "ETHUSDC", got.Symbol)
	assert.Equal(t, models.EventOpened, got.Kind)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}
