package slots

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margin_bot/internal/models"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time { return func() time.Time { return t0 } }

func buyAt(price float64) BuyFunc {
	return func(_ context.Context, symbol string) (models.Fill, error) {
		return models.Fill{OrderID: "o-" + symbol, Symbol: symbol, Price: price, Quantity: 1, QuoteQty: price}, nil
	}
}

func sellAt(price float64) SellFunc {
	return func(_ context.Context, p models.Position) (models.Fill, error) {
		return models.Fill{Symbol: p.Symbol, Price: price, Quantity: p.Quantity}, nil
	}
}

func openOne(t *testing.T, tb *Table, symbol string, price float64) models.Position {
	t.Helper()
	p, err := tb.TryOpen(context.Background(), Candidate{Symbol: symbol, Price: price}, 10, buyAt(price))
	require.NoError(t, err)
	return p
}

func TestTryOpen_CommitsOpenPosition(t *testing.T) {
	tb := NewTable(WithClock(fixedClock()))

	p := openOne(t, tb, "BTCUSDC", 100)
	assert.Equal(t, models.StatusOpen, p.Status)
	assert.Equal(t, 100.0, p.OpenPrice)
	assert.Equal(t, 100.0, p.HighPrice)
	assert.Equal(t, "o-BTCUSDC", p.OrderID)
	assert.Equal(t, t0, p.OpenedAt)
	assert.True(t, tb.Held("BTCUSDC"))
	assert.Equal(t, 1, tb.ActiveCount())
}

func TestTryOpen_RejectsHeldSymbolAndCapacity(t *testing.T) {
	tb := NewTable()
	ctx := context.Background()

	_, err := tb.TryOpen(ctx, Candidate{Symbol: "A", Price: 1}, 2, buyAt(1))
	require.NoError(t, err)

	_, err = tb.TryOpen(ctx, Candidate{Symbol: "A", Price: 1}, 2, buyAt(1))
	require.ErrorIs(t, err, models.ErrSymbolHeld)

	_, err = tb.TryOpen(ctx, Candidate{Symbol: "B", Price: 1}, 2, buyAt(1))
	require.NoError(t, err)

	_, err = tb.TryOpen(ctx, Candidate{Symbol: "C", Price: 1}, 2, buyAt(1))
	require.ErrorIs(t, err, models.ErrCapacity)
}

func TestTryOpen_FailedBuyReleasesSlot(t *testing.T) {
	tb := NewTable()
	boom := errors.New("exchange down")

	_, err := tb.TryOpen(context.Background(), Candidate{Symbol: "A", Price: 1}, 1,
		func(context.Context, string) (models.Fill, error) { return models.Fill{}, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, tb.ActiveCount())
	assert.False(t, tb.Held("A"))

	openOne(t, tb, "A", 1)
}

func TestTryOpen_ReservationCountsTowardCapacity(t *testing.T) {
	tb := NewTable()
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := tb.TryOpen(ctx, Candidate{Symbol: "A", Price: 1}, 1, func(context.Context, string) (models.Fill, error) {
			close(entered)
			<-release
			return models.Fill{Price: 1, Quantity: 1}, nil
		})
		done <- err
	}()
	<-entered

	snap := tb.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, models.StatusOpening, snap[0].Status)

	_, err := tb.TryOpen(ctx, Candidate{Symbol: "B", Price: 1}, 1, buyAt(1))
	require.ErrorIs(t, err, models.ErrCapacity)

	close(release)
	require.NoError(t, <-done)
}

func TestTryOpen_ConcurrentNeverExceedsCapacity(t *testing.T) {
	const maxOpen = 3
	tb := NewTable()

	var (
		wg      sync.WaitGroup
		ok      atomic.Int32
		current atomic.Int32
		peak    atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tb.TryOpen(context.Background(), Candidate{Symbol: fmt.Sprintf("S%d", i), Price: 1}, maxOpen,
				func(context.Context, string) (models.Fill, error) {
					n := current.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					return models.Fill{Price: 1, Quantity: 1}, nil
				})
			if err == nil {
				ok.Add(1)
			} else {
				assert.ErrorIs(t, err, models.ErrCapacity)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(maxOpen), ok.Load())
	assert.LessOrEqual(t, peak.Load(), int32(maxOpen))
	assert.Equal(t, maxOpen, tb.ActiveCount())
}

func TestRequestClose_ClosesAndComputesProfit(t *testing.T) {
	tb := NewTable(WithClock(fixedClock()))
	p := openOne(t, tb, "A", 100)

	closed, err := tb.RequestClose(context.Background(), p.ID, models.ReasonTakeProfit,
		models.Available("openai", models.DirectionDown, 0.9), sellAt(110))
	require.NoError(t, err)

	assert.Equal(t, models.StatusClosed, closed.Status)
	assert.Equal(t, models.ReasonTakeProfit, closed.CloseReason)
	assert.Equal(t, 110.0, closed.ClosePrice)
	assert.InDelta(t, 10.0, closed.Profit, 1e-9)
	assert.Equal(t, models.DirectionDown, closed.ExitAI.Direction)
	assert.False(t, tb.Held("A"))

	_, err = tb.RequestClose(context.Background(), p.ID, models.ReasonStopLoss, models.Prediction{}, sellAt(1))
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestRequestClose_OnlyOneConcurrentCloseWins(t *testing.T) {
	tb := NewTable()
	p := openOne(t, tb, "A", 100)

	var sells atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	slowSell := func(_ context.Context, p models.Position) (models.Fill, error) {
		sells.Add(1)
		close(entered)
		<-release
		return models.Fill{Price: 99, Quantity: p.Quantity}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := tb.RequestClose(context.Background(), p.ID, models.ReasonStopLoss, models.Prediction{}, slowSell)
		done <- err
	}()
	<-entered

	_, err := tb.RequestClose(context.Background(), p.ID, models.ReasonTimeKill, models.Prediction{}, sellAt(99))
	require.ErrorIs(t, err, models.ErrCloseInFlight)

	_, err = tb.ManualClose(context.Background(), "A", sellAt(99))
	require.ErrorIs(t, err, models.ErrCloseInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), sells.Load())
}

func TestRequestClose_FailedSellRevertsToOpen(t *testing.T) {
	tb := NewTable()
	p := openOne(t, tb, "A", 100)
	boom := errors.New("rejected")

	_, err := tb.RequestClose(context.Background(), p.ID, models.ReasonStopLoss, models.Prediction{},
		func(context.Context, models.Position) (models.Fill, error) { return models.Fill{}, boom })
	require.ErrorIs(t, err, boom)

	got, ok := tb.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusOpen, got.Status)
	assert.Equal(t, models.ReasonNone, got.CloseReason)

	_, err = tb.RequestClose(context.Background(), p.ID, models.ReasonStopLoss, models.Prediction{}, sellAt(98))
	require.NoError(t, err)
}

func TestRequestClose_OpeningIsNotClosable(t *testing.T) {
	tb := NewTable()

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = tb.TryOpen(context.Background(), Candidate{Symbol: "A", Price: 1}, 1, func(context.Context, string) (models.Fill, error) {
			close(entered)
			<-release
			return models.Fill{Price: 1, Quantity: 1}, nil
		})
	}()
	<-entered
	defer close(release)

	id := tb.Snapshot()[0].ID
	_, err := tb.RequestClose(context.Background(), id, models.ReasonStopLoss, models.Prediction{}, sellAt(1))
	require.ErrorIs(t, err, models.ErrNotOpen)
}

func TestManualClose_PendingBlocksAutomaticClose(t *testing.T) {
	tb := NewTable()
	p := openOne(t, tb, "A", 100)

	// ручное закрытие пометило позицию, но ещё не выиграло CAS
	tb.mu.Lock()
	tb.positions[p.ID].Manual = true
	tb.mu.Unlock()

	_, err := tb.RequestClose(context.Background(), p.ID, models.ReasonStopLoss, models.Prediction{}, sellAt(97))
	require.ErrorIs(t, err, models.ErrManualPending)

	closed, err := tb.RequestClose(context.Background(), p.ID, models.ReasonManual, models.Prediction{}, sellAt(97))
	require.NoError(t, err)
	assert.Equal(t, models.ReasonManual, closed.CloseReason)
}

func TestManualClose(t *testing.T) {
	tb := NewTable()
	openOne(t, tb, "A", 100)

	_, err := tb.ManualClose(context.Background(), "B", sellAt(1))
	require.ErrorIs(t, err, models.ErrNotFound)

	boom := errors.New("rejected")
	_, err = tb.ManualClose(context.Background(), "A",
		func(context.Context, models.Position) (models.Fill, error) { return models.Fill{}, boom })
	require.ErrorIs(t, err, boom)

	// после неудачного ручного закрытия автоматика снова работает
	p := tb.Snapshot()[0]
	assert.False(t, p.Manual)
	_, err = tb.RequestClose(context.Background(), p.ID, models.ReasonStopLoss, models.Prediction{}, sellAt(97))
	require.NoError(t, err)
}

func TestMark_HighWaterAndTrailArming(t *testing.T) {
	tb := NewTable()
	p := openOne(t, tb, "A", 100)

	tb.Mark("A", 100.5, 0.3, 1.0)
	got, _ := tb.Get(p.ID)
	assert.Equal(t, 100.5, got.HighPrice)
	assert.False(t, got.TrailArmed)
	assert.Equal(t, 0.3, got.TrendScore)

	tb.Mark("A", 101, 0.3, 1.0)
	got, _ = tb.Get(p.ID)
	assert.True(t, got.TrailArmed)

	// падение не снимает взвод и не опускает максимум
	tb.Mark("A", 99, -0.5, 1.0)
	got, _ = tb.Get(p.ID)
	assert.True(t, got.TrailArmed)
	assert.Equal(t, 101.0, got.HighPrice)
	assert.Equal(t, 99.0, got.CurrentPrice)
	// прогноз на выходе появляется только при закрытии
	assert.False(t, got.ExitAI.IsAvailable())
}

func TestMark_IgnoresBadPrices(t *testing.T) {
	tb := NewTable()
	p := openOne(t, tb, "A", 100)

	tb.Mark("A", 0, 1, 1)
	tb.Mark("A", -5, 1, 1)
	got, _ := tb.Get(p.ID)
	assert.Equal(t, 100.0, got.CurrentPrice)
}

func TestRestore(t *testing.T) {
	tb := NewTable()
	n := tb.Restore([]models.Position{
		{ID: "A-1", Symbol: "A", Status: models.StatusOpen, OpenPrice: 10, Quantity: 1},
		{ID: "B-1", Symbol: "B", Status: models.StatusClosed},
		{ID: "A-2", Symbol: "A", Status: models.StatusOpen},
		{Symbol: "C", Status: models.StatusOpen, OpenPrice: 5, HighPrice: 7},
	})
	assert.Equal(t, 2, n)
	assert.True(t, tb.Held("A"))
	assert.True(t, tb.Held("C"))
	assert.False(t, tb.Held("B"))

	a, ok := tb.Get("A-1")
	require.True(t, ok)
	assert.Equal(t, 10.0, a.HighPrice)
}
