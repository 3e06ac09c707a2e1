package balance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margin_bot/internal/models"
)

type fakeReader struct {
	balance float64
	err     error
	calls   int
	asset   string
	block   bool
}

func (f *fakeReader) GetBalance(ctx context.Context, asset string) (float64, error) {
	f.calls++
	f.asset = asset
	if f.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return f.balance, f.err
}

func TestRequiredSlots(t *testing.T) {
	assert.Equal(t, 2, RequiredSlots(3, 1))
	assert.Equal(t, 0, RequiredSlots(3, 3))
	assert.Equal(t, 0, RequiredSlots(3, 5))
	assert.Equal(t, 0, RequiredSlots(0, 0))
}

func TestCheck_TwoRemainingSlots(t *testing.T) {
	r := &fakeReader{balance: 100}
	g := NewGate(r, Config{})

	st := models.DefaultRuntimeSettings()
	st.MaxOpenTrades = 3
	st.QuoteOrderQty = 50

	d, err := g.Check(context.Background(), st, 1)
	require.NoError(t, err)
	assert.Equal(t, 100.0, d.Required)
	assert.Equal(t, 100.0, d.Available)
	assert.True(t, d.OK)
	assert.Equal(t, "USDC", r.asset)
}

func TestAuthorize_Insufficient(t *testing.T) {
	g := NewGate(&fakeReader{balance: 49.99}, Config{Asset: "USDT"})

	d, err := g.Authorize(context.Background(), "", 1, 50)
	require.NoError(t, err)
	assert.False(t, d.OK)
	assert.Equal(t, "USDT", d.Asset)
}

func TestAuthorize_ZeroSlotsSkipsExchange(t *testing.T) {
	r := &fakeReader{err: errors.New("boom")}
	g := NewGate(r, Config{})

	d, err := g.Authorize(context.Background(), "", 0, 50)
	require.NoError(t, err)
	assert.True(t, d.OK)
	assert.Equal(t, 0, r.calls)
}

func TestAuthorize_ReaderError(t *testing.T) {
	boom := errors.New("boom")
	g := NewGate(&fakeReader{err: boom}, Config{})

	d, err := g.Authorize(context.Background(), "", 1, 50)
	require.ErrorIs(t, err, boom)
	assert.False(t, d.OK)
}

func TestAuthorize_Timeout(t *testing.T) {
	g := NewGate(&fakeReader{block: true}, Config{Timeout: 20 * time.Millisecond})

	_, err := g.Authorize(context.Background(), "", 1, 50)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAuthorize_UsesSnapshotAsset(t *testing.T) {
	r := &fakeReader{balance: 100}
	g := NewGate(r, Config{Asset: "USDC"})

	d, err := g.Authorize(context.Background(), "USDT", 1, 50)
	require.NoError(t, err)
	assert.Equal(t, "USDT", r.asset)
	assert.Equal(t, "USDT", d.Asset)

	// Check и Authorize с одним снапшотом читают одну валюту
	st := models.DefaultRuntimeSettings()
	st.QuoteAsset = "USDT"
	_, err = g.Check(context.Background(), st, 0)
	require.NoError(t, err)
	assert.Equal(t, "USDT", r.asset)
}

func TestCheck_FullCapacityStillReadsBalance(t *testing.T) {
	r := &fakeReader{balance: 321.5}
	g := NewGate(r, Config{})

	st := models.DefaultRuntimeSettings()
	st.MaxOpenTrades = 2
	st.QuoteOrderQty = 50

	d, err := g.Check(context.Background(), st, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, 321.5, d.Available)
	assert.Equal(t, 0.0, d.Required)
	assert.True(t, d.OK)
}
