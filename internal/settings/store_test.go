package settings

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margin_bot/internal/models"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "trading.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewStore_DefaultsWithoutFile(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRuntimeSettings(), s.Current())
}

func TestNewStore_FileOverlaysDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "max_open_trades: 5\nstop_loss_percentage: 1.5\n")
	s, err := NewStore(path)
	require.NoError(t, err)

	st := s.Current()
	assert.Equal(t, 5, st.MaxOpenTrades)
	assert.Equal(t, 1.5, st.StopLossPercentage)
	assert.Equal(t, 3000.0, st.QuoteOrderQty)
}

func TestNewStore_InvalidFileRejected(t *testing.T) {
	path := writeFile(t, t.TempDir(), "quote_order_qty: -1\n")
	_, err := NewStore(path)
	assert.ErrorIs(t, err, models.ErrInvalidSettings)
}

func TestReload_KeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "max_open_trades: 4\n")
	s, err := NewStore(path)
	require.NoError(t, err)

	writeFile(t, dir, "max_open_trades: -3\n")
	assert.Error(t, s.Reload())
	assert.Equal(t, 4, s.Current().MaxOpenTrades)

	writeFile(t, dir, "max_open_trades: 6\n")
	require.NoError(t, s.Reload())
	assert.Equal(t, 6, s.Current().MaxOpenTrades)
}

func TestUpdate_ValidatesAndNotifies(t *testing.T) {
	s, err := NewStore("")
	require.NoError(t, err)

	var got []int
	s.OnChange(func(old, cur models.RuntimeTradingSettings) { got = append(got, cur.MaxOpenTrades) })

	st, err := s.Update(func(st *models.RuntimeTradingSettings) { st.MaxOpenTrades = 7 })
	require.NoError(t, err)
	assert.Equal(t, 7, st.MaxOpenTrades)

	_, err = s.Update(func(st *models.RuntimeTradingSettings) { st.StopLossPercentage = -1 })
	assert.ErrorIs(t, err, models.ErrInvalidSettings)
	assert.Equal(t, 7, s.Current().MaxOpenTrades)
	assert.Equal(t, []int{7}, got)
}

func TestApplyPreset(t *testing.T) {
	s, _ := NewStore("")

	st, err := s.ApplyPreset("safe")
	require.NoError(t, err)
	assert.Equal(t, 1.2, st.StopLossPercentage)

	_, err = s.ApplyPreset("yolo")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// читатели видят либо старый, либо новый снапшот целиком
func TestCurrent_ConsistentUnderWrites(t *testing.T) {
	s, _ := NewStore("")
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 100; i <= 300; i++ {
			n := i
			_, _ = s.Update(func(st *models.RuntimeTradingSettings) {
				st.MaxOpenTrades = n
				st.MaxCandidateDepth = n
			})
		}
	}()

	for i := 0; i < 1000; i++ {
		st := s.Current()
		require.Equal(t, st.MaxOpenTrades == 3, st.MaxCandidateDepth == 30)
		if st.MaxOpenTrades != 3 {
			require.Equal(t, st.MaxOpenTrades, st.MaxCandidateDepth)
		}
	}
	wg.Wait()
}
