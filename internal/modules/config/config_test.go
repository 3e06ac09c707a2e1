package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
exchange:
  mode: live
  timeout: 3s
trading:
  quote_asset: USDT
  tick_interval: 2s
store:
  driver: sqlite
  sqlite_path: /tmp/x.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Exchange.Mode)
	assert.Equal(t, 3*time.Second, cfg.Exchange.Timeout)
	assert.Equal(t, "USDT", cfg.Trading.QuoteAsset)
	assert.Equal(t, 2*time.Second, cfg.Trading.TickInterval)
	// не задано в файле — остаётся дефолт
	assert.Equal(t, "1m", cfg.Trading.Interval)
	assert.Equal(t, 4, cfg.Runner.CloseParallel)
}

func TestLoad_SecretsFromEnv(t *testing.T) {
	t.Setenv(binanceKeyENV, "k")
	t.Setenv(binanceSecretENV, "s")
	t.Setenv(tokenTelegramENV, "tg")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := Load(writeConfig(t, "exchange:\n  api_key: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "k", cfg.Exchange.APIKey)
	assert.Equal(t, "s", cfg.Exchange.APISecret)
	assert.Equal(t, "tg", cfg.Telegram.Token)
	assert.Equal(t, int64(42), cfg.Telegram.ChatID)
}

func TestLoad_Validation(t *testing.T) {
	_, err := Load(writeConfig(t, "store:\n  driver: pg\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "store:\n  driver: mongo\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
