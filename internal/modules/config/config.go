package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"margin_bot/pkg/logger"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	binanceKeyENV     = "BINANCE_API_KEY"
	binanceSecretENV  = "BINANCE_API_SECRET"
	openAIKeyENV      = "OPENAI_API_KEY"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Name string `yaml:"name"`
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"service"`

	Exchange struct {
		Mode         string        `yaml:"mode"` // live | paper
		BaseURL      string        `yaml:"base_url"`
		WSURL        string        `yaml:"ws_url"`
		APIKey       string        `yaml:"api_key"`
		APISecret    string        `yaml:"api_secret"`
		Timeout      time.Duration `yaml:"timeout"`
		PaperBalance float64       `yaml:"paper_balance"`
		PaperFeePct  float64       `yaml:"paper_fee_pct"`
	} `yaml:"exchange"`

	Trading struct {
		QuoteAsset   string        `yaml:"quote_asset"`
		SettingsFile string        `yaml:"settings_file"` // runtime-настройки, перечитываются на лету
		WatchTopN    int           `yaml:"watch_top_n"`
		Symbols      []string      `yaml:"symbols"` // если задан — вместо топа по обороту
		Interval     string        `yaml:"interval"`
		TickInterval time.Duration `yaml:"tick_interval"`
		WarmupBars   int           `yaml:"warmup_bars"`
	} `yaml:"trading"`

	Runner struct {
		CloseParallel  int           `yaml:"close_parallel"`
		BatchQueue     int           `yaml:"batch_queue"`
		HealthInterval time.Duration `yaml:"health_interval"`
	} `yaml:"runner"`

	Store struct {
		Driver     string `yaml:"driver"` // pg | sqlite
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"store"`

	Redis struct {
		Addr    string `yaml:"addr"`
		Stream  string `yaml:"stream"`
		Channel string `yaml:"channel"`
	} `yaml:"redis"`

	Predict struct {
		MLURL         string        `yaml:"ml_url"`
		OpenAIKey     string        `yaml:"openai_key"`
		OpenAIBaseURL string        `yaml:"openai_base_url"`
		OpenAIModel   string        `yaml:"openai_model"`
		Timeout       time.Duration `yaml:"timeout"`
		Parallel      int           `yaml:"parallel"`
	} `yaml:"predict"`

	Tracing struct {
		Host       string  `yaml:"host"`
		Port       int     `yaml:"port"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Log logger.Config `yaml:"log"`
}

// Default — значения, которые перекрываются файлом и env.
func Default() Config {
	var c Config
	c.Service.Name = "margin_bot"
	c.Service.Port = intFromEnv("HTTP_PORT", 8080)

	c.Exchange.Mode = getenvDefault("EXCHANGE_MODE", "paper")
	c.Exchange.Timeout = durationFromEnv("EXCHANGE_TIMEOUT", "10s")
	c.Exchange.PaperBalance = floatFromEnv("PAPER_BALANCE", 10000)
	c.Exchange.PaperFeePct = floatFromEnv("PAPER_FEE_PCT", 0.1)

	c.Trading.QuoteAsset = getenvDefault("QUOTE_ASSET", "USDC")
	c.Trading.SettingsFile = getenvDefault("TRADING_SETTINGS_FILE", "configs/trading.yaml")
	c.Trading.WatchTopN = intFromEnv("DEFAULT_WATCHLIST_TOP_N", 30)
	c.Trading.Interval = getenvDefault("TIMEFRAME", "1m")
	c.Trading.TickInterval = durationFromEnv("TICK_INTERVAL", "5s")
	c.Trading.WarmupBars = intFromEnv("WARMUP_BARS", 100)

	c.Runner.CloseParallel = intFromEnv("CLOSE_PARALLEL", 4)
	c.Runner.BatchQueue = intFromEnv("BATCH_QUEUE", 8)
	c.Runner.HealthInterval = durationFromEnv("HEALTH_INTERVAL", "5m")

	c.Store.Driver = getenvDefault("STORE_DRIVER", "sqlite")
	c.Store.SQLitePath = getenvDefault("SQLITE_PATH", "data/margin_bot.db")

	c.Redis.Stream = "margin_bot:events"
	c.Redis.Channel = "margin_bot:events"

	c.Predict.OpenAIModel = getenvDefault("OPENAI_MODEL", "gpt-4o-mini")
	c.Predict.Timeout = durationFromEnv("PREDICT_TIMEOUT", "8s")
	c.Predict.Parallel = intFromEnv("PREDICT_PARALLEL", 4)

	c.Tracing.Host = os.Getenv("JAEGER_HOST") // пусто — трейсинг выключен
	c.Tracing.Port = intFromEnv("JAEGER_PORT", 6831)

	c.Log.Level = getenvDefault("LOG_LEVEL", "info")
	c.Log.Format = getenvDefault("LOG_FORMAT", "json")
	return c
}

func NewConfig() (*Config, error) {
	// .env не обязателен
	_ = godotenv.Load()

	configFileName := getenvDefault(configFilePathENV, "values_local.yaml")
	path := getenvDefault(configDirENV, "configs") + "/" + configFileName

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load читает yaml и накладывает секреты из env.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config file")
	}
	defer func() {
		_ = file.Close()
	}()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, errors.Wrap(err, "decode config file")
	}

	overrideString(&config.Telegram.Token, tokenTelegramENV)
	overrideString(&config.DB, databaseDSN)
	overrideString(&config.Exchange.APIKey, binanceKeyENV)
	overrideString(&config.Exchange.APISecret, binanceSecretENV)
	overrideString(&config.Predict.OpenAIKey, openAIKeyENV)
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Telegram.ChatID = id
		}
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "pg":
		if c.DB == "" {
			return fmt.Errorf("config: store.driver=pg requires db_dsn")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("config: store.driver=sqlite requires sqlite_path")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Trading.QuoteAsset == "" {
		return fmt.Errorf("config: trading.quote_asset is empty")
	}
	if c.Trading.TickInterval <= 0 {
		return fmt.Errorf("config: trading.tick_interval must be > 0")
	}
	return nil
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
