package exchange

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"margin_bot/internal/models"
	"margin_bot/pkg/logger"
)

const defaultWSURL = "wss://stream.binance.com:9443/stream"

// Binance режет combined stream на 1024 подписках, держим запас.
const maxStreamsPerConn = 200

// KlineStream — поток свечей Binance по пачке символов (combined stream).
type KlineStream struct {
	url    string
	dialer *websocket.Dialer
	prices interface{ SetPrice(string, float64) }
	status func(connected bool)
}

func NewKlineStream(wsURL string, prices interface{ SetPrice(string, float64) }) *KlineStream {
	if wsURL == "" {
		wsURL = defaultWSURL
	}
	return &KlineStream{
		url:    strings.TrimRight(wsURL, "/"),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		prices: prices,
	}
}

type klineFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
		K      struct {
			Start    int64  `json:"t"`
			End      int64  `json:"T"`
			Interval string `json:"i"`
			Open     string `json:"o"`
			High     string `json:"h"`
			Low      string `json:"l"`
			Close    string `json:"c"`
			Volume   string `json:"v"`
			Closed   bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

// Stream — одно соединение на пачку символов, переподключение с паузой в секунду.
// Отдаёт и незакрытые свечи: по ним обновляется текущая цена.
func (s *KlineStream) Stream(ctx context.Context, symbols []string, interval string) <-chan models.Candle {
	ch := make(chan models.Candle, 256)
	if len(symbols) == 0 {
		close(ch)
		return ch
	}

	done := make(chan struct{})
	chunks := 0
	for i := 0; i < len(symbols); i += maxStreamsPerConn {
		end := i + maxStreamsPerConn
		if end > len(symbols) {
			end = len(symbols)
		}
		chunks++
		go s.run(ctx, symbols[i:end], interval, ch, done)
	}

	go func() {
		for i := 0; i < chunks; i++ {
			<-done
		}
		close(ch)
	}()
	return ch
}

// OnStatus — колбэк на подключение/обрыв, вызывать до Stream.
func (s *KlineStream) OnStatus(fn func(connected bool)) { s.status = fn }

func (s *KlineStream) setStatus(v bool) {
	if s.status != nil {
		s.status(v)
	}
}

func (s *KlineStream) streamURL(symbols []string, interval string) string {
	names := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		names = append(names, strings.ToLower(sym)+"@kline_"+interval)
	}
	return s.url + "?streams=" + strings.Join(names, "/")
}

func (s *KlineStream) run(ctx context.Context, symbols []string, interval string, out chan<- models.Candle, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	u := s.streamURL(symbols, interval)

	for {
		logger.Info("[WS] connect kline_%s %d symbols", interval, len(symbols))
		conn, _, err := s.dialer.DialContext(ctx, u, nil)
		if err != nil {
			logger.Warn("[WS] dial error kline_%s: %v", interval, err)
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}

		s.setStatus(true)

		// закрываем соединение по отмене, чтобы разблокировать ReadMessage
		stop := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-stop:
			}
		}()

		s.readLoop(ctx, conn, out)
		close(stop)
		_ = conn.Close()
		s.setStatus(false)

		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

func (s *KlineStream) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- models.Candle) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("[WS] read error: %v", err)
			}
			return
		}
		c, ok := parseKline(msg)
		if !ok {
			continue
		}
		if s.prices != nil {
			s.prices.SetPrice(c.Symbol, c.Close)
		}
		select {
		case out <- c:
		case <-ctx.Done():
			return
		}
	}
}

func parseKline(msg []byte) (models.Candle, bool) {
	var f klineFrame
	if err := sonic.Unmarshal(msg, &f); err != nil {
		return models.Candle{}, false
	}
	if f.Data.Event != "kline" || f.Data.Symbol == "" {
		return models.Candle{}, false
	}
	k := f.Data.K
	open, err1 := strconv.ParseFloat(k.Open, 64)
	high, err2 := strconv.ParseFloat(k.High, 64)
	low, err3 := strconv.ParseFloat(k.Low, 64)
	closep, err4 := strconv.ParseFloat(k.Close, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || closep <= 0 {
		return models.Candle{}, false
	}
	vol, _ := strconv.ParseFloat(k.Volume, 64)

	return models.Candle{
		Symbol:    f.Data.Symbol,
		Interval:  k.Interval,
		OpenTime:  time.UnixMilli(k.Start),
		CloseTime: time.UnixMilli(k.End),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closep,
		Volume:    vol,
		Closed:    k.Closed,
	}, true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
