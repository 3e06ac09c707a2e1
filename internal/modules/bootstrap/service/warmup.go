package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"margin_bot/internal/models"
	"margin_bot/pkg/logger"
)

type KlineSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
}

type Warmable interface {
	Warm(symbol string, candles []models.Candle)
}

type Publisher interface {
	Publish(e models.Event)
}

type Warmuper struct {
	src      KlineSource
	hub      Warmable
	pub      Publisher
	interval string
	bars     int

	// ограничитель параллелизма, чтобы не словить rate limit
	sem chan struct{}
}

func NewWarmuper(src KlineSource, hub Warmable, pub Publisher, interval string, bars int) *Warmuper {
	return &Warmuper{
		src:      src,
		hub:      hub,
		pub:      pub,
		interval: interval,
		bars:     bars,
		sem:      make(chan struct{}, 8), // 8 параллельных символов
	}
}

// Warmup грузит историю по REST. Ошибка по одному символу не останавливает остальные,
// возвращается первая.
func (w *Warmuper) Warmup(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}

	w.service(fmt.Sprintf("🔥 REST warmup start: symbols=%d %s(%d)", len(symbols), w.interval, w.bars))

	var cnt atomic.Int64
	var wg sync.WaitGroup
	var firstErr error
	var mu sync.Mutex

	for _, sym := range symbols {
		sym := sym
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-w.sem }()

			candles, err := w.src.Klines(ctx, sym, w.interval, w.bars)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("warmup %s: %w", sym, err)
				}
				mu.Unlock()
				return
			}
			w.hub.Warm(sym, candles)
			cnt.Add(int64(len(candles)))
		}()
	}

	wg.Wait()
	logger.Info("[BOOT] warmup loaded %d candles", cnt.Load())

	if firstErr != nil {
		w.service("⚠️ REST warmup finished with error: " + firstErr.Error())
		return firstErr
	}
	w.service("✅ REST warmup finished")
	return nil
}

func (w *Warmuper) service(msg string) {
	if w.pub != nil {
		w.pub.Publish(models.Event{Kind: models.EventService, At: time.Now(), Message: msg})
	}
}
