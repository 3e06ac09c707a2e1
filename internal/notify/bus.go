package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"margin_bot/internal/models"
	"margin_bot/pkg/logger"
)

// Sink — получатель событий. Медленный или упавший sink не тормозит торговлю.
type Sink interface {
	Name() string
	Handle(ctx context.Context, e models.Event) error
}

// Bus — неблокирующая шина событий раннера. При переполнении событие теряется
// и считается в Dropped.
type Bus struct {
	ch      chan models.Event
	dropped atomic.Int64

	mu    sync.RWMutex
	sinks []Sink

	cancel context.CancelFunc
	done   chan struct{}
}

func NewBus(size int) *Bus {
	if size <= 0 {
		size = 256
	}
	return &Bus{ch: make(chan models.Event, size)}
}

func (b *Bus) Register(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
	logger.Info("[NOTIFY] sink %s registered", s.Name())
}

func (b *Bus) Publish(e models.Event) {
	select {
	case b.ch <- e:
	default:
		n := b.dropped.Add(1)
		logger.Warn("[NOTIFY] queue full, dropped %s %s (total %d)", e.Kind, e.Symbol, n)
	}
}

func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Start запускает раздачу в отдельной горутине.
func (b *Bus) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	b.cancel = cancel
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		b.Run(ctx)
	}()
}

// Stop дожидается раздачи уже принятых событий.
func (b *Bus) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
}

// Run раздаёт события всем sink'ам по очереди, пока не отменят ctx;
// после отмены дочищает очередь.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case e := <-b.ch:
			b.dispatch(ctx, e)
		case <-ctx.Done():
			for {
				select {
				case e := <-b.ch:
					b.dispatch(context.Background(), e)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, e models.Event) {
	b.mu.RLock()
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := handle(ctx, s, e); err != nil {
			logger.Error("[NOTIFY] sink %s %s %s: %v", s.Name(), e.Kind, e.Symbol, err)
		}
	}
}

func handle(ctx context.Context, s Sink, e models.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Handle(ctx, e)
}
