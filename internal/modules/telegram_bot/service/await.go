package service

import (
	"sync"
	"time"
)

const awaitTTL = 2 * time.Minute

type awaitEntry struct {
	key string
	at  time.Time
}

// awaitStore — какое значение настройки ждём следующим сообщением из чата.
type awaitStore struct {
	mu  sync.Mutex
	m   map[int64]awaitEntry
	now func() time.Time
}

func newAwaitStore() *awaitStore {
	return &awaitStore{m: make(map[int64]awaitEntry), now: time.Now}
}

func (t *Telegram) setAwait(chatID int64, key string) {
	t.await.mu.Lock()
	defer t.await.mu.Unlock()
	t.await.m[chatID] = awaitEntry{key: key, at: t.await.now()}
}

// peekAwait — протухшее ожидание забывается.
func (t *Telegram) peekAwait(chatID int64) (string, bool) {
	t.await.mu.Lock()
	defer t.await.mu.Unlock()
	e, ok := t.await.m[chatID]
	if !ok {
		return "", false
	}
	if t.await.now().Sub(e.at) > awaitTTL {
		delete(t.await.m, chatID)
		return "", false
	}
	return e.key, true
}

func (t *Telegram) clearAwait(chatID int64) {
	t.await.mu.Lock()
	defer t.await.mu.Unlock()
	delete(t.await.m, chatID)
}
