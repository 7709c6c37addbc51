package storage

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rl1809/stock-ledger/internal/port"
)

const defaultIdempotencyCacheSize = 10000

// LRUAdapter keeps idempotency keys in process memory. Keys are lost on
// restart and are not shared between replicas.
type LRUAdapter struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, string]
}

func NewLRUAdapter(size int, ttl time.Duration) *LRUAdapter {
	if size <= 0 {
		size = defaultIdempotencyCacheSize
	}
	if ttl <= 0 {
		ttl = idempotencyKeyTTL
	}
	return &LRUAdapter{cache: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (l *LRUAdapter) Claim(_ context.Context, key string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.cache.Get(key); ok {
		return existing, false, nil
	}
	l.cache.Add(key, port.PendingValue)
	return "", true, nil
}

func (l *LRUAdapter) Complete(_ context.Context, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache.Add(key, value)
	return nil
}

func (l *LRUAdapter) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache.Remove(key)
	return nil
}
