package cache

import (
    "context"
    "sync"
    "time"

    "quoteengine/internal/provider"
)

type entry struct {
    expiresAt time.Time
    quotes    []provider.Quote
}

// Memory is a process-local Store. MaxItems bounds the number of keys;
// expired entries are evicted first, then arbitrary ones.
type Memory struct {
    MaxItems int

    mu    sync.RWMutex
    items map[string]entry
    now   func() time.Time
}

func NewMemory(maxItems int) *Memory {
    return &Memory{MaxItems: maxItems, items: make(map[string]entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]provider.Quote, bool, error) {
    m.mu.RLock()
    e, ok := m.items[key]
    m.mu.RUnlock()
    if !ok || !m.now().Before(e.expiresAt) { return nil, false, nil }
    return e.quotes, true, nil
}

func (m *Memory) Set(_ context.Context, key string, quotes []provider.Quote, ttl time.Duration) error {
    cp := append([]provider.Quote(nil), quotes...)
    now := m.now()
    m.mu.Lock()
    defer m.mu.Unlock()
    m.items[key] = entry{expiresAt: now.Add(ttl), quotes: cp}
    if m.MaxItems > 0 && len(m.items) > m.MaxItems {
        for k, v := range m.items {
            if !now.Before(v.expiresAt) { delete(m.items, k) }
        }
        for k := range m.items {
            if len(m.items) <= m.MaxItems { break }
            if k == key { continue }
            delete(m.items, k)
        }
    }
    return nil
}

func (m *Memory) Len() int {
    m.mu.RLock()
    defer m.mu.RUnlock()
    return len(m.items)
}
