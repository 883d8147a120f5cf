// Package ledger persists commission records.
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"quoteengine/internal/commission"
)

// Ledger stores commissions and lists those earned since a point in time.
type Ledger interface {
	Record(ctx context.Context, c commission.Commission) error
	List(ctx context.Context, since time.Time) ([]commission.Commission, error)
}

// Memory is a process-local Ledger for development and tests.
type Memory struct {
	mu      sync.RWMutex
	records []commission.Commission
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(_ context.Context, c commission.Commission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == c.ID {
			return nil
		}
	}
	m.records = append(m.records, c)
	return nil
}

func (m *Memory) List(_ context.Context, since time.Time) ([]commission.Commission, error) {
	m.mu.RLock()
	out := make([]commission.Commission, 0, len(m.records))
	for _, r := range m.records {
		if !r.DateEarned.Before(since) {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateEarned.Before(out[j].DateEarned) })
	return out, nil
}
