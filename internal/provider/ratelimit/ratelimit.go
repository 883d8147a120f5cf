package ratelimit

import (
    "context"
    "sync"
    "time"

    "golang.org/x/time/rate"

    "quoteengine/internal/provider"
)

// MinInterval wraps an adapter and spaces calls at least Interval apart.
// It is a one-token bucket refilled once per Interval.
type MinInterval struct {
    A        provider.Adapter
    Interval time.Duration
    once     sync.Once
    tb       *TokenBucket
}

func (m *MinInterval) Name() string { return m.A.Name() }

func (m *MinInterval) Quote(ctx context.Context, req provider.QuoteRequest) ([]provider.Quote, error) {
    if m.Interval > 0 {
        m.once.Do(func() { m.tb = &TokenBucket{lim: rate.NewLimiter(rate.Every(m.Interval), 1)} })
        if err := m.tb.Wait(ctx); err != nil { return nil, err }
    }
    return m.A.Quote(ctx, req)
}
