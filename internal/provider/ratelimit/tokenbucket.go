package ratelimit

import (
    "context"
    "time"

    "golang.org/x/time/rate"

    "quoteengine/internal/provider"
)

// TokenBucket limits calls to a steady rate per second with bursts up to
// the bucket size. A non-positive rate disables limiting.
type TokenBucket struct {
    lim *rate.Limiter
}

func NewTokenBucket(tokensPerSecond float64, burst int) *TokenBucket {
    if burst <= 0 { burst = 1 }
    limit := rate.Limit(tokensPerSecond)
    if tokensPerSecond <= 0 { limit = rate.Inf }
    return &TokenBucket{lim: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a token is available or ctx is done. A token reserved
// by a caller that gives up is handed back to the bucket.
func (tb *TokenBucket) Wait(ctx context.Context) error {
    r := tb.lim.Reserve()
    d := r.Delay()
    if d <= 0 { return nil }
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        r.Cancel()
        return ctx.Err()
    case <-t.C:
        return nil
    }
}

// Adapter gates quote calls to A through a token bucket.
type Adapter struct {
    A  provider.Adapter
    TB *TokenBucket
}

func (t *Adapter) Name() string { return t.A.Name() }

func (t *Adapter) Quote(ctx context.Context, req provider.QuoteRequest) ([]provider.Quote, error) {
    if t.TB != nil {
        if err := t.TB.Wait(ctx); err != nil { return nil, err }
    }
    return t.A.Quote(ctx, req)
}
