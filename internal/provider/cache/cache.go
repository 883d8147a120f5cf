package cache

import (
    "context"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog"

    "quoteengine/internal/provider"
)

// Store keeps quote lists under a request key for a TTL.
type Store interface {
    Get(ctx context.Context, key string) ([]provider.Quote, bool, error)
    Set(ctx context.Context, key string, quotes []provider.Quote, ttl time.Duration) error
}

// Adapter caches a wrapped adapter's results per request fingerprint.
// A hit is reissued with fresh quote ids so every round hands out
// quotes nobody else holds.
type Adapter struct {
    A     provider.Adapter
    Store Store
    TTL   time.Duration
    Log   zerolog.Logger
    now   func() time.Time
}

func (c *Adapter) Name() string { return c.A.Name() }

func (c *Adapter) key(req provider.QuoteRequest) string {
    return "quotes:" + c.A.Name() + ":" + req.Fingerprint()
}

func (c *Adapter) clock() time.Time {
    if c.now != nil { return c.now() }
    return time.Now()
}

func (c *Adapter) Quote(ctx context.Context, req provider.QuoteRequest) ([]provider.Quote, error) {
    if c.Store == nil || c.TTL <= 0 {
        return c.A.Quote(ctx, req)
    }
    key := c.key(req)
    now := c.clock()

    cached, ok, err := c.Store.Get(ctx, key)
    if err != nil {
        c.Log.Debug().Err(err).Str("adapter", c.A.Name()).Msg("quote cache read failed")
    }
    if ok && len(cached) > 0 && !anyExpired(cached, now) {
        return reissue(cached), nil
    }

    fresh, err := c.A.Quote(ctx, req)
    if err != nil || len(fresh) == 0 {
        return fresh, err
    }
    if err := c.Store.Set(ctx, key, fresh, c.TTL); err != nil {
        c.Log.Debug().Err(err).Str("adapter", c.A.Name()).Msg("quote cache write failed")
    }
    return fresh, nil
}

func anyExpired(qs []provider.Quote, now time.Time) bool {
    for _, q := range qs {
        if q.Expired(now) { return true }
    }
    return false
}

func reissue(in []provider.Quote) []provider.Quote {
    out := make([]provider.Quote, len(in))
    for i, q := range in {
        q.ID = uuid.NewString()
        q.Status = provider.StatusPending
        q.Features = append([]string(nil), q.Features...)
        out[i] = q
    }
    return out
}
