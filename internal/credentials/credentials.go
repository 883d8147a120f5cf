// Package credentials resolves provider API keys. A missing key is a normal
// outcome: callers skip the provider instead of failing the request.
package credentials

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Secret is an optional API key. The zero value is absent.
type Secret struct {
	value string
	ok    bool
}

// Present wraps a key. An empty or whitespace-only key is absent.
func Present(v string) Secret {
	v = strings.TrimSpace(v)
	if v == "" {
		return Secret{}
	}
	return Secret{value: v, ok: true}
}

// Absent reports an unconfigured key.
func Absent() Secret { return Secret{} }

// Value returns the key and whether it is present.
func (s Secret) Value() (string, bool) { return s.value, s.ok }

func (s Secret) IsPresent() bool { return s.ok }

// String never prints the key itself.
func (s Secret) String() string {
	if !s.ok {
		return "<absent>"
	}
	return "<redacted>"
}

// Resolver looks up a secret by name. It never fails: any lookup problem
// is reported as Absent.
type Resolver interface {
	Resolve(ctx context.Context, name string) Secret
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, name string) Secret

func (f ResolverFunc) Resolve(ctx context.Context, name string) Secret { return f(ctx, name) }

// Static serves keys from a fixed map.
type Static map[string]string

func (s Static) Resolve(_ context.Context, name string) Secret { return Present(s[name]) }

// Chain returns the first present secret.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, name string) Secret {
	for _, r := range c {
		if r == nil {
			continue
		}
		if s := r.Resolve(ctx, name); s.IsPresent() {
			return s
		}
	}
	return Absent()
}

type cacheEntry struct {
	secret    Secret
	expiresAt time.Time
}

// Cached memoizes another resolver. Absences expire after NegativeTTL so a
// key added later is picked up without a restart.
type Cached struct {
	R           Resolver
	TTL         time.Duration
	NegativeTTL time.Duration
	Logger      zerolog.Logger

	now   func() time.Time
	mu    sync.RWMutex
	items map[string]cacheEntry
}

func NewCached(r Resolver, ttl, negativeTTL time.Duration, logger zerolog.Logger) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if negativeTTL <= 0 || negativeTTL > ttl {
		negativeTTL = ttl / 5
	}
	return &Cached{R: r, TTL: ttl, NegativeTTL: negativeTTL, Logger: logger, now: time.Now, items: map[string]cacheEntry{}}
}

func (c *Cached) Resolve(ctx context.Context, name string) Secret {
	now := c.now()
	c.mu.RLock()
	e, ok := c.items[name]
	c.mu.RUnlock()
	if ok && now.Before(e.expiresAt) {
		return e.secret
	}

	s := c.R.Resolve(ctx, name)
	ttl := c.TTL
	if !s.IsPresent() {
		ttl = c.NegativeTTL
		c.Logger.Debug().Str("secret", Mask(name)).Msg("credential not configured")
	}
	c.mu.Lock()
	c.items[name] = cacheEntry{secret: s, expiresAt: now.Add(ttl)}
	c.mu.Unlock()
	return s
}

// Invalidate drops one cached entry.
func (c *Cached) Invalidate(name string) {
	c.mu.Lock()
	delete(c.items, name)
	c.mu.Unlock()
}

// Mask keeps only the last 4 characters of a secret name for logging.
func Mask(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return "..." + name[len(name)-4:]
}
