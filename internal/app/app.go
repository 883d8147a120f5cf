// Package app builds the quote engine object graph from configuration.
package app

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "os"
    "strings"
    "time"

    "github.com/rs/zerolog"

    "quoteengine/internal/aggregate"
    "quoteengine/internal/commission"
    "quoteengine/internal/config"
    "quoteengine/internal/credentials"
    "quoteengine/internal/engine"
    "quoteengine/internal/fallback"
    "quoteengine/internal/httpx"
    "quoteengine/internal/ledger"
    "quoteengine/internal/provider"
    "quoteengine/internal/provider/cache"
    "quoteengine/internal/provider/hmomarket"
    "quoteengine/internal/provider/quotehub"
    "quoteengine/internal/provider/quotehubadapter"
    "quoteengine/internal/provider/ratelimit"
    "quoteengine/internal/purchase"
    "quoteengine/internal/registry"
)

type App struct {
    Config config.Config
    Log    zerolog.Logger
    Engine *engine.Engine
    // Market is nil when the marketplace is disabled.
    Market *hmomarket.Provider

    closers []func()
}

type options struct {
    resolver credentials.Resolver
    http     *httpx.Client
    now      func() time.Time
}

type Option func(*options)

// WithResolver replaces the configured secrets backend.
func WithResolver(r credentials.Resolver) Option {
    return func(o *options) { o.resolver = r }
}

func WithHTTPClient(c *httpx.Client) Option {
    return func(o *options) { o.http = c }
}

func WithClock(now func() time.Time) Option {
    return func(o *options) { o.now = now }
}

// NewLogger returns a JSON logger, or a console logger when format is "console".
func NewLogger(c config.Log, w io.Writer) zerolog.Logger {
    if w == nil { w = os.Stdout }
    if strings.EqualFold(c.Format, "console") {
        w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
    }
    logger := zerolog.New(w).With().Timestamp().Logger()
    if lvl, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err == nil && lvl != zerolog.NoLevel {
        logger = logger.Level(lvl)
    }
    return logger
}

// Build wires adapters, decorators, fallback, ledger and registry into an Engine.
// Close releases pools and clients opened here.
func Build(ctx context.Context, cfg config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
    o := options{now: time.Now}
    for _, opt := range opts { opt(&o) }

    a := &App{Config: cfg, Log: log}
    fail := func(err error) (*App, error) {
        a.Close()
        return nil, err
    }

    resolver := o.resolver
    if resolver == nil {
        r, err := NewResolver(ctx, cfg.Secrets, log)
        if err != nil { return fail(err) }
        resolver = r
    }

    hc := o.http
    if hc == nil {
        hc = httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
    }

    stores, err := a.cacheStores(ctx, cfg)
    if err != nil { return fail(err) }

    var (
        adapters   []provider.Adapter
        purchasers []provider.Purchaser
        entries    []registry.Entry
    )

    if cfg.QuoteHub.Enabled {
        client, err := quotehub.NewQuoteHubAPIClient("",
            quotehub.WithBaseURL(cfg.QuoteHub.Endpoint),
            quotehub.WithHTTPClient(hc.HTTP),
            quotehub.WithHeader(http.Header{"User-Agent": []string{hc.UserAgent}}),
        )
        if err != nil { return fail(fmt.Errorf("quotehub client: %w", err)) }
        qh := quotehubadapter.New(quotehubadapter.Config{
            CredentialName: cfg.QuoteHub.CredentialName,
            CommissionRate: cfg.QuoteHub.CommissionRate,
            Currency:       cfg.Engine.Currency,
            Validity:       time.Duration(cfg.QuoteHub.ValidityDays) * 24 * time.Hour,
        }, client, resolver)
        adapters = append(adapters, decorate(qh, limits{
            rpm:         cfg.QuoteHub.MaxRequestsPerMinute,
            burst:       cfg.QuoteHub.Burst,
            minInterval: cfg.QuoteHub.MinRequestIntervalSec,
            cacheTTL:    cfg.QuoteHub.CacheTTLSeconds,
            cacheMax:    cfg.QuoteHub.CacheMaxItems,
        }, stores, log))
        purchasers = append(purchasers, qh)
        entries = append(entries, registry.Entry{
            Descriptor: provider.Descriptor{
                ID:             qh.Name(),
                Name:           "QuoteHub",
                BaseURL:        cfg.QuoteHub.Endpoint,
                CommissionRate: cfg.QuoteHub.CommissionRate,
                Kind:           provider.KindAggregator,
            },
            CredentialName: cfg.QuoteHub.CredentialName,
            Enabled:        true,
        })
    }

    if cfg.HMOMarket.Enabled {
        market := hmomarket.New(hmomarket.Config{
            BaseURL:           cfg.HMOMarket.Endpoint,
            CredentialName:    cfg.HMOMarket.CredentialName,
            Currency:          cfg.Engine.Currency,
            CommissionRate:    cfg.HMOMarket.CommissionRate,
            MaxSubProviders:   cfg.HMOMarket.MaxSubProviders,
            MaxConcurrency:    cfg.HMOMarket.MaxConcurrency,
            SubRequestTimeout: time.Duration(cfg.HMOMarket.SubRequestTimeoutSec) * time.Second,
        }, hc, resolver, log)
        a.Market = market
        adapters = append(adapters, decorate(market, limits{
            rpm:         cfg.HMOMarket.MaxRequestsPerMinute,
            burst:       cfg.HMOMarket.Burst,
            minInterval: cfg.HMOMarket.MinRequestIntervalSec,
            cacheTTL:    cfg.HMOMarket.CacheTTLSeconds,
            cacheMax:    cfg.HMOMarket.CacheMaxItems,
        }, stores, log))
        entries = append(entries, registry.Entry{
            Descriptor: provider.Descriptor{
                ID:             market.Name(),
                Name:           "HMO Market",
                BaseURL:        cfg.HMOMarket.Endpoint,
                CommissionRate: cfg.HMOMarket.CommissionRate,
                Kind:           provider.KindMarketplace,
            },
            CredentialName: cfg.HMOMarket.CredentialName,
            Enabled:        true,
        })
    }

    var fb aggregate.Fallback
    if cfg.Engine.FallbackEnabled {
        fb = fallback.New(o.now)
        for _, d := range fallback.Roster() {
            entries = append(entries, registry.Entry{Descriptor: d, Enabled: true})
        }
    }

    l, err := a.openLedger(ctx, cfg.Ledger, log)
    if err != nil { return fail(err) }

    reg := registry.New(entries, resolver, log)
    if a.Market != nil { reg.AddMarketplace(a.Market.Name(), a.Market) }

    agg := aggregate.New(adapters, fb, time.Duration(cfg.Engine.AdapterTimeoutSec)*time.Second, log)
    orch := purchase.New(purchasers, commission.NewTracker(o.now), l, log)
    a.Engine = engine.New(agg, orch, reg, l)

    log.Info().Int("adapters", len(adapters)).Bool("fallback", fb != nil).Str("ledger", cfg.Ledger.Driver).Msg("engine ready")
    return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
    for i := len(a.closers) - 1; i >= 0; i-- { a.closers[i]() }
    a.closers = nil
}

// NewResolver builds the configured secrets backend, cached when secrets.cache_ttl_sec is set.
func NewResolver(ctx context.Context, c config.Secrets, log zerolog.Logger) (credentials.Resolver, error) {
    var r credentials.Resolver
    switch c.Backend {
    case "", "env":
        r = credentials.NewEnv(c.EnvPrefix)
    case "aws", "chain":
        sm, err := credentials.NewAWSSecretsManager(ctx, credentials.AWSOptions{Region: c.AWSRegion, Prefix: c.AWSPrefix, Logger: log})
        if err != nil { return nil, fmt.Errorf("secrets: %w", err) }
        r = sm
        if c.Backend == "chain" { r = credentials.Chain{credentials.NewEnv(c.EnvPrefix), sm} }
    default:
        return nil, fmt.Errorf("secrets: unknown backend %q", c.Backend)
    }
    if c.CacheTTLSec > 0 {
        r = credentials.NewCached(r, time.Duration(c.CacheTTLSec)*time.Second, time.Duration(c.NegativeTTLSec)*time.Second, log)
    }
    return r, nil
}

// storeFactory hands each adapter its cache store. Redis is shared; memory
// stores are per adapter.
type storeFactory func(maxItems int) cache.Store

func (a *App) cacheStores(ctx context.Context, cfg config.Config) (storeFactory, error) {
    if cfg.Cache.Backend != "redis" {
        return func(maxItems int) cache.Store { return cache.NewMemory(maxItems) }, nil
    }
    client, err := cache.Connect(ctx, cfg.Cache.RedisURL)
    if err != nil { return nil, err }
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    a.closers = append(a.closers, func() { _ = client.Close() })
    shared := cache.NewRedis(client, cfg.Cache.Prefix)
    return func(int) cache.Store { return shared }, nil
}

func (a *App) openLedger(ctx context.Context, c config.Ledger, log zerolog.Logger) (ledger.Ledger, error) {
    switch c.Driver {
    case "", "memory":
        return ledger.NewMemory(), nil
    case "postgres":
        pool, err := ledger.NewPool(ctx, c.DatabaseURL, c.MaxConns, c.MinConns)
        if err != nil { return nil, err }
        a.closers = append(a.closers, pool.Close)
        pg := ledger.NewPostgres(pool)
        if err := pg.EnsureSchema(ctx); err != nil { return nil, err }
        log.Info().Msg("commission ledger on postgres")
        return pg, nil
    }
    return nil, errors.New("unknown ledger driver " + c.Driver)
}

type limits struct {
    rpm, burst, minInterval int
    cacheTTL, cacheMax      int
}

// decorate wraps a with a rate limiter and, outermost, a quote cache so
// cache hits do not spend rate budget.
func decorate(a provider.Adapter, l limits, stores storeFactory, log zerolog.Logger) provider.Adapter {
    out := a
    if l.rpm > 0 {
        out = &ratelimit.Adapter{A: out, TB: ratelimit.NewTokenBucket(float64(l.rpm)/60.0, l.burst)}
    } else if l.minInterval > 0 {
        out = &ratelimit.MinInterval{A: out, Interval: time.Duration(l.minInterval) * time.Second}
    }
    if l.cacheTTL > 0 {
        out = &cache.Adapter{A: out, Store: stores(l.cacheMax), TTL: time.Duration(l.cacheTTL) * time.Second, Log: log}
    }
    return out
}
