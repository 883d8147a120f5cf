package main

import (
    "bufio"
    "context"
    "encoding/json"
    "errors"
    "flag"
    "fmt"
    "net/http"
    "os"
    "sort"
    "time"

    "quoteengine/internal/app"
    "quoteengine/internal/config"
    "quoteengine/internal/credentials"
    "quoteengine/internal/httpx"
    "quoteengine/internal/provider"
    "quoteengine/internal/provider/hmomarket"
)

type dump struct {
    Marketplace string                `json:"marketplace"`
    FetchedAt   time.Time             `json:"fetched_at"`
    Count       int                   `json:"count"`
    HMOs        []provider.Descriptor `json:"hmos"`
}

func main() {
    var (
        outPath    string
        cfgPath    string
        timeoutSec int
        maxRetries int
        activeOnly bool
    )
    flag.StringVar(&outPath, "out", "hmomarket_hmos.json", "output JSON file path")
    flag.StringVar(&cfgPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
    flag.IntVar(&timeoutSec, "timeout", 20, "HTTP timeout seconds")
    flag.IntVar(&maxRetries, "retries", 3, "max retries on 429/5xx")
    flag.BoolVar(&activeOnly, "active-only", false, "drop inactive HMOs")
    flag.Parse()

    cfg, err := config.Load(cfgPath)
    if err != nil {
        fmt.Fprintf(os.Stderr, "config: %v\n", err)
        os.Exit(1)
    }
    log := app.NewLogger(cfg.Log, os.Stderr)

    resolver, err := app.NewResolver(context.Background(), cfg.Secrets, log)
    if err != nil { log.Fatal().Err(err).Msg("secrets") }
    if !resolver.Resolve(context.Background(), cfg.HMOMarket.CredentialName).IsPresent() {
        log.Fatal().Str("credential", credentials.Mask(cfg.HMOMarket.CredentialName)).Str("backend", cfg.Secrets.Backend).Msg("marketplace key missing")
    }

    market := hmomarket.New(hmomarket.Config{
        BaseURL:        cfg.HMOMarket.Endpoint,
        CredentialName: cfg.HMOMarket.CredentialName,
        CommissionRate: cfg.HMOMarket.CommissionRate,
    }, httpx.New(time.Duration(timeoutSec)*time.Second), resolver, log)

    ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec*(maxRetries+1))*time.Second)
    defer cancel()

    var descs []provider.Descriptor
    for attempt := 0; ; attempt++ {
        descs, err = market.Discover(ctx)
        if err == nil || attempt >= maxRetries || !retryable(err) { break }
        back := time.Duration(250*(1<<attempt)) * time.Millisecond
        log.Warn().Err(err).Dur("backoff", back).Msg("discovery failed, retrying")
        select {
        case <-ctx.Done():
            log.Fatal().Err(ctx.Err()).Msg("discovery")
        case <-time.After(back):
        }
    }
    if err != nil { log.Fatal().Err(err).Msg("discovery") }

    if activeOnly {
        kept := descs[:0]
        for _, d := range descs {
            if d.Active { kept = append(kept, d) }
        }
        descs = kept
    }
    sort.Slice(descs, func(i, j int) bool { return descs[i].ID < descs[j].ID })

    f, err := os.Create(outPath)
    if err != nil { log.Fatal().Err(err).Msg("create out") }
    defer f.Close()
    bw := bufio.NewWriterSize(f, 1<<16)
    enc := json.NewEncoder(bw)
    enc.SetIndent("", "  ")
    if err := enc.Encode(dump{Marketplace: market.Name(), FetchedAt: time.Now().UTC(), Count: len(descs), HMOs: descs}); err != nil {
        log.Fatal().Err(err).Msg("encode")
    }
    if err := bw.Flush(); err != nil { log.Fatal().Err(err).Msg("flush") }
    log.Info().Int("hmos", len(descs)).Str("out", outPath).Msg("done")
}

func retryable(err error) bool {
    var se *httpx.StatusError
    if !errors.As(err, &se) { return false }
    return se.Code == http.StatusTooManyRequests || se.Code >= 500
}
