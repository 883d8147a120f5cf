package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "os"
    "strings"
    "time"

    "quoteengine/internal/app"
    "quoteengine/internal/config"
    "quoteengine/internal/provider"
)

func main() {
    var (
        req        provider.QuoteRequest
        gender     string
        coverage   string
        conditions string
        timeout    int
        limit      int
        configPath string
    )
    flag.StringVar(&req.FullName, "name", getenv("APPLICANT_NAME", "Test Applicant"), "applicant full name")
    flag.StringVar(&req.Email, "email", "", "applicant email")
    flag.StringVar(&req.Phone, "phone", "", "applicant phone")
    flag.IntVar(&req.Age, "age", 35, "applicant age")
    flag.StringVar(&gender, "gender", "other", "male, female or other")
    flag.StringVar(&req.Region, "region", "Lagos", "state or region")
    flag.StringVar(&coverage, "coverage", "health", "health, life, auto, travel or property")
    flag.Int64Var(&req.CoverageAmount, "amount", 1_000_000, "coverage amount in whole currency units")
    flag.IntVar(&req.FamilySize, "family", 0, "family size (0 = unset)")
    flag.StringVar(&conditions, "conditions", "", "comma-separated pre-existing conditions")
    flag.IntVar(&timeout, "timeout", 20, "overall timeout seconds")
    flag.IntVar(&limit, "limit", 10, "max quotes printed")
    flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
    flag.Parse()

    req.Gender = provider.Gender(strings.ToLower(gender))
    req.CoverageType = provider.CoverageType(strings.ToLower(coverage))
    req.PreExistingConditions = splitCSV(conditions)

    cfg, err := config.Load(configPath)
    if err != nil {
        fmt.Fprintf(os.Stderr, "config: %v\n", err)
        os.Exit(1)
    }
    log := app.NewLogger(cfg.Log, os.Stderr)

    ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
    defer cancel()

    a, err := app.Build(ctx, cfg, log)
    if err != nil { log.Fatal().Err(err).Msg("build engine") }
    defer a.Close()

    round, err := a.Engine.QuoteRound(ctx, req)
    if err != nil { log.Fatal().Err(err).Msg("quote round") }
    log.Info().
        Int("adapters", round.Stats.Adapters).
        Int("succeeded", round.Stats.Succeeded).
        Int("failed", round.Stats.Failed).
        Bool("fallback", round.Stats.FallbackUsed).
        Dur("duration", round.Stats.Duration).
        Msg("round complete")

    if limit > 0 && len(round.Quotes) > limit { round.Quotes = round.Quotes[:limit] }
    b, _ := json.MarshalIndent(round, "", "  ")
    fmt.Println(string(b))
}

func splitCSV(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" { out = append(out, p) }
    }
    return out
}

func getenv(key, def string) string { if v := os.Getenv(key); v != "" { return v }; return def }
