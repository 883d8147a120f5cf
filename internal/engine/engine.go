// Package engine is the caller-facing API of the quote engine.
package engine

import (
    "context"
    "fmt"
    "strings"
    "time"

    "quoteengine/internal/aggregate"
    "quoteengine/internal/commission"
    "quoteengine/internal/ledger"
    "quoteengine/internal/provider"
    "quoteengine/internal/purchase"
    "quoteengine/internal/registry"
)

type Engine struct {
    agg      *aggregate.Aggregator
    orch     *purchase.Orchestrator
    registry *registry.Registry
    ledger   ledger.Ledger
    now      func() time.Time
}

func New(agg *aggregate.Aggregator, orch *purchase.Orchestrator, reg *registry.Registry, l ledger.Ledger) *Engine {
    return &Engine{agg: agg, orch: orch, registry: reg, ledger: l, now: time.Now}
}

// GetQuotesFromAllInsurers returns quotes sorted by ascending premium.
func (e *Engine) GetQuotesFromAllInsurers(ctx context.Context, req provider.QuoteRequest) ([]provider.Quote, error) {
    return e.agg.GetQuotes(ctx, req)
}

// QuoteRound is GetQuotesFromAllInsurers with round statistics.
func (e *Engine) QuoteRound(ctx context.Context, req provider.QuoteRequest) (aggregate.Round, error) {
    return e.agg.Collect(ctx, req)
}

func (e *Engine) PurchasePolicy(ctx context.Context, quoteID string, q provider.Quote, pd provider.PaymentDetails) purchase.Result {
    return e.orch.Purchase(ctx, quoteID, q, pd)
}

func (e *Engine) GetActiveInsurers(ctx context.Context) []provider.Descriptor {
    if e.registry == nil { return nil }
    return e.registry.ActiveInsurers(ctx)
}

// GetCommissionSummary totals ledger records for week, month, quarter, year or all.
func (e *Engine) GetCommissionSummary(ctx context.Context, timeframe string) (commission.Summary, error) {
    tf := commission.Timeframe(strings.ToLower(strings.TrimSpace(timeframe)))
    if tf == "" { tf = commission.Month }
    now := e.now().UTC()
    since, err := tf.Since(now)
    if err != nil { return commission.Summary{}, fmt.Errorf("%w: %q", err, timeframe) }

    var records []commission.Commission
    if e.ledger != nil {
        records, err = e.ledger.List(ctx, since)
        if err != nil { return commission.Summary{}, fmt.Errorf("commission summary: %w", err) }
    }
    return commission.Summarize(records, tf, now)
}
