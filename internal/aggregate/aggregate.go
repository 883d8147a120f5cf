package aggregate

import (
    "context"
    "errors"
    "fmt"
    "sort"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog"
    "golang.org/x/sync/errgroup"

    "quoteengine/internal/metrics"
    "quoteengine/internal/provider"
)

// ErrNoQuotes is returned when no adapter and no fallback produced a quote.
var ErrNoQuotes = errors.New("no quotes available")

const DefaultAdapterTimeout = 8 * time.Second

// Fallback produces quotes when every adapter came back empty.
type Fallback interface {
    Generate(req provider.QuoteRequest) []provider.Quote
}

// Stats describes one aggregation round.
type Stats struct {
    Adapters     int           `json:"adapters"`
    Succeeded    int           `json:"succeeded"`
    Failed       int           `json:"failed"`
    Empty        int           `json:"empty"`
    FallbackUsed bool          `json:"fallback_used"`
    Duration     time.Duration `json:"duration"`
}

type Round struct {
    Quotes []provider.Quote `json:"quotes"`
    Stats  Stats            `json:"stats"`
}

// Aggregator fans a request out to every registered adapter.
// A nil Fallback turns an empty round into ErrNoQuotes.
type Aggregator struct {
    adapters []provider.Adapter
    fallback Fallback
    timeout  time.Duration
    log      zerolog.Logger
}

func New(adapters []provider.Adapter, fb Fallback, adapterTimeout time.Duration, log zerolog.Logger) *Aggregator {
    if adapterTimeout <= 0 { adapterTimeout = DefaultAdapterTimeout }
    return &Aggregator{adapters: adapters, fallback: fb, timeout: adapterTimeout, log: log}
}

// Adapters returns the registered adapters in registration order.
func (a *Aggregator) Adapters() []provider.Adapter { return a.adapters }

type outcome struct {
    quotes []provider.Quote
    kind   string
}

// GetQuotes returns the merged quotes sorted by ascending premium.
func (a *Aggregator) GetQuotes(ctx context.Context, req provider.QuoteRequest) ([]provider.Quote, error) {
    r, err := a.Collect(ctx, req)
    if err != nil { return nil, err }
    return r.Quotes, nil
}

func (a *Aggregator) Collect(ctx context.Context, req provider.QuoteRequest) (Round, error) {
    if err := req.Validate(); err != nil { return Round{}, err }
    start := time.Now()

    results := make([]outcome, len(a.adapters))
    var g errgroup.Group
    for i, ad := range a.adapters {
        g.Go(func() error {
            results[i] = a.call(ctx, ad, req)
            return nil
        })
    }
    _ = g.Wait()

    st := Stats{Adapters: len(a.adapters)}
    var all []provider.Quote
    for _, r := range results {
        switch r.kind {
        case metrics.OutcomeOK:
            st.Succeeded++
        case metrics.OutcomeEmpty, metrics.OutcomeUnsupported:
            st.Empty++
        default:
            st.Failed++
        }
        all = append(all, r.quotes...)
    }

    if len(all) == 0 {
        if a.fallback == nil {
            st.Duration = time.Since(start)
            return Round{Stats: st}, fmt.Errorf("%w: %d adapters, %d failed", ErrNoQuotes, st.Adapters, st.Failed)
        }
        all = sanitize(a.fallback.Generate(req), provider.MockSource)
        st.FallbackUsed = true
        metrics.FallbackRounds.Inc()
        a.log.Info().Int("adapters", st.Adapters).Int("failed", st.Failed).Msg("no provider quotes, using indicative estimates")
        if len(all) == 0 {
            st.Duration = time.Since(start)
            return Round{Stats: st}, ErrNoQuotes
        }
    }

    SortByPremium(all)
    for _, q := range all { metrics.QuotesReturned.WithLabelValues(q.APISource).Inc() }
    st.Duration = time.Since(start)
    return Round{Quotes: all, Stats: st}, nil
}

func (a *Aggregator) call(ctx context.Context, ad provider.Adapter, req provider.QuoteRequest) (out outcome) {
    name := ad.Name()
    start := time.Now()
    ctx, cancel := context.WithTimeout(ctx, a.timeout)
    defer cancel()
    defer func() {
        if rec := recover(); rec != nil {
            a.log.Error().Str("adapter", name).Interface("panic", rec).Dur("duration", time.Since(start)).Msg("adapter panicked")
            out = outcome{kind: metrics.OutcomePanic}
        }
        metrics.ObserveAdapter(name, out.kind, time.Since(start))
    }()

    qs, err := ad.Quote(ctx, req)
    switch {
    case err != nil:
        kind := metrics.OutcomeError
        if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) { kind = metrics.OutcomeTimeout }
        a.log.Warn().Err(err).Str("adapter", name).Dur("duration", time.Since(start)).Str("outcome", kind).Msg("adapter failed")
        return outcome{kind: kind}
    case qs == nil:
        a.log.Debug().Str("adapter", name).Msg("adapter not configured")
        return outcome{kind: metrics.OutcomeUnsupported}
    }
    qs = sanitize(qs, name)
    if len(qs) == 0 { return outcome{kind: metrics.OutcomeEmpty} }
    a.log.Debug().Str("adapter", name).Int("quotes", len(qs)).Dur("duration", time.Since(start)).Msg("adapter answered")
    return outcome{quotes: qs, kind: metrics.OutcomeOK}
}

// sanitize drops unusable quotes and enforces the commission invariant.
func sanitize(in []provider.Quote, source string) []provider.Quote {
    out := make([]provider.Quote, 0, len(in))
    for _, q := range in {
        if q.Premium <= 0 { continue }
        if q.ID == "" { q.ID = uuid.NewString() }
        if q.APISource == "" { q.APISource = source }
        q.Normalize()
        out = append(out, q)
    }
    return out
}

// SortByPremium orders quotes by ascending premium, keeping input order for ties.
func SortByPremium(qs []provider.Quote) {
    sort.SliceStable(qs, func(i, j int) bool { return qs[i].Premium < qs[j].Premium })
}
