package aggregate

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/rs/zerolog"
    "github.com/stretchr/testify/require"
    "go.uber.org/goleak"

    "quoteengine/internal/credentials"
    "quoteengine/internal/fallback"
    "quoteengine/internal/provider"
    "quoteengine/internal/provider/quotehubadapter"
)

func TestMain(m *testing.M) {
    goleak.VerifyTestMain(m)
}

type fakeAdapter struct {
    name   string
    quotes []provider.Quote
    err    error
    delay  time.Duration
    panics bool
}

func (f fakeAdapter) Name() string { return f.name }

func (f fakeAdapter) Quote(ctx context.Context, _ provider.QuoteRequest) ([]provider.Quote, error) {
    if f.panics { panic("adapter bug") }
    if f.delay > 0 {
        select {
        case <-time.After(f.delay):
        case <-ctx.Done():
            return nil, ctx.Err()
        }
    }
    return f.quotes, f.err
}

func quote(source string, premium int64, rate float64) provider.Quote {
    return provider.Quote{ID: source + "-q", InsurerID: source, Premium: premium, CommissionRate: rate, APISource: source, Status: provider.StatusPending}
}

func request() provider.QuoteRequest {
    return provider.QuoteRequest{FullName: "Ada Obi", Age: 45, CoverageType: provider.CoverageHealth, CoverageAmount: 2_000_000}
}

func fixedGenerator() *fallback.Generator {
    return fallback.New(func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) })
}

func TestGetQuotes_SortedAndCommissionNormalized(t *testing.T) {
    a := New([]provider.Adapter{
        fakeAdapter{name: "a", quotes: []provider.Quote{quote("a", 30000, 0.1), quote("a", 12000, 0.125)}},
        fakeAdapter{name: "b", quotes: []provider.Quote{quote("b", 20000, 0.15)}},
    }, fixedGenerator(), time.Second, zerolog.Nop())

    got, err := a.GetQuotes(t.Context(), request())
    require.NoError(t, err)
    require.Len(t, got, 3)
    for i, q := range got {
        if i > 0 { require.LessOrEqual(t, got[i-1].Premium, q.Premium, "not sorted at %d", i) }
        require.Equal(t, provider.CommissionFor(q.Premium, q.CommissionRate), q.Commission)
        require.False(t, q.IsMock())
    }
    require.Equal(t, int64(1500), got[0].Commission)
}

func TestGetQuotes_NoAdaptersConfigured_UsesFallback(t *testing.T) {
    // real adapter with an empty resolver: no credential, no network call
    qh := quotehubadapter.New(quotehubadapter.Config{}, nil, credentials.Static{})
    a := New([]provider.Adapter{qh, fakeAdapter{name: "empty"}}, fixedGenerator(), time.Second, zerolog.Nop())

    r, err := a.Collect(t.Context(), request())
    require.NoError(t, err)
    require.True(t, r.Stats.FallbackUsed)
    require.Equal(t, 2, r.Stats.Empty)
    require.Len(t, r.Quotes, 3)
    for _, q := range r.Quotes {
        require.Equal(t, provider.MockSource, q.APISource)
        require.Equal(t, int64(10500), q.Premium)
    }
    require.Equal(t, "AXA Mansard Health", r.Quotes[0].InsurerName, "stable sort keeps roster order on ties")
}

func TestGetQuotes_OneAdapterSucceeds_NoMockQuotes(t *testing.T) {
    a := New([]provider.Adapter{
        fakeAdapter{name: "down", err: errors.New("connection refused")},
        fakeAdapter{name: "slow", delay: time.Minute},
        fakeAdapter{name: "buggy", panics: true},
        fakeAdapter{name: "up", quotes: []provider.Quote{quote("up", 9000, 0.1)}},
    }, fixedGenerator(), 50*time.Millisecond, zerolog.Nop())

    start := time.Now()
    r, err := a.Collect(t.Context(), request())
    require.NoError(t, err)
    require.Less(t, time.Since(start), 5*time.Second)
    require.Len(t, r.Quotes, 1)
    require.Equal(t, "up", r.Quotes[0].APISource)
    require.False(t, r.Stats.FallbackUsed)
    require.Equal(t, 1, r.Stats.Succeeded)
    require.Equal(t, 3, r.Stats.Failed)
}

func TestGetQuotes_FallbackDisabled(t *testing.T) {
    a := New([]provider.Adapter{fakeAdapter{name: "down", err: errors.New("boom")}}, nil, time.Second, zerolog.Nop())

    _, err := a.GetQuotes(t.Context(), request())
    require.ErrorIs(t, err, ErrNoQuotes)
}

func TestGetQuotes_InvalidRequest(t *testing.T) {
    a := New(nil, fixedGenerator(), time.Second, zerolog.Nop())
    _, err := a.GetQuotes(t.Context(), provider.QuoteRequest{Age: 30})
    require.ErrorIs(t, err, provider.ErrInvalidRequest)
}

func TestSanitize_DropsNonPositiveAndFillsDefaults(t *testing.T) {
    in := []provider.Quote{
        {Premium: 0, CommissionRate: 0.1},
        {Premium: -5, CommissionRate: 0.1},
        {Premium: 1001, CommissionRate: 0.1, Commission: 999},
    }
    out := sanitize(in, "src")
    require.Len(t, out, 1)
    require.Equal(t, int64(100), out[0].Commission)
    require.Equal(t, "src", out[0].APISource)
    require.NotEmpty(t, out[0].ID)
    require.Equal(t, provider.StatusPending, out[0].Status)
}

func TestSortByPremium_StableOnTies(t *testing.T) {
    qs := []provider.Quote{
        {ID: "1", Premium: 5},
        {ID: "2", Premium: 3},
        {ID: "3", Premium: 5},
        {ID: "4", Premium: 3},
    }
    SortByPremium(qs)
    ids := []string{qs[0].ID, qs[1].ID, qs[2].ID, qs[3].ID}
    require.Equal(t, []string{"2", "4", "1", "3"}, ids)
}
