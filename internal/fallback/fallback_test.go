package fallback

import (
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "quoteengine/internal/provider"
)

func fixedClock() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestGenerate_HealthExample(t *testing.T) {
    g := New(fixedClock)
    req := provider.QuoteRequest{FullName: "Ada Obi", Age: 45, CoverageType: provider.CoverageHealth, CoverageAmount: 2_000_000}

    quotes := g.Generate(req)
    require.Len(t, quotes, 3)

    want := map[string]float64{"AXA Mansard Health": 0.15, "Leadway Health": 0.12, "Hygeia HMO": 0.10}
    for _, q := range quotes {
        require.Equal(t, int64(10500), q.Premium)
        require.Equal(t, provider.MockSource, q.APISource)
        require.True(t, q.IsMock())
        require.InDelta(t, want[q.InsurerName], q.CommissionRate, 1e-9)
        require.Equal(t, provider.CommissionFor(q.Premium, q.CommissionRate), q.Commission)
        require.Equal(t, provider.StatusPending, q.Status)
        require.Equal(t, fixedClock().Add(30*24*time.Hour), q.ValidUntil)
        require.True(t, strings.HasPrefix(q.Coverage, Marker))
        require.Contains(t, q.Terms, Marker)
    }
    require.Equal(t, int64(1575), quotes[0].Commission)
}

func TestGenerate_Deterministic(t *testing.T) {
    g := New(fixedClock)
    req := provider.QuoteRequest{FullName: "Ada Obi", Age: 30, CoverageType: provider.CoverageLife, CoverageAmount: 500_000}

    a, b := g.Generate(req), g.Generate(req)
    require.Equal(t, a, b)

    other := req
    other.Age = 31
    require.NotEqual(t, a[0].ID, g.Generate(other)[0].ID)
}

func TestPremium_AgeBands(t *testing.T) {
    tests := []struct {
        age  int
        want int64
    }{
        {age: 18, want: 5000},
        {age: 40, want: 5000},
        {age: 41, want: 6500},
        {age: 60, want: 6500},
        {age: 61, want: 8000},
    }
    for _, tt := range tests {
        require.Equal(t, tt.want, Premium(tt.age, 0), "age %d", tt.age)
    }
    require.Equal(t, int64(5001), Premium(25, 250), "0.5 rounds half away from zero")
}

func TestRoster(t *testing.T) {
    r := Roster()
    require.Len(t, r, 3)
    for _, d := range r {
        require.Equal(t, provider.KindMock, d.Kind)
        require.True(t, d.Active)
    }
}
