// Package fallback produces synthetic quotes when no real provider answers.
// The premium arithmetic is a placeholder with no actuarial basis; every
// quote it returns is tagged provider.MockSource.
package fallback

import (
    "math"
    "time"

    "github.com/google/uuid"

    "quoteengine/internal/provider"
)

const (
    basePremium     = 5000.0
    coverageFactor  = 0.002
    defaultValidity = 30 * 24 * time.Hour

    // Marker carried in coverage and terms of every synthetic quote.
    Marker = "Indicative estimate"
)

var idSpace = uuid.MustParse("6f1d3c2e-9a4b-5c7d-8e0f-1a2b3c4d5e6f")

type insurer struct {
    id       string
    name     string
    rate     float64
    features []string
}

var roster = []insurer{
    {id: "axa-mansard-health", name: "AXA Mansard Health", rate: 0.15, features: []string{"Nationwide hospital network", "Outpatient consultations", "Emergency evacuation"}},
    {id: "leadway-health", name: "Leadway Health", rate: 0.12, features: []string{"Annual health check", "Specialist referrals", "Maternity cover"}},
    {id: "hygeia-hmo", name: "Hygeia HMO", rate: 0.10, features: []string{"Primary care clinics", "Prescription drugs", "Dental and optical"}},
}

// Roster returns the descriptors of the synthetic insurers.
func Roster() []provider.Descriptor {
    out := make([]provider.Descriptor, 0, len(roster))
    for _, in := range roster {
        out = append(out, provider.Descriptor{
            ID:             in.id,
            Name:           in.name,
            Active:         true,
            CommissionRate: in.rate,
            Kind:           provider.KindMock,
        })
    }
    return out
}

// Generator is deterministic for a given request and clock.
type Generator struct {
    Now      func() time.Time
    Validity time.Duration
}

func New(now func() time.Time) *Generator {
    return &Generator{Now: now}
}

func ageMultiplier(age int) float64 {
    switch {
    case age <= 40:
        return 1.0
    case age <= 60:
        return 1.3
    }
    return 1.6
}

// Premium is round(5000 * ageMultiplier + coverageAmount * 0.002).
func Premium(age int, coverageAmount int64) int64 {
    return int64(math.Round(basePremium*ageMultiplier(age) + float64(coverageAmount)*coverageFactor))
}

// Generate returns one quote per roster insurer, in roster order.
func (g *Generator) Generate(req provider.QuoteRequest) []provider.Quote {
    now := time.Now
    if g != nil && g.Now != nil { now = g.Now }
    validity := defaultValidity
    if g != nil && g.Validity > 0 { validity = g.Validity }

    fp := req.Fingerprint()
    premium := Premium(req.Age, req.CoverageAmount)
    validUntil := now().UTC().Add(validity)

    out := make([]provider.Quote, 0, len(roster))
    for _, in := range roster {
        q := provider.Quote{
            ID:             uuid.NewSHA1(idSpace, []byte(fp+":"+in.id)).String(),
            InsurerID:      in.id,
            InsurerName:    in.name,
            Premium:        premium,
            Currency:       "NGN",
            Coverage:       Marker + ": " + string(req.CoverageType) + " cover",
            CommissionRate: in.rate,
            ValidUntil:     validUntil,
            Features:       append([]string(nil), in.features...),
            Terms:          Marker + ". Synthetic pricing for illustration only; not an offer of insurance. Final premium is set by the insurer at underwriting.",
            Status:         provider.StatusPending,
            APISource:      provider.MockSource,
        }
        q.Normalize()
        out = append(out, q)
    }
    return out
}
