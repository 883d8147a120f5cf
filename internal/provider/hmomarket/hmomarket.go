package hmomarket

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "math"
    "net/http"
    "net/url"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog"
    "golang.org/x/sync/errgroup"
    "golang.org/x/sync/singleflight"

    "quoteengine/internal/credentials"
    "quoteengine/internal/httpx"
    "quoteengine/internal/provider"
)

type Config struct {
    Name           string
    BaseURL        string
    CredentialName string
    Currency       string
    // CommissionRate is used for HMOs that publish no commission_pct.
    CommissionRate float64
    // MaxSubProviders caps how many HMOs one quote request fans out to.
    MaxSubProviders int
    // MaxConcurrency limits concurrent plan requests.
    MaxConcurrency    int
    SubRequestTimeout time.Duration
    // DefaultValidDays applies when a plan omits valid_days.
    DefaultValidDays int
    // DiscoveryTimeout bounds the shared HMO list fetch.
    DiscoveryTimeout time.Duration
}

// Provider quotes health plans from every HMO listed on the marketplace.
// The HMO list is fetched once and kept for the life of the process.
type Provider struct {
    cfg      Config
    client   *httpx.Client
    resolver credentials.Resolver
    log      zerolog.Logger
    now      func() time.Time

    mu     sync.RWMutex
    hmos   []hmo
    loaded bool

    // coalesce concurrent discovery calls
    sf singleflight.Group
}

func New(cfg Config, hc *httpx.Client, resolver credentials.Resolver, log zerolog.Logger) *Provider {
    if cfg.Name == "" { cfg.Name = "hmomarket" }
    if cfg.BaseURL == "" { cfg.BaseURL = "https://api.hmomarket.ng" }
    if cfg.CredentialName == "" { cfg.CredentialName = "HMOMARKET_API_KEY" }
    if cfg.Currency == "" { cfg.Currency = "NGN" }
    if cfg.MaxSubProviders <= 0 { cfg.MaxSubProviders = 5 }
    if cfg.MaxConcurrency <= 0 { cfg.MaxConcurrency = 3 }
    if cfg.SubRequestTimeout <= 0 { cfg.SubRequestTimeout = 4 * time.Second }
    if cfg.DefaultValidDays <= 0 { cfg.DefaultValidDays = 14 }
    if cfg.DiscoveryTimeout <= 0 { cfg.DiscoveryTimeout = 10 * time.Second }
    cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
    return &Provider{cfg: cfg, client: hc, resolver: resolver, log: log, now: time.Now}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) token(ctx context.Context) (string, bool) {
    if p.resolver == nil { return "", false }
    return p.resolver.Resolve(ctx, p.cfg.CredentialName).Value()
}

// Discover returns one descriptor per listed HMO. It returns nil, nil when
// the marketplace key is not configured.
func (p *Provider) Discover(ctx context.Context) ([]provider.Descriptor, error) {
    key, ok := p.token(ctx)
    if !ok { return nil, nil }
    list, err := p.list(ctx, key)
    if err != nil { return nil, err }
    out := make([]provider.Descriptor, 0, len(list))
    for _, h := range list {
        out = append(out, provider.Descriptor{
            ID:             h.insurerID(),
            Name:           h.Name,
            BaseURL:        p.cfg.BaseURL + "/api/v2/hmos/" + url.PathEscape(h.ID),
            Active:         h.Active,
            CommissionRate: provider.EffectiveRate(h.CommissionPct/100, p.cfg.CommissionRate),
            ContactEmail:   h.SupportEmail,
            ContactPhone:   h.SupportPhone,
            DocsURL:        h.DocsURL,
            Kind:           provider.KindMarketplace,
            ParentID:       p.cfg.Name,
        })
    }
    return out, nil
}

func (p *Provider) list(ctx context.Context, key string) ([]hmo, error) {
    p.mu.RLock()
    if p.loaded {
        list := p.hmos
        p.mu.RUnlock()
        return list, nil
    }
    p.mu.RUnlock()

    // The shared fetch outlives any one caller's deadline; callers stop
    // waiting on their own ctx.
    ch := p.sf.DoChan("hmos", func() (any, error) {
        p.mu.RLock()
        if p.loaded {
            list := p.hmos
            p.mu.RUnlock()
            return list, nil
        }
        p.mu.RUnlock()
        fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.DiscoveryTimeout)
        defer cancel()
        list, err := p.fetchHMOs(fctx, key)
        if err != nil { return nil, err }
        p.mu.Lock()
        if !p.loaded {
            p.hmos = list
            p.loaded = true
        }
        list = p.hmos
        p.mu.Unlock()
        return list, nil
    })
    select {
    case <-ctx.Done():
        return nil, fmt.Errorf("hmomarket discovery: %w", ctx.Err())
    case r := <-ch:
        if r.Err != nil { return nil, fmt.Errorf("hmomarket discovery: %w", r.Err) }
        return r.Val.([]hmo), nil
    }
}

func (p *Provider) fetchHMOs(ctx context.Context, key string) ([]hmo, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/api/v2/hmos", http.NoBody)
    if err != nil { return nil, err }
    req.Header.Set("Accept", "application/json")
    httpx.SetBearer(req, key)
    resp, err := p.client.Do(ctx, req)
    if err != nil { return nil, err }
    defer resp.Body.Close()
    if err := httpx.CheckStatus(resp); err != nil { return nil, err }
    var body hmosResponse
    if err := json.NewDecoder(resp.Body).Decode(&body); err != nil { return nil, fmt.Errorf("decode: %w", err) }
    return body.HMOs, nil
}

// Quote fans out to at most MaxSubProviders eligible HMOs. A failing HMO is
// logged and skipped; the others still contribute.
func (p *Provider) Quote(ctx context.Context, req provider.QuoteRequest) ([]provider.Quote, error) {
    key, ok := p.token(ctx)
    if !ok { return nil, nil }
    list, err := p.list(ctx, key)
    if err != nil { return nil, err }

    category := string(req.CoverageType)
    targets := make([]hmo, 0, p.cfg.MaxSubProviders)
    for _, h := range list {
        if len(targets) == p.cfg.MaxSubProviders { break }
        if !h.Active || !h.offers(category) { continue }
        targets = append(targets, h)
    }
    if len(targets) == 0 { return []provider.Quote{}, nil }

    body, err := json.Marshal(toWire(req))
    if err != nil { return nil, fmt.Errorf("encode: %w", err) }

    results := make([][]provider.Quote, len(targets))
    var (
        errMu    sync.Mutex
        firstErr error
    )
    var g errgroup.Group
    g.SetLimit(p.cfg.MaxConcurrency)
    for i, h := range targets {
        g.Go(func() error {
            subCtx, cancel := context.WithTimeout(ctx, p.cfg.SubRequestTimeout)
            defer cancel()
            start := time.Now()
            quotes, err := p.quoteHMO(subCtx, key, h, body)
            if err != nil {
                p.log.Warn().Err(err).Str("adapter", p.cfg.Name).Str("insurer", h.insurerID()).
                    Dur("duration", time.Since(start)).Msg("hmo quote failed")
                errMu.Lock()
                if firstErr == nil { firstErr = err }
                errMu.Unlock()
                return nil
            }
            results[i] = quotes
            return nil
        })
    }
    _ = g.Wait()

    out := make([]provider.Quote, 0, len(targets)*2)
    for _, qs := range results { out = append(out, qs...) }
    if len(out) == 0 && firstErr != nil {
        return nil, firstErr
    }
    return out, nil
}

func (p *Provider) quoteHMO(ctx context.Context, key string, h hmo, body []byte) ([]provider.Quote, error) {
    u := fmt.Sprintf("%s/api/v2/hmos/%s/plans/quote", p.cfg.BaseURL, url.PathEscape(h.ID))
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
    if err != nil { return nil, err }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("Accept", "application/json")
    httpx.SetBearer(req, key)
    resp, err := p.client.Do(ctx, req)
    if err != nil { return nil, err }
    defer resp.Body.Close()
    if err := httpx.CheckStatus(resp); err != nil { return nil, err }

    var pr plansResponse
    if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil { return nil, fmt.Errorf("decode %s: %w", h.ID, err) }

    now := p.now().UTC()
    rate := provider.EffectiveRate(h.CommissionPct/100, p.cfg.CommissionRate)
    out := make([]provider.Quote, 0, len(pr.Plans))
    for _, plan := range pr.Plans {
        premium := int64(math.Round(plan.MonthlyPremium * 12))
        if premium <= 0 { continue }
        days := plan.ValidDays
        if days <= 0 { days = p.cfg.DefaultValidDays }
        coverage := plan.PlanName
        if plan.CoverLimit > 0 { coverage = fmt.Sprintf("%s (cover limit %d)", plan.PlanName, plan.CoverLimit) }
        q := provider.Quote{
            ID:             uuid.NewString(),
            InsurerID:      h.insurerID(),
            InsurerName:    h.Name,
            Premium:        premium,
            Currency:       p.cfg.Currency,
            Coverage:       coverage,
            CommissionRate: rate,
            ValidUntil:     now.AddDate(0, 0, days),
            Features:       append([]string(nil), plan.Benefits...),
            Terms:          plan.Exclusions,
            Status:         provider.StatusPending,
            APISource:      p.cfg.Name,
            ProviderRef:    h.ID + "/" + plan.PlanID,
        }
        q.Normalize()
        out = append(out, q)
    }
    return out, nil
}

type hmosResponse struct {
    HMOs []hmo `json:"hmos"`
}

type hmo struct {
    ID             string   `json:"id"`
    Name           string   `json:"name"`
    Slug           string   `json:"slug"`
    CommissionPct  float64  `json:"commission_pct"`
    SupportEmail   string   `json:"support_email"`
    SupportPhone   string   `json:"support_phone"`
    DocsURL        string   `json:"docs_url"`
    Active         bool     `json:"active"`
    PlanCategories []string `json:"plan_categories"`
}

func (h hmo) insurerID() string {
    if h.Slug != "" { return h.Slug }
    return h.ID
}

func (h hmo) offers(category string) bool {
    for _, c := range h.PlanCategories {
        if strings.EqualFold(strings.TrimSpace(c), category) { return true }
    }
    return false
}

type enrollee struct {
    FirstName string `json:"first_name"`
    LastName  string `json:"last_name"`
    Age       int    `json:"age"`
    Gender    string `json:"gender,omitempty"`
    Location  string `json:"location,omitempty"`
    Email     string `json:"email,omitempty"`
    Phone     string `json:"phone,omitempty"`
}

type planQuoteRequest struct {
    Enrollee      enrollee `json:"enrollee"`
    PlanCategory  string   `json:"plan_category"`
    CoverLimit    int64    `json:"cover_limit"`
    HouseholdSize int      `json:"household_size"`
    Conditions    []string `json:"conditions,omitempty"`
}

type plansResponse struct {
    Plans []plan `json:"plans"`
}

type plan struct {
    PlanID         string   `json:"plan_id"`
    PlanName       string   `json:"plan_name"`
    MonthlyPremium float64  `json:"monthly_premium"`
    Benefits       []string `json:"benefits"`
    Exclusions     string   `json:"exclusions"`
    CoverLimit     int64    `json:"cover_limit"`
    ValidDays      int      `json:"valid_days"`
}

func toWire(req provider.QuoteRequest) planQuoteRequest {
    first, last := splitName(req.FullName)
    household := req.FamilySize
    if household <= 0 { household = 1 }
    return planQuoteRequest{
        Enrollee: enrollee{
            FirstName: first,
            LastName:  last,
            Age:       req.Age,
            Gender:    gender(req.Gender),
            Location:  req.Region,
            Email:     req.Email,
            Phone:     req.Phone,
        },
        PlanCategory:  string(req.CoverageType),
        CoverLimit:    req.CoverageAmount,
        HouseholdSize: household,
        Conditions:    req.PreExistingConditions,
    }
}

func splitName(full string) (string, string) {
    parts := strings.Fields(full)
    switch len(parts) {
    case 0:
        return "", ""
    case 1:
        return parts[0], ""
    }
    return parts[0], strings.Join(parts[1:], " ")
}

func gender(g provider.Gender) string {
    switch g {
    case provider.GenderMale:
        return "M"
    case provider.GenderFemale:
        return "F"
    case provider.GenderOther:
        return "O"
    }
    return ""
}
