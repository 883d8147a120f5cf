package quotehubadapter

import (
    "context"
    "errors"
    "fmt"
    "math"
    "strings"
    "time"

    "github.com/google/uuid"

    "quoteengine/internal/credentials"
    "quoteengine/internal/provider"
    "quoteengine/internal/provider/quotehub"
)

// Client is the subset of the QuoteHub API the adapter needs.
type Client interface {
    GetQuotes(ctx context.Context, in quotehub.QuoteRequest, opts ...quotehub.QuoteHubAPIClientOption) ([]quotehub.Quote, error)
    Purchase(ctx context.Context, quoteRef string, in quotehub.PurchaseRequest, opts ...quotehub.QuoteHubAPIClientOption) (quotehub.Policy, error)
}

type Config struct {
    Name           string        // apiSource tag, default: quotehub
    CredentialName string        // default: QUOTEHUB_API_KEY
    CommissionRate float64       // descriptor rate used when the API omits one
    Currency       string        // default: NGN
    Validity       time.Duration // used when expires_at is missing, default: 7 days
}

type Adapter struct {
    cfg      Config
    client   Client
    resolver credentials.Resolver
    now      func() time.Time
}

func New(cfg Config, client Client, resolver credentials.Resolver) *Adapter {
    if cfg.Name == "" { cfg.Name = "quotehub" }
    if cfg.CredentialName == "" { cfg.CredentialName = "QUOTEHUB_API_KEY" }
    if cfg.Currency == "" { cfg.Currency = "NGN" }
    if cfg.Validity <= 0 { cfg.Validity = 7 * 24 * time.Hour }
    return &Adapter{cfg: cfg, client: client, resolver: resolver, now: time.Now}
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) token(ctx context.Context) (string, bool) {
    if a.resolver == nil { return "", false }
    return a.resolver.Resolve(ctx, a.cfg.CredentialName).Value()
}

// Quote returns nil, nil without touching the network when no key is configured.
func (a *Adapter) Quote(ctx context.Context, req provider.QuoteRequest) ([]provider.Quote, error) {
    key, ok := a.token(ctx)
    if !ok { return nil, nil }

    items, err := a.client.GetQuotes(ctx, toWire(req), quotehub.WithBearerToken(key))
    if err != nil {
        return nil, fmt.Errorf("quotehub: %w", err)
    }

    now := a.now().UTC()
    out := make([]provider.Quote, 0, len(items))
    for _, it := range items {
        premium := int64(math.Round(it.AnnualPremium))
        if premium <= 0 { continue }
        var supplied float64
        if it.CommissionRate != nil { supplied = *it.CommissionRate }
        validUntil := now.Add(a.cfg.Validity)
        if it.ExpiresAt != nil && !it.ExpiresAt.IsZero() { validUntil = it.ExpiresAt.UTC() }

        q := provider.Quote{
            ID:             uuid.NewString(),
            InsurerID:      it.Insurer.Code,
            InsurerName:    it.Insurer.Name,
            Premium:        premium,
            Currency:       a.cfg.Currency,
            Coverage:       it.CoverSummary,
            CommissionRate: provider.EffectiveRate(supplied, a.cfg.CommissionRate),
            ValidUntil:     validUntil,
            Features:       append([]string(nil), it.Benefits...),
            Terms:          it.Terms,
            Status:         provider.StatusPending,
            APISource:      a.cfg.Name,
            ProviderRef:    it.QuoteRef,
        }
        if q.InsurerID == "" { q.InsurerID = a.cfg.Name }
        if q.InsurerName == "" { q.InsurerName = q.InsurerID }
        q.Normalize()
        out = append(out, q)
    }
    return out, nil
}

// Purchase confirms a quote previously returned by Quote.
func (a *Adapter) Purchase(ctx context.Context, q provider.Quote, pd provider.PaymentDetails) (provider.PurchaseReceipt, error) {
    key, ok := a.token(ctx)
    if !ok {
        return provider.PurchaseReceipt{}, fmt.Errorf("quotehub: %s not configured", credentials.Mask(a.cfg.CredentialName))
    }
    ref := q.ProviderRef
    if ref == "" { ref = q.ID }

    currency := pd.Currency
    if currency == "" { currency = q.Currency }
    amount := pd.Amount
    if amount == 0 { amount = q.Premium }

    policy, err := a.client.Purchase(ctx, ref, quotehub.PurchaseRequest{
        Payment: quotehub.Payment{
            Method:    pd.Method,
            Reference: pd.Reference,
            Amount:    amount,
            Currency:  currency,
        },
        Policyholder: quotehub.Policyholder{
            FullName: pd.HolderName,
            Email:    pd.HolderEmail,
            Phone:    pd.HolderPhone,
        },
    }, quotehub.WithBearerToken(key))
    if errors.Is(err, quotehub.ErrDeclined) {
        return provider.PurchaseReceipt{}, fmt.Errorf("%w: %v", provider.ErrPurchaseDeclined, err)
    }
    if err != nil {
        return provider.PurchaseReceipt{}, fmt.Errorf("quotehub purchase: %w", err)
    }
    return provider.PurchaseReceipt{PolicyNumber: policy.PolicyNumber, PolicyStatus: policy.PolicyStatus}, nil
}

func toWire(req provider.QuoteRequest) quotehub.QuoteRequest {
    return quotehub.QuoteRequest{
        Customer: quotehub.Customer{
            FullName: strings.TrimSpace(req.FullName),
            Email:    req.Email,
            Phone:    req.Phone,
            Age:      req.Age,
            Sex:      sex(req.Gender),
            State:    req.Region,
        },
        ProductType:       string(req.CoverageType),
        SumInsured:        req.CoverageAmount,
        Dependants:        req.FamilySize,
        MedicalConditions: req.PreExistingConditions,
    }
}

func sex(g provider.Gender) string {
    switch g {
    case provider.GenderMale:
        return "M"
    case provider.GenderFemale:
        return "F"
    case provider.GenderOther:
        return "X"
    }
    return ""
}
