package purchase

import (
    "context"
    "errors"
    "fmt"
    "math"
    "strings"
    "time"

    "github.com/rs/zerolog"

    "quoteengine/internal/commission"
    "quoteengine/internal/metrics"
    "quoteengine/internal/provider"
)

var (
    ErrDirectPurchaseUnsupported = errors.New("direct purchase is not supported for this provider")
    ErrInvalidPurchase           = errors.New("invalid purchase")
)

// Reason classifies a failed purchase.
type Reason string

const (
    ReasonUnsupported Reason = "unsupported"
    ReasonInvalid     Reason = "invalid"
    ReasonDeclined    Reason = "declined"
    ReasonFailed      Reason = "failed"
)

type Result struct {
    Success      bool                   `json:"success"`
    PolicyNumber string                 `json:"policy_number,omitempty"`
    PolicyStatus string                 `json:"policy_status,omitempty"`
    Quote        provider.Quote         `json:"quote"`
    Commission   *commission.Commission `json:"commission,omitempty"`
    Reason       Reason                 `json:"reason,omitempty"`
    Error        string                 `json:"error,omitempty"`
    // Warning reports a problem after the provider confirmed the purchase.
    Warning string `json:"warning,omitempty"`
}

type Tracker interface {
    Track(q provider.Quote, policyNumber string) commission.Commission
}

// Recorder receives the commission of every confirmed purchase.
type Recorder interface {
    Record(ctx context.Context, c commission.Commission) error
}

type Orchestrator struct {
    purchasers map[string]provider.Purchaser
    tracker    Tracker
    recorder   Recorder
    log        zerolog.Logger
    now        func() time.Time
}

// New registers purchasers under their Name, which must match the
// APISource of the quotes they can finalize. recorder may be nil.
func New(purchasers []provider.Purchaser, tracker Tracker, recorder Recorder, log zerolog.Logger) *Orchestrator {
    m := make(map[string]provider.Purchaser, len(purchasers))
    for _, p := range purchasers {
        if p != nil { m[p.Name()] = p }
    }
    return &Orchestrator{purchasers: m, tracker: tracker, recorder: recorder, log: log, now: time.Now}
}

// Supports reports whether quotes from source can be bought directly.
func (o *Orchestrator) Supports(source string) bool {
    _, ok := o.purchasers[source]
    return ok
}

func (o *Orchestrator) Purchase(ctx context.Context, quoteID string, q provider.Quote, pd provider.PaymentDetails) Result {
    res := o.purchase(ctx, quoteID, q, pd)
    outcome := "success"
    if !res.Success { outcome = string(res.Reason) }
    metrics.Purchases.WithLabelValues(q.APISource, outcome).Inc()
    return res
}

func (o *Orchestrator) purchase(ctx context.Context, quoteID string, q provider.Quote, pd provider.PaymentDetails) Result {
    p, ok := o.purchasers[q.APISource]
    if !ok {
        return fail(q, ReasonUnsupported, fmt.Errorf("%w: %q", ErrDirectPurchaseUnsupported, q.APISource))
    }
    if err := o.validate(quoteID, q, pd); err != nil {
        return fail(q, ReasonInvalid, err)
    }

    log := o.log.With().Str("adapter", p.Name()).Str("quote_id", q.ID).Str("insurer", q.InsurerID).Logger()
    start := time.Now()
    receipt, err := p.Purchase(ctx, q, pd)
    if err != nil {
        if errors.Is(err, provider.ErrPurchaseDeclined) {
            declined := q
            _ = declined.Transition(provider.StatusDeclined)
            log.Info().Err(err).Dur("duration", time.Since(start)).Msg("purchase declined")
            return fail(declined, ReasonDeclined, err)
        }
        log.Warn().Err(err).Dur("duration", time.Since(start)).Msg("purchase failed")
        return fail(q, ReasonFailed, err)
    }

    approved := q
    if err := approved.Transition(provider.StatusApproved); err != nil {
        return fail(q, ReasonInvalid, err)
    }
    approved.Normalize()
    c := o.tracker.Track(approved, receipt.PolicyNumber)
    if c.Amount > 0 { metrics.CommissionEarned.WithLabelValues(c.ProviderID, c.Currency).Add(float64(c.Amount)) }
    res := Result{
        Success:      true,
        PolicyNumber: receipt.PolicyNumber,
        PolicyStatus: receipt.PolicyStatus,
        Quote:        approved,
        Commission:   &c,
    }
    if o.recorder != nil {
        if err := o.recorder.Record(ctx, c); err != nil {
            log.Error().Err(err).Str("commission_id", c.ID).Msg("commission not recorded")
            res.Warning = "commission not recorded: " + err.Error()
        }
    }
    log.Info().Str("policy_number", receipt.PolicyNumber).Int64("commission", c.Amount).Dur("duration", time.Since(start)).Msg("purchase confirmed")
    return res
}

func (o *Orchestrator) validate(quoteID string, q provider.Quote, pd provider.PaymentDetails) error {
    switch {
    case strings.TrimSpace(quoteID) == "" || quoteID != q.ID:
        return fmt.Errorf("%w: quote id %q does not match quote %q", ErrInvalidPurchase, quoteID, q.ID)
    case q.Status != provider.StatusPending:
        return fmt.Errorf("%w: quote is %s", ErrInvalidPurchase, q.Status)
    case q.Premium <= 0:
        return fmt.Errorf("%w: premium %d must be positive", ErrInvalidPurchase, q.Premium)
    case math.IsNaN(q.CommissionRate) || q.CommissionRate < 0 || q.CommissionRate > 1:
        return fmt.Errorf("%w: commission rate %v outside [0,1]", ErrInvalidPurchase, q.CommissionRate)
    case q.Commission != provider.CommissionFor(q.Premium, q.CommissionRate):
        return fmt.Errorf("%w: commission %d does not match premium %d at rate %v", ErrInvalidPurchase, q.Commission, q.Premium, q.CommissionRate)
    case q.Expired(o.now()):
        return fmt.Errorf("%w: quote expired at %s", ErrInvalidPurchase, q.ValidUntil.Format(time.RFC3339))
    case pd.Amount != 0 && pd.Amount != q.Premium:
        return fmt.Errorf("%w: payment amount %d does not match premium %d", ErrInvalidPurchase, pd.Amount, q.Premium)
    case pd.Currency != "" && q.Currency != "" && !strings.EqualFold(pd.Currency, q.Currency):
        return fmt.Errorf("%w: payment currency %s does not match %s", ErrInvalidPurchase, pd.Currency, q.Currency)
    }
    return nil
}

func fail(q provider.Quote, reason Reason, err error) Result {
    return Result{Quote: q, Reason: reason, Error: err.Error()}
}
