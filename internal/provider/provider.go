package provider

import (
    "context"
    "crypto/sha256"
    "encoding/hex"
    "errors"
    "fmt"
    "math"
    "strconv"
    "strings"
    "time"
)

var (
    ErrInvalidRequest    = errors.New("invalid quote request")
    ErrInvalidTransition = errors.New("invalid quote status transition")
)

// MockSource tags quotes produced by the fallback generator. They carry no
// real insurer backing.
const MockSource = "mock"

type CoverageType string

const (
    CoverageHealth   CoverageType = "health"
    CoverageLife     CoverageType = "life"
    CoverageAuto     CoverageType = "auto"
    CoverageTravel   CoverageType = "travel"
    CoverageProperty CoverageType = "property"
)

func (c CoverageType) Valid() bool {
    switch c {
    case CoverageHealth, CoverageLife, CoverageAuto, CoverageTravel, CoverageProperty:
        return true
    }
    return false
}

type Gender string

const (
    GenderMale   Gender = "male"
    GenderFemale Gender = "female"
    GenderOther  Gender = "other"
)

// QuoteRequest is built once per quoting session and never mutated.
type QuoteRequest struct {
    FullName              string       `json:"full_name"`
    Email                 string       `json:"email"`
    Phone                 string       `json:"phone"`
    Age                   int          `json:"age"`
    Gender                Gender       `json:"gender"`
    Region                string       `json:"region"`
    CoverageType          CoverageType `json:"coverage_type"`
    CoverageAmount        int64        `json:"coverage_amount"`
    FamilySize            int          `json:"family_size,omitempty"`
    PreExistingConditions []string     `json:"pre_existing_conditions,omitempty"`
}

func (r QuoteRequest) Validate() error {
    if strings.TrimSpace(r.FullName) == "" {
        return fmt.Errorf("%w: full_name is required", ErrInvalidRequest)
    }
    if r.Age <= 0 || r.Age > 120 {
        return fmt.Errorf("%w: age %d out of range", ErrInvalidRequest, r.Age)
    }
    if !r.CoverageType.Valid() {
        return fmt.Errorf("%w: unknown coverage_type %q", ErrInvalidRequest, r.CoverageType)
    }
    if r.CoverageAmount <= 0 {
        return fmt.Errorf("%w: coverage_amount must be positive", ErrInvalidRequest)
    }
    if r.FamilySize < 0 {
        return fmt.Errorf("%w: family_size must not be negative", ErrInvalidRequest)
    }
    return nil
}

// Fingerprint is a stable digest of the normalized request.
func (r QuoteRequest) Fingerprint() string {
    h := sha256.New()
    parts := []string{
        strings.ToLower(strings.TrimSpace(r.FullName)),
        strings.ToLower(strings.TrimSpace(r.Email)),
        strings.TrimSpace(r.Phone),
        strconv.Itoa(r.Age),
        string(r.Gender),
        strings.ToLower(strings.TrimSpace(r.Region)),
        string(r.CoverageType),
        strconv.FormatInt(r.CoverageAmount, 10),
        strconv.Itoa(r.FamilySize),
    }
    for _, c := range r.PreExistingConditions {
        parts = append(parts, strings.ToLower(strings.TrimSpace(c)))
    }
    h.Write([]byte(strings.Join(parts, "\x1f")))
    return hex.EncodeToString(h.Sum(nil))
}

type QuoteStatus string

const (
    StatusPending  QuoteStatus = "pending"
    StatusApproved QuoteStatus = "approved"
    StatusDeclined QuoteStatus = "declined"
)

// Quote is the normalized shape returned by all adapters.
// Premium and Commission are whole currency units.
type Quote struct {
    ID             string      `json:"id"`
    InsurerID      string      `json:"insurer_id"`
    InsurerName    string      `json:"insurer_name"`
    Premium        int64       `json:"premium"`
    Currency       string      `json:"currency"`
    Coverage       string      `json:"coverage"`
    Commission     int64       `json:"commission"`
    CommissionRate float64     `json:"commission_rate"`
    ValidUntil     time.Time   `json:"valid_until"`
    Features       []string    `json:"features"`
    Terms          string      `json:"terms"`
    Status         QuoteStatus `json:"status"`
    APISource      string      `json:"api_source"`
    ProviderRef    string      `json:"provider_ref,omitempty"`
}

func (q Quote) IsMock() bool { return q.APISource == MockSource }

func (q Quote) Expired(now time.Time) bool {
    return !q.ValidUntil.IsZero() && now.After(q.ValidUntil)
}

// Transition moves a pending quote to approved or declined.
func (q *Quote) Transition(to QuoteStatus) error {
    if q.Status != StatusPending || (to != StatusApproved && to != StatusDeclined) {
        return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, q.Status, to)
    }
    q.Status = to
    return nil
}

// CommissionFor returns round(premium * rate).
func CommissionFor(premium int64, rate float64) int64 {
    return int64(math.Round(float64(premium) * rate))
}

// EffectiveRate prefers a provider-supplied rate when it is usable.
func EffectiveRate(supplied, descriptor float64) float64 {
    if supplied > 0 && supplied <= 1 {
        return supplied
    }
    return descriptor
}

// Normalize recomputes the commission from premium and rate.
func (q *Quote) Normalize() {
    q.Commission = CommissionFor(q.Premium, q.CommissionRate)
    if q.Status == "" { q.Status = StatusPending }
}

type SourceKind string

const (
    KindAggregator  SourceKind = "aggregator"
    KindMarketplace SourceKind = "marketplace"
    KindMock        SourceKind = "mock"
)

// Descriptor describes one external quoting source, or a sub-provider
// surfaced by a marketplace.
type Descriptor struct {
    ID             string     `json:"id"`
    Name           string     `json:"name"`
    BaseURL        string     `json:"base_url"`
    Active         bool       `json:"active"`
    CommissionRate float64    `json:"commission_rate"`
    ContactEmail   string     `json:"contact_email,omitempty"`
    ContactPhone   string     `json:"contact_phone,omitempty"`
    DocsURL        string     `json:"docs_url,omitempty"`
    Kind           SourceKind `json:"kind"`
    ParentID       string     `json:"parent_id,omitempty"`
}

// PaymentDetails carries the payment and policyholder data a purchase submits.
type PaymentDetails struct {
    Method      string `json:"method"`
    Reference   string `json:"reference"`
    Amount      int64  `json:"amount,omitempty"`
    Currency    string `json:"currency,omitempty"`
    HolderName  string `json:"holder_name,omitempty"`
    HolderEmail string `json:"holder_email,omitempty"`
    HolderPhone string `json:"holder_phone,omitempty"`
}

type PurchaseReceipt struct {
    PolicyNumber string `json:"policy_number"`
    PolicyStatus string `json:"policy_status,omitempty"`
}

// Adapter translates a QuoteRequest into one provider's wire format and back.
// A nil slice with a nil error means the provider is not configured.
type Adapter interface {
    Name() string
    Quote(ctx context.Context, req QuoteRequest) ([]Quote, error)
}

// Purchaser is implemented by adapters whose provider supports direct purchase.
// Rejections by the provider must wrap ErrPurchaseDeclined.
type Purchaser interface {
    Name() string
    Purchase(ctx context.Context, q Quote, pd PaymentDetails) (PurchaseReceipt, error)
}

var ErrPurchaseDeclined = errors.New("purchase declined by provider")

// Discoverer is implemented by marketplace adapters.
type Discoverer interface {
    Discover(ctx context.Context) ([]Descriptor, error)
}
