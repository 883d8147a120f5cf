// Package commission builds commission records for confirmed purchases and
// summarizes them over reporting periods.
package commission

import (
    "errors"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"

    "quoteengine/internal/provider"
)

var ErrUnknownTimeframe = errors.New("unknown timeframe")

type Status string

const (
    StatusPending Status = "pending"
    StatusPaid    Status = "paid"
    StatusOverdue Status = "overdue"
)

// Commission is created once per confirmed purchase. Status only moves
// through external settlement.
type Commission struct {
    ID           string     `json:"id"`
    QuoteID      string     `json:"quote_id"`
    ProviderID   string     `json:"provider_id"`
    Amount       int64      `json:"amount"`
    Rate         float64    `json:"rate"`
    Currency     string     `json:"currency,omitempty"`
    Status       Status     `json:"status"`
    DateEarned   time.Time  `json:"date_earned"`
    DatePaid     *time.Time `json:"date_paid,omitempty"`
    PolicyNumber *string    `json:"policy_number,omitempty"`
    Source       string     `json:"source"`
}

type Tracker struct {
    now func() time.Time
}

func NewTracker(now func() time.Time) *Tracker {
    if now == nil { now = time.Now }
    return &Tracker{now: now}
}

// Track copies the quote's commission terms into a new pending record.
func (t *Tracker) Track(q provider.Quote, policyNumber string) Commission {
    c := Commission{
        ID:         uuid.NewString(),
        QuoteID:    q.ID,
        ProviderID: q.InsurerID,
        Amount:     q.Commission,
        Rate:       q.CommissionRate,
        Currency:   q.Currency,
        Status:     StatusPending,
        DateEarned: t.now().UTC(),
        Source:     q.APISource,
    }
    if pn := strings.TrimSpace(policyNumber); pn != "" {
        c.PolicyNumber = &pn
    }
    return c
}

type Timeframe string

const (
    Week    Timeframe = "week"
    Month   Timeframe = "month"
    Quarter Timeframe = "quarter"
    Year    Timeframe = "year"
    All     Timeframe = "all"
)

// Since returns the start of the period ending at now. All yields the zero time.
func (tf Timeframe) Since(now time.Time) (time.Time, error) {
    switch tf {
    case Week:
        return now.AddDate(0, 0, -7), nil
    case Month:
        return now.AddDate(0, -1, 0), nil
    case Quarter:
        return now.AddDate(0, -3, 0), nil
    case Year:
        return now.AddDate(-1, 0, 0), nil
    case All:
        return time.Time{}, nil
    }
    return time.Time{}, ErrUnknownTimeframe
}

type ProviderTotals struct {
    Count   int   `json:"count"`
    Earned  int64 `json:"earned"`
    Pending int64 `json:"pending"`
    Paid    int64 `json:"paid"`
    Overdue int64 `json:"overdue"`
}

type Summary struct {
    Timeframe    Timeframe                 `json:"timeframe"`
    From         time.Time                 `json:"from"`
    To           time.Time                 `json:"to"`
    Count        int                       `json:"count"`
    TotalEarned  int64                     `json:"total_earned"`
    TotalPending int64                     `json:"total_pending"`
    TotalPaid    int64                     `json:"total_paid"`
    TotalOverdue int64                     `json:"total_overdue"`
    ByProvider   map[string]ProviderTotals `json:"by_provider"`
}

// Summarize totals the records earned within the timeframe ending at now.
func Summarize(records []Commission, tf Timeframe, now time.Time) (Summary, error) {
    from, err := tf.Since(now)
    if err != nil { return Summary{}, err }
    s := Summary{Timeframe: tf, From: from, To: now, ByProvider: map[string]ProviderTotals{}}
    for _, c := range records {
        if c.DateEarned.Before(from) || c.DateEarned.After(now) { continue }
        pt := s.ByProvider[c.ProviderID]
        s.Count++
        pt.Count++
        s.TotalEarned += c.Amount
        pt.Earned += c.Amount
        switch c.Status {
        case StatusPaid:
            s.TotalPaid += c.Amount
            pt.Paid += c.Amount
        case StatusOverdue:
            s.TotalOverdue += c.Amount
            pt.Overdue += c.Amount
        default:
            s.TotalPending += c.Amount
            pt.Pending += c.Amount
        }
        s.ByProvider[c.ProviderID] = pt
    }
    return s, nil
}

// ProviderIDs returns the summary's provider ids in sorted order.
func (s Summary) ProviderIDs() []string {
    ids := make([]string, 0, len(s.ByProvider))
    for id := range s.ByProvider { ids = append(ids, id) }
    sort.Strings(ids)
    return ids
}
