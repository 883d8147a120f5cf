package quotehub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Customer is the applicant block of a quote request.
type Customer struct {
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Age      int    `json:"age"`
	Sex      string `json:"sex,omitempty"`
	State    string `json:"state,omitempty"`
}

// QuoteRequest is the body of POST /v1/quotes.
type QuoteRequest struct {
	Customer          Customer `json:"customer"`
	ProductType       string   `json:"product_type"`
	SumInsured        int64    `json:"sum_insured"`
	Dependants        int      `json:"dependants,omitempty"`
	MedicalConditions []string `json:"medical_conditions,omitempty"`
}

// Insurer identifies the underwriter behind a quote.
type Insurer struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Quote is one offer returned by the API.
type Quote struct {
	QuoteRef       string     `json:"quote_ref"`
	Insurer        Insurer    `json:"insurer"`
	AnnualPremium  float64    `json:"annual_premium"`
	CoverSummary   string     `json:"cover_summary"`
	CommissionRate *float64   `json:"commission_rate,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Benefits       []string   `json:"benefits"`
	Terms          string     `json:"terms"`
}

type quotesResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Data    []Quote `json:"data"`
}

// GetQuotes requests quotes from every insurer QuoteHub integrates with.
func (c *QuoteHubAPIClient) GetQuotes(ctx context.Context, in QuoteRequest, opts ...QuoteHubAPIClientOption) ([]Quote, error) {
	override := c.with(opts)

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, override.baseURL+"/v1/quotes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.newHeader()

	res, err := override.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if err := statusError(res, in.ProductType); err != nil {
		return nil, err
	}

	var out quotesResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding quotes response: %w", err)
	}
	if !strings.EqualFold(out.Status, "success") {
		return nil, fmt.Errorf("quotehub error: %s", out.Message)
	}
	if out.Data == nil {
		return []Quote{}, nil
	}
	return out.Data, nil
}

func statusError(res *http.Response, subject string) error {
	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil

	case http.StatusBadRequest:
		return fmt.Errorf("bad request for %s: %s", subject, readMessage(res.Body))

	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized

	case http.StatusTooManyRequests:
		return ErrRateLimited

	default:
		return fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}
}

func readMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 2<<10))
	var msg struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &msg) == nil && msg.Message != "" {
		return msg.Message
	}
	return strings.TrimSpace(string(b))
}
