package quotehub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Payment is the payment block of a purchase.
type Payment struct {
	Method    string `json:"method"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency,omitempty"`
}

// Policyholder is the contact block of a purchase.
type Policyholder struct {
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// PurchaseRequest is the body of POST /v1/quotes/{ref}/purchase.
type PurchaseRequest struct {
	Payment      Payment      `json:"payment"`
	Policyholder Policyholder `json:"policyholder"`
}

// Policy is the result of a confirmed purchase.
type Policy struct {
	PolicyNumber string `json:"policy_number"`
	PolicyStatus string `json:"policy_status"`
}

type purchaseResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    Policy `json:"data"`
}

// Purchase finalizes a quote. Insurer refusals wrap ErrDeclined.
func (c *QuoteHubAPIClient) Purchase(ctx context.Context, quoteRef string, in PurchaseRequest, opts ...QuoteHubAPIClientOption) (Policy, error) {
	override := c.with(opts)
	if strings.TrimSpace(quoteRef) == "" {
		return Policy{}, fmt.Errorf("empty quote reference")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return Policy{}, fmt.Errorf("encoding request: %w", err)
	}
	u := fmt.Sprintf("%s/v1/quotes/%s/purchase", override.baseURL, url.PathEscape(quoteRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return Policy{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.newHeader()

	res, err := override.httpClient.Do(req)
	if err != nil {
		return Policy{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusPaymentRequired, http.StatusConflict, http.StatusUnprocessableEntity:
		return Policy{}, fmt.Errorf("%w: %s", ErrDeclined, readMessage(res.Body))
	}
	if err := statusError(res, quoteRef); err != nil {
		return Policy{}, err
	}

	var out purchaseResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Policy{}, fmt.Errorf("decoding purchase response: %w", err)
	}
	if !strings.EqualFold(out.Status, "success") {
		return Policy{}, fmt.Errorf("%w: %s", ErrDeclined, out.Message)
	}
	if out.Data.PolicyNumber == "" {
		return Policy{}, fmt.Errorf("%w: no policy number issued", ErrDeclined)
	}
	return out.Data, nil
}
