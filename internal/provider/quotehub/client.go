package quotehub

import (
	"errors"
	"net/http"
)

// baseURL is the production endpoint of the QuoteHub API.
const baseURL = "https://api.quotehub.africa"

var (
	// ErrUnauthorized is returned when the API rejects the bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited is returned on HTTP 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrDeclined is returned when the insurer refuses a purchase.
	ErrDeclined = errors.New("declined")
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=quotehub_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// QuoteHubAPIClient is a client for the QuoteHub multi-insurer quoting API.
type QuoteHubAPIClient struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP httpClient.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// token is the bearer token sent with each request.
	token string
}

// QuoteHubAPIClientOption is a configuration option for the QuoteHub API client.
type QuoteHubAPIClientOption func(*QuoteHubAPIClient)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) QuoteHubAPIClientOption {
	return func(c *QuoteHubAPIClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) QuoteHubAPIClientOption {
	return func(c *QuoteHubAPIClient) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) QuoteHubAPIClientOption {
	return func(c *QuoteHubAPIClient) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithBearerToken overrides the bearer token, typically per call once the
// key has been resolved.
func WithBearerToken(token string) QuoteHubAPIClientOption {
	return func(c *QuoteHubAPIClient) {
		c.token = token
	}
}

// NewQuoteHubAPIClient creates a new QuoteHub API client.
func NewQuoteHubAPIClient(token string, options ...QuoteHubAPIClientOption) (*QuoteHubAPIClient, error) {
	var client = &QuoteHubAPIClient{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		token:      token,
	}
	for _, option := range options {
		option(client)
	}
	if client.baseURL == "" {
		return nil, errors.New("quotehub: empty base url")
	}
	return client, nil
}

// with returns a copy of the client with per-call options applied.
func (c *QuoteHubAPIClient) with(opts []QuoteHubAPIClientOption) *QuoteHubAPIClient {
	var override = &QuoteHubAPIClient{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		header:     c.header.Clone(),
		token:      c.token,
	}
	for _, opt := range opts {
		opt(override)
	}
	return override
}

func (c *QuoteHubAPIClient) newHeader() http.Header {
	h := c.header.Clone()
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	if c.token != "" {
		// https://docs.quotehub.africa/authentication
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}
