package httpx

import (
    "context"
    "fmt"
    "io"
    "net"
    "net/http"
    "time"
)

const DefaultUserAgent = "quoteengine/1.0"

// Client is a small wrapper around http.Client shared by all adapters.
type Client struct {
    HTTP      *http.Client
    UserAgent string
    Headers   map[string]string
}

func New(timeout time.Duration) *Client {
    transport := &http.Transport{
        Proxy: http.ProxyFromEnvironment,
        DialContext: (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
        MaxIdleConns:          100,
        MaxIdleConnsPerHost:   20,
        MaxConnsPerHost:       50,
        ForceAttemptHTTP2:     true,
        IdleConnTimeout:       90 * time.Second,
        TLSHandshakeTimeout:   3 * time.Second,
        ExpectContinueTimeout: 1 * time.Second,
        ResponseHeaderTimeout: 5 * time.Second,
    }
    return &Client{HTTP: &http.Client{Timeout: timeout, Transport: transport}, UserAgent: DefaultUserAgent}
}

// Do sends req with the default headers applied. ctx replaces the request
// context when the request was built without one.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
    if ctx != nil && req.Context() == context.Background() {
        req = req.WithContext(ctx)
    }
    if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
        req.Header.Set("User-Agent", c.UserAgent)
    }
    for k, v := range c.Headers {
        if req.Header.Get(k) == "" {
            req.Header.Set(k, v)
        }
    }
    return c.HTTP.Do(req)
}

// SetBearer sets the Authorization header used by every upstream we talk to.
func SetBearer(req *http.Request, token string) {
    if token != "" { req.Header.Set("Authorization", "Bearer "+token) }
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
    Method string
    URL    string
    Code   int
    Body   string
}

func (e *StatusError) Error() string {
    return fmt.Sprintf("%s %s -> %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// CheckStatus returns a *StatusError carrying a short body excerpt for non-2xx responses.
func CheckStatus(resp *http.Response) error {
    if resp.StatusCode >= 200 && resp.StatusCode < 300 { return nil }
    b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
    e := &StatusError{Code: resp.StatusCode, Body: string(b)}
    if resp.Request != nil {
        e.Method = resp.Request.Method
        if resp.Request.URL != nil { e.URL = resp.Request.URL.String() }
    }
    return e
}
