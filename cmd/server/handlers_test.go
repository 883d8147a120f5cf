package main

import (
    "compress/gzip"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/require"

    "quoteengine/internal/aggregate"
    "quoteengine/internal/commission"
    "quoteengine/internal/config"
    "quoteengine/internal/provider"
    "quoteengine/internal/purchase"
)

type fakeEngine struct {
    round       aggregate.Round
    roundErr    error
    lastReq     provider.QuoteRequest
    hadDeadline bool

    result      purchase.Result
    lastQuoteID string

    insurers []provider.Descriptor

    summary       commission.Summary
    summaryErr    error
    lastTimeframe string
}

func (f *fakeEngine) QuoteRound(ctx context.Context, req provider.QuoteRequest) (aggregate.Round, error) {
    f.lastReq = req
    _, f.hadDeadline = ctx.Deadline()
    if err := req.Validate(); err != nil { return aggregate.Round{}, err }
    return f.round, f.roundErr
}

func (f *fakeEngine) PurchasePolicy(_ context.Context, quoteID string, _ provider.Quote, _ provider.PaymentDetails) purchase.Result {
    f.lastQuoteID = quoteID
    return f.result
}

func (f *fakeEngine) GetActiveInsurers(context.Context) []provider.Descriptor { return f.insurers }

func (f *fakeEngine) GetCommissionSummary(_ context.Context, timeframe string) (commission.Summary, error) {
    f.lastTimeframe = timeframe
    return f.summary, f.summaryErr
}

func newTestServer(f *fakeEngine) *echo.Echo {
    cfg := config.Default().Server
    e := newEcho(cfg, zerolog.Nop())
    (&handlers{engine: f, timeout: time.Second, log: zerolog.Nop()}).register(e)
    return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
    var r io.Reader
    if body != "" { r = strings.NewReader(body) }
    req := httptest.NewRequest(method, target, r)
    if body != "" { req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON) }
    rr := httptest.NewRecorder()
    e.ServeHTTP(rr, req)
    return rr
}

const validRequest = `{"full_name":"Ada Obi","age":45,"gender":"female","region":"Lagos","coverage_type":"health","coverage_amount":2000000}`

func TestPostQuotes(t *testing.T) {
    // Arrange
    f := &fakeEngine{round: aggregate.Round{
        Quotes: []provider.Quote{{ID: "q-1", InsurerID: "leadway", Premium: 10500, Commission: 1050, APISource: "quotehub"}},
        Stats:  aggregate.Stats{Adapters: 2, Succeeded: 1, Empty: 1},
    }}
    e := newTestServer(f)

    // Act
    rr := do(e, http.MethodPost, "/api/quotes", validRequest)

    // Assert
    require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
    var got aggregate.Round
    require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
    require.Len(t, got.Quotes, 1)
    require.Equal(t, int64(10500), got.Quotes[0].Premium)
    require.Equal(t, 2, got.Stats.Adapters)
    require.Equal(t, provider.CoverageHealth, f.lastReq.CoverageType)
    require.Equal(t, int64(2_000_000), f.lastReq.CoverageAmount)
    require.True(t, f.hadDeadline, "request timeout applied")
}

func TestPostQuotes_Errors(t *testing.T) {
    tests := []struct {
        name     string
        body     string
        roundErr error
        want     int
    }{
        {name: "malformed body", body: `{"age":`, want: http.StatusBadRequest},
        {name: "invalid request", body: `{"full_name":"","age":45,"coverage_type":"health","coverage_amount":1}`, want: http.StatusBadRequest},
        {name: "unknown coverage", body: `{"full_name":"A","age":45,"coverage_type":"pet","coverage_amount":1}`, want: http.StatusBadRequest},
        {name: "no quotes", body: validRequest, roundErr: aggregate.ErrNoQuotes, want: http.StatusBadGateway},
        {name: "unexpected", body: validRequest, roundErr: fmt.Errorf("boom"), want: http.StatusInternalServerError},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            e := newTestServer(&fakeEngine{roundErr: tt.roundErr})
            rr := do(e, http.MethodPost, "/api/quotes", tt.body)
            require.Equal(t, tt.want, rr.Code, rr.Body.String())

            var body errorResponse
            require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
            require.NotEmpty(t, body.Error)
        })
    }
}

func TestPostPurchase_StatusMapping(t *testing.T) {
    tests := []struct {
        result purchase.Result
        want   int
    }{
        {result: purchase.Result{Success: true, PolicyNumber: "POL-1"}, want: http.StatusOK},
        {result: purchase.Result{Reason: purchase.ReasonInvalid}, want: http.StatusBadRequest},
        {result: purchase.Result{Reason: purchase.ReasonUnsupported}, want: http.StatusUnprocessableEntity},
        {result: purchase.Result{Reason: purchase.ReasonDeclined}, want: http.StatusPaymentRequired},
        {result: purchase.Result{Reason: purchase.ReasonFailed}, want: http.StatusBadGateway},
    }
    for _, tt := range tests {
        t.Run(string(tt.result.Reason), func(t *testing.T) {
            f := &fakeEngine{result: tt.result}
            e := newTestServer(f)

            rr := do(e, http.MethodPost, "/api/purchases", `{"quote_id":"q-1","quote":{"id":"q-1","premium":100},"payment":{"method":"card","reference":"PAY-1"}}`)
            require.Equal(t, tt.want, rr.Code)
            require.Equal(t, "q-1", f.lastQuoteID)

            var got purchase.Result
            require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
            require.Equal(t, tt.result.Success, got.Success)
            require.Equal(t, tt.result.Reason, got.Reason)
        })
    }
}

func TestGetInsurers(t *testing.T) {
    e := newTestServer(&fakeEngine{})
    rr := do(e, http.MethodGet, "/api/insurers", "")
    require.Equal(t, http.StatusOK, rr.Code)
    require.JSONEq(t, `{"insurers":[]}`, rr.Body.String())

    e = newTestServer(&fakeEngine{insurers: []provider.Descriptor{{ID: "quotehub", Active: true, Kind: provider.KindAggregator}}})
    rr = do(e, http.MethodGet, "/api/insurers", "")
    var got insurersResponse
    require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
    require.Len(t, got.Insurers, 1)
    require.True(t, got.Insurers[0].Active)
}

func TestGetCommissionSummary(t *testing.T) {
    f := &fakeEngine{summary: commission.Summary{Timeframe: commission.Quarter, Count: 2, TotalEarned: 3000}}
    e := newTestServer(f)

    rr := do(e, http.MethodGet, "/api/commissions/summary?timeframe=quarter", "")
    require.Equal(t, http.StatusOK, rr.Code)
    require.Equal(t, "quarter", f.lastTimeframe)
    var got commission.Summary
    require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
    require.Equal(t, int64(3000), got.TotalEarned)

    f.summaryErr = fmt.Errorf("%w: %q", commission.ErrUnknownTimeframe, "decade")
    rr = do(e, http.MethodGet, "/api/commissions/summary?timeframe=decade", "")
    require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthzMetricsAndGzip(t *testing.T) {
    e := newTestServer(&fakeEngine{})

    rr := do(e, http.MethodGet, "/healthz", "")
    require.Equal(t, http.StatusOK, rr.Code)
    require.Equal(t, "ok", rr.Body.String())

    rr = do(e, http.MethodGet, "/metrics", "")
    require.Equal(t, http.StatusOK, rr.Code)
    require.Contains(t, rr.Body.String(), "go_goroutines")

    req := httptest.NewRequest(http.MethodGet, "/api/insurers", nil)
    req.Header.Set("Accept-Encoding", "gzip")
    rr = httptest.NewRecorder()
    e.ServeHTTP(rr, req)
    require.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))
    zr, err := gzip.NewReader(rr.Body)
    require.NoError(t, err)
    body, err := io.ReadAll(zr)
    require.NoError(t, err)
    require.JSONEq(t, `{"insurers":[]}`, string(body))
}

func TestBodyLimit(t *testing.T) {
    e := newTestServer(&fakeEngine{})
    big := `{"full_name":"` + strings.Repeat("a", 2<<20) + `"}`
    rr := do(e, http.MethodPost, "/api/quotes", big)
    require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
