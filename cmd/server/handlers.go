package main

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog"

    "quoteengine/internal/aggregate"
    "quoteengine/internal/commission"
    "quoteengine/internal/provider"
    "quoteengine/internal/purchase"
)

type quoteEngine interface {
    QuoteRound(ctx context.Context, req provider.QuoteRequest) (aggregate.Round, error)
    PurchasePolicy(ctx context.Context, quoteID string, q provider.Quote, pd provider.PaymentDetails) purchase.Result
    GetActiveInsurers(ctx context.Context) []provider.Descriptor
    GetCommissionSummary(ctx context.Context, timeframe string) (commission.Summary, error)
}

type handlers struct {
    engine  quoteEngine
    timeout time.Duration
    log     zerolog.Logger
}

type errorResponse struct {
    Error string `json:"error"`
}

type purchaseBody struct {
    QuoteID string                  `json:"quote_id"`
    Quote   provider.Quote          `json:"quote"`
    Payment provider.PaymentDetails `json:"payment"`
}

type insurersResponse struct {
    Insurers []provider.Descriptor `json:"insurers"`
}

func (h *handlers) register(e *echo.Echo) {
    api := e.Group("/api")
    api.POST("/quotes", h.postQuotes)
    api.POST("/purchases", h.postPurchase)
    api.GET("/insurers", h.getInsurers)
    api.GET("/commissions/summary", h.getCommissionSummary)
}

func (h *handlers) postQuotes(c echo.Context) error {
    var req provider.QuoteRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
    }
    ctx := c.Request().Context()
    if h.timeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, h.timeout)
        defer cancel()
    }

    round, err := h.engine.QuoteRound(ctx, req)
    switch {
    case errors.Is(err, provider.ErrInvalidRequest):
        return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
    case errors.Is(err, aggregate.ErrNoQuotes):
        return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
    case err != nil:
        h.log.Error().Err(err).Msg("quote round failed")
        return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
    }
    if round.Quotes == nil { round.Quotes = []provider.Quote{} }
    return c.JSON(http.StatusOK, round)
}

func (h *handlers) postPurchase(c echo.Context) error {
    var b purchaseBody
    if err := c.Bind(&b); err != nil {
        return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
    }
    res := h.engine.PurchasePolicy(c.Request().Context(), b.QuoteID, b.Quote, b.Payment)
    return c.JSON(purchaseStatus(res), res)
}

func purchaseStatus(res purchase.Result) int {
    if res.Success { return http.StatusOK }
    switch res.Reason {
    case purchase.ReasonInvalid:
        return http.StatusBadRequest
    case purchase.ReasonUnsupported:
        return http.StatusUnprocessableEntity
    case purchase.ReasonDeclined:
        return http.StatusPaymentRequired
    }
    return http.StatusBadGateway
}

func (h *handlers) getInsurers(c echo.Context) error {
    insurers := h.engine.GetActiveInsurers(c.Request().Context())
    if insurers == nil { insurers = []provider.Descriptor{} }
    return c.JSON(http.StatusOK, insurersResponse{Insurers: insurers})
}

func (h *handlers) getCommissionSummary(c echo.Context) error {
    sum, err := h.engine.GetCommissionSummary(c.Request().Context(), c.QueryParam("timeframe"))
    if errors.Is(err, commission.ErrUnknownTimeframe) {
        return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
    }
    if err != nil {
        h.log.Error().Err(err).Msg("commission summary failed")
        return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
    }
    return c.JSON(http.StatusOK, sum)
}
