package main

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/rs/zerolog"
    "github.com/spf13/cobra"

    "quoteengine/internal/app"
    "quoteengine/internal/config"
)

func main() {
    var cfgPath string
    root := &cobra.Command{
        Use:          "quoteengine",
        Short:        "Insurance quote aggregation and commission tracking",
        SilenceUsage: true,
    }
    root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
    root.AddCommand(serveCmd(&cfgPath), insurersCmd(&cfgPath))

    if err := root.Execute(); err != nil {
        os.Exit(1)
    }
}

func serveCmd(cfgPath *string) *cobra.Command {
    return &cobra.Command{
        Use:   "serve",
        Short: "Start the HTTP API",
        RunE: func(cmd *cobra.Command, args []string) error {
            return runServer(*cfgPath)
        },
    }
}

func insurersCmd(cfgPath *string) *cobra.Command {
    return &cobra.Command{
        Use:   "insurers",
        Short: "Print the active insurer descriptors as JSON",
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, err := config.Load(*cfgPath)
            if err != nil { return err }
            log := app.NewLogger(cfg.Log, os.Stderr)
            a, err := app.Build(cmd.Context(), cfg, log)
            if err != nil { return err }
            defer a.Close()

            enc := json.NewEncoder(cmd.OutOrStdout())
            enc.SetIndent("", "  ")
            return enc.Encode(a.Engine.GetActiveInsurers(cmd.Context()))
        },
    }
}

func runServer(cfgPath string) error {
    cfg, err := config.Load(cfgPath)
    if err != nil { return err }
    logger := app.NewLogger(cfg.Log, os.Stdout)

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    a, err := app.Build(ctx, cfg, logger)
    if err != nil {
        logger.Error().Err(err).Msg("failed to build engine")
        return err
    }
    defer a.Close()

    e := newEcho(cfg.Server, logger)
    h := &handlers{engine: a.Engine, timeout: time.Duration(cfg.Server.RequestTimeoutSec) * time.Second, log: logger}
    h.register(e)

    go func() {
        logger.Info().Str("port", cfg.Server.Port).Msg("server listening")
        if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Error().Err(err).Msg("server error")
            stop()
        }
    }()

    <-ctx.Done()
    logger.Info().Msg("shutting down server")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    return e.Shutdown(shutdownCtx)
}

func newEcho(cfg config.Server, logger zerolog.Logger) *echo.Echo {
    e := echo.New()
    e.HideBanner = true
    e.HidePort = true
    e.Server.ReadHeaderTimeout = 5 * time.Second
    e.Server.ReadTimeout = 15 * time.Second
    e.Server.WriteTimeout = 20 * time.Second
    e.Server.IdleTimeout = 60 * time.Second

    e.Use(echomw.Recover())
    e.Use(requestLogger(logger))
    e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
        AllowOrigins: cfg.CORSOrigins,
        AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
        AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
    }))
    e.Use(echomw.GzipWithConfig(echomw.GzipConfig{Level: 1}))
    e.Use(echomw.BodyLimit("1M"))

    e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
    e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
    return e
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)

            evt := logger.Info()
            if err != nil { evt = logger.Error().Err(err) }
            evt.Str("method", c.Request().Method).
                Str("path", c.Request().URL.Path).
                Int("status", c.Response().Status).
                Dur("duration", time.Since(start)).
                Msg("request")
            return err
        }
    }
}
