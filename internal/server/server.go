package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/choir/config"
	"github.com/mohammad-safakhou/choir/internal/auth"
	"github.com/mohammad-safakhou/choir/internal/capability"
	"github.com/mohammad-safakhou/choir/internal/choir"
	"github.com/mohammad-safakhou/choir/internal/conversation"
	"github.com/mohammad-safakhou/choir/internal/dispatch"
	"github.com/mohammad-safakhou/choir/internal/logging"
	"github.com/mohammad-safakhou/choir/internal/telemetry"
	"github.com/mohammad-safakhou/choir/provider"
	"github.com/mohammad-safakhou/choir/tools/weather"
	"github.com/mohammad-safakhou/choir/tools/web_fetch"
	"github.com/mohammad-safakhou/choir/tools/web_fetch/cache"
	"github.com/mohammad-safakhou/choir/tools/web_search"
	"github.com/sirupsen/logrus"
)

// Deps is everything the HTTP layer needs. Provider must already be gated.
type Deps struct {
	Gate          *auth.Gate
	Choir         *choir.Service
	Chat          *conversation.Loop
	Registry      *capability.Registry
	Provider      provider.Provider
	HealthModel   string
	HealthTimeout time.Duration
	Metrics       *telemetry.Metrics
	Logger        logging.Logger
}

// NewEcho builds the router with every route registered.
func NewEcho(d Deps) *echo.Echo {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Gate == nil {
		d.Gate = auth.NewGate(config.AuthConfig{})
	}
	log := logging.Component(d.Logger, "http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"request_id": v.RequestID,
			}).Info("request")
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	// Every error leaves as an envelope.
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := msgInternal
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		entry := log.WithFields(logrus.Fields{"status": code, "method": req.Method, "path": req.URL.Path})
		if code >= http.StatusInternalServerError {
			entry.WithError(err).Error("request failed")
		} else {
			entry.Debug(msg)
		}
		if c.Response().Committed {
			return
		}
		if req.Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, Failure(msg))
	}

	health := &HealthHandler{Provider: d.Provider, Model: d.HealthModel, Timeout: d.HealthTimeout, Logger: log}
	health.Register(e, d.Gate.Require(auth.Ring2))

	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	if d.Choir != nil {
		(&ChoirHandler{Service: d.Choir, Logger: log}).Register(e.Group("/choir"))
	}
	if d.Chat != nil {
		(&ChatHandler{Loop: d.Chat, Logger: log}).Register(e.Group("/chat"), d.Gate.Require(auth.Ring1))
	}
	if d.Registry != nil {
		(&FunctionsHandler{Registry: d.Registry}).Register(e.Group("/functions"), d.Gate.Require(auth.Ring2))
	}
	return e
}

// Build wires the full dependency graph from configuration.
func Build(ctx context.Context, cfg *config.Config, logger logging.Logger) (Deps, func(), error) {
	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.NewMetrics()
	}

	base, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return Deps{}, nil, fmt.Errorf("provider: %w", err)
	}
	gated := provider.WithGate(base, dispatch.New(cfg.Dispatch.Capacity, metrics), metrics)

	registry, cleanup, err := BuildRegistry(ctx, cfg, logger, metrics)
	if err != nil {
		return Deps{}, nil, err
	}

	svc := choir.New(gated, registry, choir.Options{Models: choir.StageModels{
		Planning:   cfg.LLM.ModelFor(choir.StagePlanning),
		Agents:     cfg.LLM.ModelFor(choir.StageAgents),
		Assessment: cfg.LLM.ModelFor(choir.StageAssessment),
		Synthesis:  cfg.LLM.ModelFor(choir.StageSynthesis),
	}}, logger, metrics)

	loop := conversation.New(gated, registry, conversation.Options{
		SystemPrompt: cfg.Conversation.SystemPrompt,
		Model:        cfg.LLM.ModelFor(conversation.Stage),
		MaxRounds:    cfg.Conversation.MaxRounds,
	}, logger)

	return Deps{
		Gate:          auth.NewGate(cfg.Auth),
		Choir:         svc,
		Chat:          loop,
		Registry:      registry,
		Provider:      gated,
		HealthModel:   cfg.LLM.Model,
		HealthTimeout: cfg.LLM.Timeout,
		Metrics:       metrics,
		Logger:        logger,
	}, cleanup, nil
}

// BuildRegistry registers the built-in functions. The returned cleanup
// closes the page cache connection, if any.
func BuildRegistry(ctx context.Context, cfg *config.Config, logger logging.Logger, metrics *telemetry.Metrics) (*capability.Registry, func(), error) {
	fetcher, err := web_fetch.NewWebFetcher(cfg.Tools.Fetch)
	if err != nil {
		return nil, nil, fmt.Errorf("web fetcher: %w", err)
	}

	cleanup := func() {}
	var pages web_fetch.PageCache
	if r := cfg.Cache.Redis; r.Enabled() {
		client := cache.NewRedisClient(r.Addr(), r.Password, r.DB)
		store := cache.NewStore(client, cfg.Tools.Fetch.CacheTTL)
		pingCtx, cancel := context.WithTimeout(ctx, r.Timeout)
		err := store.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = client.Close()
			logger.WithError(err).WithField("addr", r.Addr()).Warn("page cache unavailable, fetching uncached")
		} else {
			pages = store
			cleanup = func() { _ = client.Close() }
		}
	}

	fns := []capability.Function{
		web_fetch.NewTool(fetcher, pages, logging.Component(logger, web_fetch.Name)),
		weather.NewTool(cfg.Tools.Weather),
	}
	if cfg.Tools.Search.Enabled() {
		searcher, err := web_search.NewWebSearcher(cfg.Tools.Search)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("web searcher: %w", err)
		}
		fns = append(fns, web_search.NewTool(searcher, cfg.Tools.Search.MaxResults))
	}

	registry, err := capability.NewRegistry(metrics, fns...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return registry, cleanup, nil
}

// Run serves the API until SIGINT/SIGTERM.
func Run(cfg *config.Config, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	e := NewEcho(deps)
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.General.Listen).Info("listening")
		if err := e.Start(cfg.General.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
