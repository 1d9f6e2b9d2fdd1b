package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/catalog"
	"github.com/Additional-Code/topup/internal/config"
	"github.com/Additional-Code/topup/internal/observability"
)

// Module exposes the HTTP server lifecycle to Fx.
var Module = fx.Module("http_server",
	fx.Provide(NewEcho),
	fx.Invoke(Run),
)

// Readiness reports whether the service can take orders.
type Readiness interface {
	Ready() bool
}

// Params groups the dependencies of NewEcho.
type Params struct {
	fx.In

	Config        config.Config
	Observability *observability.Manager `optional:"true"`
	Catalog       *catalog.Catalog       `optional:"true"`
	Logger        *zap.Logger
}

// NewEcho configures the Echo router with basic middleware.
func NewEcho(p Params) *echo.Echo {
	var ready Readiness
	if p.Catalog != nil {
		ready = p.Catalog
	}
	return newEcho(p.Config, p.Observability, ready, p.Logger)
}

func newEcho(cfg config.Config, obs *observability.Manager, ready Readiness, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	if obs != nil && obs.TracingEnabled() {
		e.Use(otelecho.Middleware(cfg.Observability.ServiceName))
	}

	e.GET("/health", func(c echo.Context) error {
		body := map[string]any{"status": "ok"}
		if ready != nil {
			body["catalog_ready"] = ready.Ready()
		}
		return c.JSON(http.StatusOK, body)
	})

	if obs != nil && obs.MetricsEnabled() && obs.MetricsHandler() != nil {
		e.GET(cfg.Observability.PrometheusPath, echo.WrapHandler(obs.MetricsHandler()))
	}

	if cfg.HTTP.StaticDir != "" {
		e.Static("/", cfg.HTTP.StaticDir)
		logger.Info("serving static assets", zap.String("dir", cfg.HTTP.StaticDir))
	}

	return e
}

// errorHandler renders router and middleware errors in the same envelope as
// handler responses.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		message := http.StatusText(status)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			} else {
				message = http.StatusText(status)
			}
		}
		if status >= http.StatusInternalServerError {
			logger.Error("http request failed", zap.Error(err), zap.String("path", c.Request().URL.Path))
		}
		if err := c.JSON(status, map[string]any{"success": false, "message": message}); err != nil {
			logger.Warn("write error response", zap.Error(err))
		}
	}
}

// Run starts the HTTP server and ties it to the Fx lifecycle.
func Run(lc fx.Lifecycle, cfg config.Config, e *echo.Echo, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	server := &http.Server{
		Addr:    addr,
		Handler: e,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting HTTP server", zap.String("addr", addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}
