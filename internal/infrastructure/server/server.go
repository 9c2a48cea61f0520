package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rootserve/core/internal/infrastructure/config"
	"github.com/rootserve/core/internal/infrastructure/logger"
	"github.com/rootserve/core/internal/infrastructure/metrics"
)

// ReadinessChecker reports whether the content listener is accepting
type ReadinessChecker interface {
	Ready() bool
}

// AdminServer serves health, readiness and metrics endpoints on a
// separate address from the content listener.
type AdminServer struct {
	echo    *echo.Echo
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	ready   ReadinessChecker
}

// NewAdmin creates a new admin server instance
func NewAdmin(cfg *config.Config, m *metrics.Metrics, ready ReadinessChecker, appLogger *logger.Logger) *AdminServer {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.App.IsDevelopment()
	e.HTTPErrorHandler = customErrorHandler(appLogger)

	s := &AdminServer{
		echo:    e,
		config:  cfg,
		logger:  appLogger.WithComponent("admin"),
		metrics: m,
		ready:   ready,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler exposes the router, mainly for tests
func (s *AdminServer) Handler() http.Handler {
	return s.echo
}

func (s *AdminServer) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ready", s.readinessCheck)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
}

func (s *AdminServer) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"version": map[string]string{
			"app": s.config.App.Version,
		},
	})
}

func (s *AdminServer) readinessCheck(c echo.Context) error {
	if s.ready == nil || !s.ready.Ready() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "listener_not_accepting",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Start starts the admin server
func (s *AdminServer) Start(address string) error {
	s.logger.Infow("Starting admin server", "address", address)
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the admin server
func (s *AdminServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down admin server")
	return s.echo.Shutdown(ctx)
}

// customErrorHandler handles HTTP errors
func customErrorHandler(logger *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var (
			code = http.StatusInternalServerError
			msg  interface{}
		)

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			msg = map[string]interface{}{"message": he.Message}
			if he.Internal != nil {
				err = fmt.Errorf("%v, %v", err, he.Internal)
			}
		} else {
			msg = map[string]string{"message": http.StatusText(code)}
		}

		if code == http.StatusInternalServerError {
			logger.Errorw("Internal server error", "error", err, "path", c.Request().URL.Path)
		}

		if !c.Response().Committed {
			if c.Request().Method == http.MethodHead {
				err = c.NoContent(code)
			} else {
				err = c.JSON(code, msg)
			}
			if err != nil {
				logger.Errorw("Error sending response", "error", err)
			}
		}
	}
}
