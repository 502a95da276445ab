// Package httpserver serves the run status: Prometheus metrics, sampler
// progress and a health check.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/logger"
)

// Server encapsulates the Echo instance of the status server.
type Server struct {
	Echo    *echo.Echo
	listen  string
	tracker *Tracker
	metrics http.Handler
	log     logger.Logger
	started time.Time
	errCh   chan error
}

// New builds a status server. metricsHandler may be nil, in which case
// /metrics is not registered.
func New(listen string, tracker *Tracker, metricsHandler http.Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	s := &Server{
		Echo:    echo.New(),
		listen:  listen,
		tracker: tracker,
		metrics: metricsHandler,
		log:     log.Module("httpserver"),
		errCh:   make(chan error, 1),
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Use(middleware.Recover())
	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	if s.metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
	s.Echo.GET("/healthz", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.GET("/progress", s.handleProgress)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime_s": time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleProgress(c echo.Context) error {
	if s.tracker == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no run is being tracked")
	}
	return c.JSON(http.StatusOK, s.tracker.Snapshot())
}

// Start binds the listen address and serves in the background. Bind errors
// are returned; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryNetwork).
			Component("httpserver").
			Context("listen", s.listen).
			Build()
	}
	s.Echo.Listener = ln
	s.started = time.Now()

	go func() {
		if err := s.Echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server stopped", logger.Error(err))
			s.errCh <- err
		}
		close(s.errCh)
	}()
	s.log.Info("status server started", logger.String("address", ln.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.Echo.Listener == nil {
		return ""
	}
	return s.Echo.Listener.Addr().String()
}

// Shutdown stops the server and waits for the serve goroutine to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.Echo.Listener == nil {
		return nil
	}
	if err := s.Echo.Shutdown(ctx); err != nil {
		return errors.New(err).
			Category(errors.CategoryNetwork).
			Component("httpserver").
			Build()
	}
	for range s.errCh {
	}
	return nil
}
