package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"hemtjan.st/meter2car/config"
	"hemtjan.st/meter2car/control"
	"hemtjan.st/meter2car/metrics"
)

type HealthReporter interface {
	Health() control.Health
}

type Server struct {
	health  HealthReporter
	reg     *prometheus.Registry
	httpLog bool
}

func NewServer(cfg config.HTTPConfig, health HealthReporter, reg *prometheus.Registry) *http.Server {
	s := &Server{
		health:  health,
		reg:     reg,
		httpLog: cfg.Log,
	}

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/version", s.VersionHandler)
	if s.reg != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(s.reg)))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	h := s.health.Health()
	if !h.Healthy {
		return c.JSON(http.StatusServiceUnavailable, h)
	}
	return c.JSON(http.StatusOK, h)
}

func (s *Server) VersionHandler(c echo.Context) error {
	return c.String(http.StatusOK, fmt.Sprintf("meter2car %s", versioninfo.Short()))
}
