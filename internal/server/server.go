// Package server exposes the pipeline over HTTP with gin.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nlquery-agent/internal/common/config"
	"nlquery-agent/internal/common/logger"
)

// Service is a group of routes mounted under /api.
type Service interface {
	Register(app gin.IRouter)
}

// Register registers the services with the given router.
func Register(app gin.IRouter, services ...Service) {
	for _, service := range services {
		service.Register(app)
	}
}

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

type Server struct {
	engine *gin.Engine
	http   *http.Server
	checks map[string]Check
	logger logger.Logger
}

// New builds the engine: health and metrics at the root, services under /api.
func New(cfg config.ServerConfig, checks map[string]Check, log logger.Logger, services ...Service) *Server {
	log = log.WithFields(map[string]interface{}{"component": "http"})

	engine := gin.New()
	engine.Use(RequestIDMiddleware())
	engine.Use(LoggingMiddleware(log))
	if len(cfg.AllowedOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Content-Type", "User-Agent", "Referer", RequestIDHeader},
		}))
	}
	engine.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		checks: checks,
		logger: log,
	}

	engine.GET("/health", s.health)
	engine.GET("/ready", s.ready)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	Register(api, services...)

	s.http = &http.Server{
		Addr:         cfg.Address,
		Handler:      engine,
		ReadTimeout:  config.GetDuration(cfg.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.WriteTimeout),
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{"address": s.http.Addr})
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// ready pings every dependency; any failure makes the instance unready.
func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": results,
		"time":   time.Now().Format(time.RFC3339),
	})
}
