// Package diagnostics поднимает локальный HTTP сервер с метриками и состоянием сессии
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/FlowrPro/Essence.io-frontend/internal/logging"
	"github.com/FlowrPro/Essence.io-frontend/internal/middleware"
)

// StatsProvider источник состояния сессии для /debug/session
type StatsProvider interface {
	Report() any
}

// StatsFunc адаптер функции к StatsProvider
type StatsFunc func() any

// Report вызывает функцию
func (f StatsFunc) Report() any { return f() }

// Config параметры сервера диагностики
type Config struct {
	ListenAddr string
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Server диагностический HTTP сервер
type Server struct {
	router   *gin.Engine
	logger   *logging.Logger
	stats    StatsProvider
	sampler  *processSampler
	addr     string
	httpSrv  *http.Server
	listener net.Listener
	mu       sync.Mutex
}

// NewServer собирает маршруты. stats может быть nil до появления сессии.
func NewServer(cfg Config, stats StatsProvider, logger *logging.Logger) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:9090"
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewRequestLogger(logger).Handler())

	promMw := middleware.NewPrometheusMiddlewareWith("essence_diag", cfg.Registerer, cfg.Gatherer)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	s := &Server{
		router:  router,
		logger:  logger,
		stats:   stats,
		sampler: newProcessSampler(),
		addr:    cfg.ListenAddr,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	debug := s.router.Group("/debug")
	debug.GET("/session", s.handleSession)
	debug.GET("/process", s.handleProcess)
}

// Handler возвращает http.Handler с маршрутами (для тестов и встраивания)
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr возвращает фактический адрес после Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start открывает порт и обслуживает запросы в фоне
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpSrv != nil {
		return errors.New("diagnostics server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("diagnostics listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Diagnostics server stopped: %v", err)
		}
	}(s.httpSrv)

	s.logger.Info("Diagnostics server listening on %s", ln.Addr())
	return nil
}

// Shutdown останавливает сервер, дожидаясь активных запросов
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleSession(c *gin.Context) {
	if s.stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no active session"})
		return
	}
	c.JSON(http.StatusOK, s.stats.Report())
}

func (s *Server) handleProcess(c *gin.Context) {
	c.JSON(http.StatusOK, s.sampler.sample())
}
