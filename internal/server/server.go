// Package server exposes the colony engine over HTTP and JSON-RPC 2.0.
package server

import (
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/beecolony/abcopt/internal/config"
	"github.com/beecolony/abcopt/internal/logging"
)

// Logger defines the logging interface used by the server
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Server runs colony optimizations on behalf of HTTP and JSON-RPC clients.
// Every run owns its engine state; the server only shares the job registry
// and a bounded number of run slots.
type Server struct {
	cfg          *config.Config
	logger       Logger
	engineLogger *zap.Logger
	metrics      *Metrics

	jobs  *registry
	slots chan struct{}

	// mu orders job starts against Close.
	mu        sync.Mutex
	closed    bool
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// NewServer creates a new server instance and starts the job sweeper.
// Collectors are registered with reg.
func NewServer(cfg *config.Config, logger Logger, reg prometheus.Registerer) *Server {
	metrics := NewMetrics(reg)
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		engineLogger: logging.NewZapLogger(logger.WithFields(map[string]interface{}{"component": "abc"})),
		metrics:      metrics,
		jobs:         newRegistry(cfg.Colony.JobRetention, metrics),
		slots:        make(chan struct{}, cfg.Colony.MaxConcurrentRuns),
		done:         make(chan struct{}),
	}

	s.wg.Add(1)
	go s.sweepLoop(sweepInterval(cfg.Colony.JobRetention))
	return s
}

func sweepInterval(retention time.Duration) time.Duration {
	interval := retention / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

func (s *Server) sweepLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.jobs.sweep(); n > 0 {
				s.logger.Debug("Expired optimizations removed", map[string]interface{}{"count": n})
			}
		}
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/run", s.handleRun)
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
		r.Get("/datasets", s.handleDatasets)
		r.Get("/datasets/{name}", s.handleDataset)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Close cancels all running optimizations and waits for them to stop. Later
// optimization requests are refused.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.done)
		s.jobs.cancelAll()
		s.wg.Wait()
	})
	return nil
}
