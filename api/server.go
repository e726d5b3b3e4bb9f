// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package api exposes the sampler and the log store over HTTP.
//
// Routes:
//
//	GET  /health                  liveness
//	GET  /ready                   readiness (log store and mirror checks)
//	GET  /metrics                 Prometheus metrics
//	GET  /api/sampler             sampler status
//	POST /api/sampler/start       start the task, body {"interval_seconds": n}
//	POST /api/sampler/stop        stop the task
//	POST /api/sampler/tick        sample every device once, now
//	PUT  /api/sampler/interval    change the interval, body {"interval_seconds": n}
//	GET  /api/log/tail?n=10       most recent rows, oldest first
//	GET  /api/log/stats           aggregates over the whole log
//	POST /api/log/export          copy the log, body {"destination": path}
//	POST /api/log/clear           truncate the log to its header
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/soothill/battery-data-logger/pkg/interfaces"
	"github.com/soothill/battery-data-logger/pkg/logger"
)

const (
	readinessCheckTimeout = 2 * time.Second
	requestTimeout        = 30 * time.Second
	maxBodyBytes          = 1 << 16
)

// ReadinessCheck reports whether one dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Options configures a Server.
type Options struct {
	Sampler interfaces.Sampler
	Store   interfaces.LogStore

	// BaseContext is the parent of the sampling task started over HTTP.
	// Request contexts end with the request and cannot be used for it.
	BaseContext context.Context

	// DefaultInterval is used when a start request carries no interval
	DefaultInterval func() time.Duration

	// RateLimit and Burst bound requests per second across /api and
	// the health endpoints. Zero disables limiting.
	RateLimit float64
	Burst     int
}

// Server is the battery logger HTTP API.
type Server struct {
	opts    Options
	limiter *rate.Limiter

	mu     sync.RWMutex
	checks map[string]ReadinessCheck

	// stats scans the whole log; concurrent requests share one scan
	stats singleflight.Group
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	s := &Server{
		opts:   opts,
		checks: make(map[string]ReadinessCheck),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// AddReadinessCheck registers a named check consulted by /ready.
func (s *Server) AddReadinessCheck(name string, check ReadinessCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Route("/sampler", func(r chi.Router) {
				r.Get("/", s.handleSamplerStatus)
				r.Post("/start", s.handleSamplerStart)
				r.Post("/stop", s.handleSamplerStop)
				r.Post("/tick", s.handleSamplerTick)
				r.Put("/interval", s.handleSamplerInterval)
			})

			r.Route("/log", func(r chi.Router) {
				r.Get("/tail", s.handleLogTail)
				r.Get("/stats", s.handleLogStats)
				r.Post("/export", s.handleLogExport)
				r.Post("/clear", s.handleLogClear)
			})
		})
	})

	return r
}

// rateLimit rejects requests once the shared limiter is exhausted
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			logger.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rate limit exceeded")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log := logger.Component("api")
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessCheckTimeout)
	defer cancel()

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	failures := make(map[string]string)
	for _, name := range names {
		s.mu.RLock()
		check := s.checks[name]
		s.mu.RUnlock()
		if err := check(ctx); err != nil {
			logger.Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "not ready",
			"failures": failures,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
