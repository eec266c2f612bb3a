// Package api exposes the scan subsystem over HTTP: enqueueing, queue
// visibility, run reads, cooperative stop and a server-sent snapshot stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/sentryline/brandscan/internal/domain/scanning"
	"github.com/sentryline/brandscan/pkg/common/logger"
	"github.com/sentryline/brandscan/pkg/common/otel"
)

// Config carries everything the server needs. Queue, Runs and Detections are
// the application services the handlers delegate to.
type Config struct {
	Host  string
	Port  string
	Build string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log     *logger.Logger
	Tracer  trace.Tracer
	Metrics APIMetrics

	Queue      domain.ScanQueueService
	Runs       domain.ScanRunService
	Detections domain.DetectionRepository

	// Ready gates the readiness endpoint; main flips it once migrations,
	// stores and the event bus are up.
	Ready *atomic.Bool
}

type Server struct {
	cfg     Config
	logger  *logger.Logger
	router  *chi.Mux
	tracer  trace.Tracer
	metrics APIMetrics

	queue      domain.ScanQueueService
	runs       domain.ScanRunService
	detections domain.DetectionRepository
	ready      *atomic.Bool
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Log == nil || cfg.Tracer == nil || cfg.Metrics == nil {
		return nil, fmt.Errorf("logger, tracer and metrics are required")
	}
	if cfg.Queue == nil || cfg.Runs == nil || cfg.Detections == nil {
		return nil, fmt.Errorf("queue, run and detection services are required")
	}
	if cfg.Ready == nil {
		cfg.Ready = new(atomic.Bool)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(otel.Middleware(cfg.Tracer))
	r.Use(loggerMiddleware(cfg.Log))
	r.Use(metricsMiddleware(cfg.Metrics))
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:        cfg,
		logger:     cfg.Log,
		router:     r,
		tracer:     cfg.Tracer,
		metrics:    cfg.Metrics,
		queue:      cfg.Queue,
		runs:       cfg.Runs,
		detections: cfg.Detections,
		ready:      cfg.Ready,
	}

	s.routes()
	return s, nil
}

func loggerMiddleware(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ctx := r.Context()
				log.Info(ctx, "Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"trace_id", otel.GetTraceID(ctx),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func metricsMiddleware(m APIMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			// The route pattern keeps metric cardinality bounded.
			path := chi.RouteContext(r.Context()).RoutePattern()
			if path == "" {
				path = r.URL.Path
			}
			m.IncRequestsTotal(r.Context(), r.Method, path, ww.Status())
			m.ObserveRequestDuration(r.Context(), r.Method, path, time.Since(start))
		})
	}
}

func (s *Server) routes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/readiness", s.handleReadiness)

		r.Route("/scans", func(r chi.Router) {
			r.Post("/", s.handleEnqueue)
			r.Get("/queue", s.handleQueueStatus)
			r.Delete("/queue/{queueID}", s.handleCancelQueued)
			r.Get("/metrics", s.handleQueueMetrics)

			r.Route("/{scanID}", func(r chi.Router) {
				r.Get("/progress", s.handleProgress)
				r.Get("/methods", s.handleMethods)
				r.Get("/insights", s.handleInsights)
				r.Get("/activities", s.handleActivities)
				r.Get("/detections", s.handleDetections)
				r.Post("/stop", s.handleStop)
				r.Get("/events", s.handleEvents)
			})
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the HTTP server until ctx is cancelled, then drains with a
// shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	shutdownTimeout := s.cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "failed to shutdown server", "error", err)
		}
	}()

	s.logger.Info(ctx, "starting server",
		"addr", server.Addr,
		"service", "scan-api",
	)

	return server.ListenAndServe()
}
