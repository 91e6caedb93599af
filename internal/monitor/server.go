package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/vidgate/internal/core/domain"
)

// Server exposes the monitor's query operations over HTTP.
type Server struct {
	monitor *Monitor
	log     *slog.Logger
	server  *http.Server
}

// NewServer creates a new monitor server listening on addr.
func NewServer(monitor *Monitor, addr string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{monitor: monitor, log: log}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleAllHealth)
		r.Get("/alerts", s.handleAlerts)
		r.Route("/targets/{targetID}", func(r chi.Router) {
			r.Get("/health", s.handleTargetHealth)
			r.Get("/stats", s.handleTargetStats)
		})
	})

	return r
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth reports the worst status across targets; critical yields 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := WorstStatus(s.monitor.GetAllHealth(r.Context()))

	code := http.StatusOK
	if status == domain.HealthCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(status)})
}

func (s *Server) handleAllHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.GetAllHealth(r.Context()))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.GetAlerts(r.Context()))
}

func (s *Server) handleTargetHealth(w http.ResponseWriter, r *http.Request) {
	id, ok := targetParam(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("cached") == "true" {
		writeJSON(w, http.StatusOK, s.monitor.CachedHealth(r.Context(), id))
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.GetHealth(r.Context(), id))
}

func (s *Server) handleTargetStats(w http.ResponseWriter, r *http.Request) {
	id, ok := targetParam(w, r)
	if !ok {
		return
	}
	window := r.URL.Query().Get("window")
	writeJSON(w, http.StatusOK, s.monitor.GetStatistics(r.Context(), id, window))
}

// targetParam decodes the target id. Ids such as "owner/model" arrive
// percent-encoded.
func targetParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "targetID"))
	if err != nil || id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid target id"})
		return "", false
	}
	return id, true
}

// WorstStatus aggregates statuses: critical beats degraded beats healthy.
// Unknown targets do not affect the result.
func WorstStatus(healths []domain.ModelHealth) domain.HealthStatus {
	status := domain.HealthHealthy
	for _, h := range healths {
		if h.Status == domain.HealthCritical {
			return domain.HealthCritical
		}
		if h.Status == domain.HealthDegraded {
			status = domain.HealthDegraded
		}
	}
	return status
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs each request with its status and latency.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelDebug
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			log.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
				"remote", r.RemoteAddr,
			)
		})
	}
}
