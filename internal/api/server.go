// Package api exposes the analysis service over a small REST surface.
//
// Routes:
//
//   - GET  /healthz                  — liveness probe
//   - GET  /readyz                   — readiness probe (store ping et al.)
//   - GET  /metrics                  — Prometheus scrape endpoint
//   - POST /v1/videos/{id}/analyze   — run the full analysis pipeline
//   - GET  /v1/videos/{id}           — fetch a stored analysis
//   - GET  /v1/videos/{id}/related   — similarity lookup over embeddings
//   - GET  /v1/stats                 — store-level aggregates
//
// All /v1 routes pass through the observe middleware, so every request gets
// a trace span, an X-Correlation-ID header, and a duration histogram sample.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tickerlens/tickerlens/internal/health"
	"github.com/tickerlens/tickerlens/internal/observe"
	"github.com/tickerlens/tickerlens/internal/transcript"
	"github.com/tickerlens/tickerlens/pkg/store/postgres"
)

// defaultRelatedLimit bounds /related responses when the client does not ask
// for a specific count.
const defaultRelatedLimit = 5

// maxRelatedLimit caps client-requested /related counts.
const maxRelatedLimit = 50

// Service is the application surface the HTTP layer needs. *app.App
// implements it; tests substitute a lightweight fake.
type Service interface {
	// AnalyzeVideo runs the full pipeline for one video and returns the
	// persisted record.
	AnalyzeVideo(ctx context.Context, videoID string) (*postgres.Record, error)

	// GetAnalysis returns a stored analysis, or (nil, nil) when none exists.
	GetAnalysis(ctx context.Context, videoID string) (*postgres.Record, error)

	// RelatedVideos returns up to limit videos ranked by embedding similarity.
	RelatedVideos(ctx context.Context, videoID string, limit int) ([]postgres.RelatedVideo, error)

	// AnalysisStats aggregates store-level counts.
	AnalysisStats(ctx context.Context) (postgres.Stats, error)
}

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithHealthChecks registers readiness checkers for /readyz.
func WithHealthChecks(checkers ...health.Checker) Option {
	return func(s *Server) { s.health = health.New(checkers...) }
}

// WithMetrics sets the metrics instance used by the observe middleware.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithTLS serves HTTPS using the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// Server owns the HTTP routing for the analysis service. Construct with
// [NewServer], mount via [Server.Handler].
type Server struct {
	svc     Service
	health  *health.Handler
	metrics *observe.Metrics
	log     *slog.Logger

	certFile string
	keyFile  string
}

// NewServer creates a [Server] around the given service.
func NewServer(svc Service, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		health: health.New(),
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the fully routed [http.Handler], with probe and metrics
// endpoints outside the observe middleware and all /v1 routes inside it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	v1 := http.NewServeMux()
	v1.HandleFunc("POST /v1/videos/{id}/analyze", s.handleAnalyze)
	v1.HandleFunc("GET /v1/videos/{id}", s.handleGet)
	v1.HandleFunc("GET /v1/videos/{id}/related", s.handleRelated)
	v1.HandleFunc("GET /v1/stats", s.handleStats)

	mux.Handle("/v1/", observe.Middleware(s.metrics)(v1))
	return mux
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("id")

	rec, err := s.svc.AnalyzeVideo(r.Context(), videoID)
	switch {
	case errors.Is(err, transcript.ErrNoCaptions):
		writeError(w, http.StatusUnprocessableEntity, "no transcript available for video "+videoID)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "analysis timed out")
		return
	case err != nil:
		observe.Logger(r.Context()).Error("analysis failed", "video_id", videoID, "error", err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("id")

	rec, err := s.svc.GetAnalysis(r.Context(), videoID)
	if err != nil {
		observe.Logger(r.Context()).Error("get analysis failed", "video_id", videoID, "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no analysis for video "+videoID)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("id")

	limit := defaultRelatedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRelatedLimit)
	}

	related, err := s.svc.RelatedVideos(r.Context(), videoID, limit)
	if err != nil {
		observe.Logger(r.Context()).Error("related lookup failed", "video_id", videoID, "error", err)
		writeError(w, http.StatusInternalServerError, "related lookup failed")
		return
	}
	if related == nil {
		related = []postgres.RelatedVideo{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"video_id": videoID,
		"related":  related,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.AnalysisStats(r.Context())
	if err != nil {
		observe.Logger(r.Context()).Error("stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// ListenAndServe serves the handler on addr until ctx is cancelled, then
// drains in-flight requests with a 10 second grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if s.certFile != "" && s.keyFile != "" {
			errCh <- srv.ListenAndServeTLS(s.certFile, s.keyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	s.log.Info("http server listening", "addr", addr, "tls", s.certFile != "")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
