// Package gateway is the HTTP and MCP surface served by `loom serve`: online
// record lookups, feature-vector scoring, and read access to the local ledger.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/caldew/loom/internal/assemble"
	"github.com/caldew/loom/internal/catalog"
	"github.com/caldew/loom/internal/workflow"
	"github.com/caldew/loom/internal/workspace"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	shutdownTimeout    = 10 * time.Second
	readHeaderTimeout  = 10 * time.Second
	writeTimeout       = 30 * time.Second
)

// RecordSource abstracts online record lookup.
type RecordSource interface {
	GetRecord(ctx context.Context, group, id string) (catalog.Record, error)
}

// Scorer abstracts feature assembly plus endpoint invocation.
type Scorer interface {
	Score(ctx context.Context, in workflow.ScoreInput) (*workflow.ScoreResult, error)
}

// Ledger abstracts read access to the workspace ledger.
type Ledger interface {
	ListResources(kind workspace.ResourceKind) ([]workspace.Resource, error)
}

// Pinger reports whether the remote platform is reachable.
type Pinger interface {
	Healthy(ctx context.Context) bool
}

// Deps holds the dependencies for the gateway's handlers.
type Deps struct {
	Records RecordSource
	Scorer  Scorer
	Ledger  Ledger
	Pinger  Pinger

	// Scoring defaults applied to every /v1/score request.
	Groups   []string
	Endpoint string
	Dataset  string

	Token  string // optional; when set, /v1 routes require Bearer auth
	Logger *slog.Logger
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router *chi.Mux
	deps   Deps
	logger *slog.Logger
	addr   string
}

// NewServer creates and configures the gateway HTTP server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		logger: logger,
		addr:   addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router. The liveness and metrics
// endpoints stay open so probes work without credentials.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Route("/v1", func(r chi.Router) {
		if s.deps.Token != "" {
			r.Use(BearerAuth(s.deps.Token))
		}
		r.Get("/records/{group}/{id}", handleGetRecord(s.deps))
		r.Post("/score", handleScore(s.deps))
		r.Get("/resources", handleListResources(s.deps))
	})
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("gateway stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type healthResponse struct {
	Status   string `json:"status"`
	Platform string `json:"platform"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	platform := "down"
	if s.deps.Pinger != nil && s.deps.Pinger.Healthy(r.Context()) {
		platform = "up"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok", Platform: platform}); err != nil {
		s.logger.Error("encode healthz response", "error", err)
	}
}

type recordResponse struct {
	Group  string            `json:"group"`
	ID     string            `json:"id"`
	Values map[string]string `json:"values"`
}

func handleGetRecord(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group := chi.URLParam(r, "group")
		id := chi.URLParam(r, "id")

		rec, err := deps.Records.GetRecord(r.Context(), group, id)
		if errors.Is(err, catalog.ErrRecordNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no record %q in group %q", id, group)
			return
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "fetching record: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(recordResponse{Group: group, ID: id, Values: rec.Values()})
	}
}

type scoreRequest struct {
	ID  string            `json:"id"`
	IDs map[string]string `json:"ids,omitempty"`
}

type scoreResponse struct {
	Score  float64           `json:"score"`
	Fields map[string]string `json:"fields"`
}

func handleScore(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req scoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "id is required")
			return
		}

		result, err := deps.Scorer.Score(r.Context(), workflow.ScoreInput{
			ID:       req.ID,
			IDs:      req.IDs,
			Groups:   deps.Groups,
			Endpoint: deps.Endpoint,
			Dataset:  deps.Dataset,
		})
		if err != nil {
			var missing *assemble.MissingFieldError
			switch {
			case errors.As(err, &missing):
				httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "cannot assemble feature vector: field %q has no value", missing.Field)
			case errors.Is(err, catalog.ErrRecordNotFound):
				httpError(w, http.StatusNotFound, "not_found", "%v", err)
			default:
				httpError(w, http.StatusBadGateway, "api_error", "scoring failed: %v", err)
			}
			return
		}

		fields := make(map[string]string, len(result.Names))
		for i, name := range result.Names {
			fields[name] = result.Values[i]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(scoreResponse{Score: result.Score, Fields: fields})
	}
}

func handleListResources(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := workspace.ResourceKind(r.URL.Query().Get("kind"))
		switch kind {
		case "", workspace.KindFeatureGroup, workspace.KindTrainingJob, workspace.KindEndpoint:
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown resource kind %q", kind)
			return
		}

		resources, err := deps.Ledger.ListResources(kind)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing resources: %v", err)
			return
		}
		if resources == nil {
			resources = []workspace.Resource{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"resources": resources})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
