// Package server exposes the discovery engine over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/intent"
)

// Server routes HTTP requests to the discovery engine and lifecycle.
type Server struct {
	engine    *discovery.Engine
	runs      discovery.RunStore
	lifecycle *discovery.Lifecycle
	mat       *discovery.Materializer
	registry  *intent.Registry

	// active bounds the number of concurrently executing runs; requests
	// beyond the bound are rejected, not queued.
	active *semaphore.Weighted

	allowedOrigins []string
}

// New creates a Server. maxConcurrentRuns <= 0 defaults to 4; empty
// allowedOrigins defaults to "*".
func New(engine *discovery.Engine, runs discovery.RunStore, lifecycle *discovery.Lifecycle, mat *discovery.Materializer, registry *intent.Registry, maxConcurrentRuns int64, allowedOrigins []string) *Server {
	if maxConcurrentRuns <= 0 {
		maxConcurrentRuns = 4
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Server{
		engine:         engine,
		runs:           runs,
		lifecycle:      lifecycle,
		mat:            mat,
		registry:       registry,
		active:         semaphore.NewWeighted(maxConcurrentRuns),
		allowedOrigins: allowedOrigins,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/intents", s.handleListIntents)

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.handleStartRun)
		r.Get("/", s.handleListRuns)
		r.Post("/bulk", s.handleBulk)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Post("/cancel", s.handleCancel)
			r.Post("/materialize", s.handleMaterialize)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListIntents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.All())
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req discovery.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IntentID == "" {
		writeError(w, http.StatusBadRequest, "intent_id is required")
		return
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "api"
	}

	if !s.active.TryAcquire(1) {
		writeError(w, http.StatusTooManyRequests, "too many concurrent runs")
		return
	}
	defer s.active.Release(1)

	run, err := s.engine.Start(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := discovery.RunFilter{
		SourceClass: discovery.SourceClass(r.URL.Query().Get("source_class")),
		Status:      discovery.Status(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("archived"); v != "" {
		archived, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "archived must be true or false")
			return
		}
		filter.Archived = &archived
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	runs, err := s.runs.ListRuns(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if runs == nil {
		runs = []discovery.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestedBy string `json:"requested_by"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.RequestedBy == "" {
		req.RequestedBy = "api"
	}

	if err := s.lifecycle.Cancel(r.Context(), chi.URLParam(r, "id"), req.RequestedBy); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
}

func (s *Server) handleMaterialize(w http.ResponseWriter, r *http.Request) {
	run, err := s.mat.MaterializeRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string   `json:"action"`
		IDs    []string `json:"ids"`
		Actor  string   `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.lifecycle.Bulk(r.Context(), req.Action, req.IDs, req.Actor)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case eris.Is(err, discovery.ErrRunNotFound), eris.Is(err, discovery.ErrRunsNotFound):
		status = http.StatusNotFound
	case eris.Is(err, discovery.ErrCancelAlreadyRequested),
		eris.Is(err, discovery.ErrRunTerminal),
		eris.Is(err, discovery.ErrNotDryRun),
		eris.Is(err, discovery.ErrNotArchived):
		status = http.StatusConflict
	case eris.Is(err, discovery.ErrEmptyResults):
		status = http.StatusUnprocessableEntity
	case eris.Is(err, discovery.ErrUnknownAction), eris.Is(err, intent.ErrUnknownIntent):
		status = http.StatusBadRequest
	default:
		zap.L().Error("request failed", zap.Error(err))
		status = http.StatusInternalServerError
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs one line per request with status and latency.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
