// Package httpapi exposes the analysis pipeline over HTTP for the serve
// daemon. The API is intentionally small: start an analysis, poll its
// status, list runs. Status is polled, never pushed.
package httpapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"riq/internal/errors"
	"riq/internal/estimate"
	"riq/internal/logging"
	"riq/internal/paths"
	"riq/internal/pipeline"
	"riq/internal/version"
)

// Config holds the server's listen address and auth material.
type Config struct {
	Host string
	Port int
	// TokenFile is the resolved path of the bcrypt token hash file.
	// Empty disables file-based tokens.
	TokenFile string
	// DefaultRepo is analyzed when a request names no repository.
	DefaultRepo string
}

// Server is the HTTP front of the orchestrator.
type Server struct {
	cfg       Config
	router    *http.ServeMux
	server    *http.Server
	orch      *pipeline.Orchestrator
	logger    *logging.Logger
	startedAt time.Time
	warnOnce  sync.Once
}

// NewServer creates the serve daemon with its routes and middleware.
func NewServer(cfg Config, orch *pipeline.Orchestrator, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{
		cfg:       cfg,
		router:    http.NewServeMux(),
		orch:      orch,
		logger:    logger,
		startedAt: time.Now(),
	}
	s.registerRoutes()

	handler := s.applyMiddleware(s.router)
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	// Health endpoint (no auth required)
	s.router.HandleFunc("/health", s.handleHealth)

	// API endpoints (auth required)
	api := http.NewServeMux()
	api.HandleFunc("/api/v1/analyses", s.handleAnalyses)
	api.HandleFunc("/api/v1/analyses/", s.handleAnalysisByID)
	s.router.Handle("/api/v1/", s.withAuth(api))
}

// applyMiddleware wraps the handler with middleware in reverse order
// (the last one applied wraps first).
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	return handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start blocks serving requests until Shutdown or a listen failure.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", map[string]interface{}{
		"addr": s.server.Addr,
	})
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", nil)
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// handleHealth handles GET /health (no auth required).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Uptime:  formatDuration(time.Since(s.startedAt)),
	})
}

// AnalyzeBody is the POST /api/v1/analyses request body.
type AnalyzeBody struct {
	Repo         string                     `json:"repo,omitempty"`
	Requirement  string                     `json:"requirement,omitempty"`
	Changes      []estimate.ComponentChange `json:"changes,omitempty"`
	Complexity   estimate.Complexity        `json:"complexity,omitempty"`
	NFRs         []string                   `json:"nfrs,omitempty"`
	RefreshFacts bool                       `json:"refreshFacts,omitempty"`
}

// AnalysisCreated is the 202 response for a started analysis.
type AnalysisCreated struct {
	RunID string `json:"runId"`
}

// AnalysisList is the list response body.
type AnalysisList struct {
	Runs  []pipeline.RunSummary `json:"runs"`
	Count int                   `json:"count"`
}

// handleAnalyses handles the /api/v1/analyses collection.
func (s *Server) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateAnalysis(w, r)
	case http.MethodGet:
		s.handleListAnalyses(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCreateAnalysis handles POST /api/v1/analyses: validates the
// repository, registers an async run, answers 202 immediately.
func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var body AnalyzeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.InvalidRequest, "invalid request body: "+err.Error())
		return
	}

	repo := body.Repo
	if repo == "" {
		repo = s.cfg.DefaultRepo
	}
	if repo == "" {
		writeError(w, http.StatusBadRequest, errors.InvalidRequest, "no repository specified and no default configured")
		return
	}
	root, err := paths.EnsureRepoRoot(repo)
	if err != nil {
		writeRiqError(w, err)
		return
	}

	runID, err := s.orch.Start(r.Context(), pipeline.AnalyzeRequest{
		RepoRoot:     root,
		Requirement:  body.Requirement,
		Changes:      body.Changes,
		Complexity:   body.Complexity,
		NFRs:         body.NFRs,
		RefreshFacts: body.RefreshFacts,
	})
	if err != nil {
		writeRiqError(w, err)
		return
	}

	s.logger.Info("Analysis started", map[string]interface{}{
		"runId":     runID,
		"repo":      root,
		"requestID": GetRequestID(r.Context()),
	})
	writeJSON(w, http.StatusAccepted, AnalysisCreated{RunID: runID})
}

// handleListAnalyses handles GET /api/v1/analyses.
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	runs := s.orch.ListRuns(limit)
	writeJSON(w, http.StatusOK, AnalysisList{Runs: runs, Count: len(runs)})
}

// handleAnalysisByID handles GET /api/v1/analyses/{id}. Unknown IDs are
// a 404 whose body still carries the polled status shape.
func (s *Server) handleAnalysisByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/analyses/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	status := s.orch.GetStatus(id)
	code := http.StatusOK
	if status.Status == pipeline.StatusNotFound {
		code = http.StatusNotFound
	}
	writeJSON(w, code, status)
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable code and human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code errors.ErrorCode, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: string(code), Message: message}})
}

// writeRiqError maps a pipeline error onto the wire. Unknown error
// types land as 500 INTERNAL_ERROR.
func writeRiqError(w http.ResponseWriter, err error) {
	var riqErr *errors.RiqError
	if !stderrors.As(err, &riqErr) {
		writeError(w, http.StatusInternalServerError, errors.InternalError, err.Error())
		return
	}
	writeError(w, statusForCode(riqErr.Code), riqErr.Code, riqErr.Message)
}

func statusForCode(code errors.ErrorCode) int {
	switch code {
	case errors.Unauthorized:
		return http.StatusUnauthorized
	case errors.RunNotFound:
		return http.StatusNotFound
	case errors.RepoNotFound, errors.PathEscape, errors.InvalidChange, errors.InvalidRequest:
		return http.StatusBadRequest
	case errors.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// formatDuration renders an uptime like 1h2m3s.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
