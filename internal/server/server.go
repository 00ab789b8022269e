// Package server exposes the extraction engine over HTTP for review tooling:
// artifact ingest, run submission and inspection, and review-time citation
// resolution. It is the engine's surface only; document and template
// management live elsewhere.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-legal/evidence-cli/internal/artifact"
	"github.com/meridian-legal/evidence-cli/internal/model"
	"github.com/meridian-legal/evidence-cli/internal/pipeline"
	"github.com/meridian-legal/evidence-cli/internal/store"
)

// Server holds the handler dependencies.
type Server struct {
	store     store.Store
	artifacts *artifact.Store
	catalog   *model.FieldCatalog
	engine    *pipeline.Engine
}

// New wires a Server. The engine must be built over the same store and
// artifact store.
func New(st store.Store, artifacts *artifact.Store, catalog *model.FieldCatalog, engine *pipeline.Engine) *Server {
	return &Server{store: st, artifacts: artifacts, catalog: catalog, engine: engine}
}

// Router assembles the chi routes. CORS is wide open: the API binds locally
// and serves a browser review UI during development.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Post("/api/ingest", s.handleIngest)
	r.Post("/api/runs", s.handleCreateRun)
	r.Get("/api/runs/{id}", s.handleGetRun)
	r.Post("/api/resolve", s.handleResolve)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"time_utc": time.Now().UTC().Format(time.RFC3339),
	})
}

// IngestRequest carries one parsed artifact. Identifiers the client omits
// are assigned server-side.
type IngestRequest struct {
	Title    string         `json:"title,omitempty"`
	Artifact model.Artifact `json:"artifact"`
}

// IngestResponse reports the stored artifact's final identifiers.
type IngestResponse struct {
	DocumentID string            `json:"document_id"`
	VersionID  string            `json:"version_id"`
	Status     model.ParseStatus `json:"status"`
	Blocks     int               `json:"blocks"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "server: decode ingest request"))
		return
	}

	stored, err := s.artifacts.Ingest(&req.Artifact, req.Title)
	if err != nil {
		if eris.Is(err, artifact.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	zap.L().Info("server: artifact ingested",
		zap.String("document_id", stored.DocumentID),
		zap.String("version_id", stored.VersionID),
		zap.Int("blocks", len(stored.Blocks)))
	writeJSON(w, http.StatusCreated, IngestResponse{
		DocumentID: stored.DocumentID,
		VersionID:  stored.VersionID,
		Status:     stored.Status,
		Blocks:     len(stored.Blocks),
	})
}

// CreateRunRequest submits a run. Empty field_keys means every catalog field;
// empty profile and mode take the balanced LLM defaults.
type CreateRunRequest struct {
	VersionIDs []string `json:"version_ids"`
	FieldKeys  []string `json:"field_keys,omitempty"`
	Profile    string   `json:"profile,omitempty"`
	Mode       string   `json:"mode,omitempty"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "server: decode run request"))
		return
	}
	if len(req.VersionIDs) == 0 {
		writeError(w, http.StatusBadRequest, eris.New("server: version_ids is required"))
		return
	}
	profile, ok := model.ParseProfile(req.Profile)
	if !ok {
		writeError(w, http.StatusBadRequest, eris.Errorf("server: unknown profile %q", req.Profile))
		return
	}
	mode, ok := model.ParseMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, eris.Errorf("server: unknown mode %q", req.Mode))
		return
	}
	fields := req.FieldKeys
	if len(fields) == 0 {
		fields = s.catalog.Keys()
	}
	for _, key := range fields {
		if s.catalog.ByKey(key) == nil {
			writeError(w, http.StatusBadRequest, eris.Errorf("server: unknown field key %q", key))
			return
		}
	}

	run, err := s.store.CreateRun(r.Context(), req.VersionIDs, fields, profile, mode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// The run outlives the request; clients poll GET /api/runs/{id}.
	go s.executeRun(run)

	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) executeRun(run *model.Run) {
	if _, err := s.engine.ExecuteRun(context.Background(), run); err != nil {
		zap.L().Error("server: run execution failed",
			zap.String("run_id", run.ID), zap.Error(err))
	}
}

// RunDetail is a run with its full cell grid.
type RunDetail struct {
	Run   model.Run    `json:"run"`
	Cells []model.Cell `json:"cells"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	cells, err := s.store.ListCells(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, RunDetail{Run: *run, Cells: cells})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "server: decode resolve request"))
		return
	}
	if req.RunID == "" || req.VersionID == "" || req.FieldKey == "" {
		writeError(w, http.StatusBadRequest, eris.New("server: run_id, version_id, and field_key are required"))
		return
	}

	out, err := s.engine.Review(r.Context(), req)
	if err != nil {
		if strings.Contains(err.Error(), "no cell") || strings.Contains(err.Error(), "no result") {
			writeError(w, http.StatusNotFound, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("server: request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
