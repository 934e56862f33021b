// File: internal/server/handlers.go
package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/config"
	"github.com/xkilldash9x/consentscan/internal/discovery"
	"github.com/xkilldash9x/consentscan/internal/events"
	"github.com/xkilldash9x/consentscan/internal/store"
)

const maxRequestBody = 1 << 16

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func (s *Server) registerRoutes(r chi.Router) {
	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scans", s.handleStartScan)
		r.Get("/scans", s.handleListJobs)
		r.Get("/scans/{scanID}", s.handleGetScan)
		r.Get("/history", s.handleHistory)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%s backend is running\n", config.AppName)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleStartScan starts an asynchronous scan and returns its job.
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	var req schemas.ScanRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if _, err := discovery.ValidateTarget(req.URL); err != nil {
		s.respondWithError(w, http.StatusBadRequest, schemas.InvalidTargetMessage)
		return
	}

	job, req := s.register(req)
	s.launch(s.baseCtx, job.ID, req, events.Discard)
	s.logger.Info("Scan job accepted", zap.String("scanID", job.ID), zap.String("target", req.URL))
	s.respondWithStatus(w, http.StatusAccepted, "accepted", job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.respondWithSuccess(w, http.StatusOK, s.registry.List())
}

// handleGetScan reports a job from the registry, falling back to the store
// for scans that have already been evicted or ran elsewhere.
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")
	if job, ok := s.registry.Get(scanID); ok {
		s.respondWithSuccess(w, http.StatusOK, job)
		return
	}
	if s.repo == nil {
		s.respondWithError(w, http.StatusNotFound, "Scan ID not found.")
		return
	}

	stored, err := s.repo.GetResult(r.Context(), scanID)
	if errors.Is(err, store.ErrNotFound) {
		s.respondWithError(w, http.StatusNotFound, "Scan ID not found.")
		return
	}
	if err != nil {
		s.logger.Error("Failed to load scan", zap.String("scanID", scanID), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to load scan.")
		return
	}

	startedAt, finishedAt := stored.StartedAt, stored.FinishedAt
	s.respondWithSuccess(w, http.StatusOK, ScanJob{
		ID:         stored.ID,
		Target:     stored.Result.Site,
		Status:     StatusCompleted,
		CreatedAt:  stored.StartedAt,
		StartedAt:  &startedAt,
		FinishedAt: &finishedAt,
		Result:     &stored.Result,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		s.respondWithError(w, http.StatusServiceUnavailable, "Scan history is disabled.")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondWithError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	summaries, err := s.repo.ListScans(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list scans", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to list scans.")
		return
	}
	if summaries == nil {
		summaries = []store.ScanSummary{}
	}
	s.respondWithSuccess(w, http.StatusOK, summaries)
}

func (s *Server) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, APIResponse{Status: "error", Error: message})
}

func (s *Server) respondWithSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	s.respondWithStatus(w, statusCode, "success", data)
}

func (s *Server) respondWithStatus(w http.ResponseWriter, statusCode int, status string, data interface{}) {
	s.writeJSON(w, statusCode, APIResponse{Status: status, Data: data})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, resp APIResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(payload); err != nil {
		s.logger.Debug("Failed to write response", zap.Error(err))
	}
}
