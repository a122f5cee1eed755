package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-offload/errors"
	"github.com/wippyai/wasm-offload/history"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type healthResponse struct {
	Status string `json:"status"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Pending bool   `json:"pending"`
}

type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type listRunsResponse struct {
	Runs   []*history.Record `json:"runs"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.State()
	s.writeJSON(w, http.StatusOK, statusResponse{
		Status:  st.Status.String(),
		Message: st.Message,
		Pending: s.ctrl.Pending(),
	})
}

func (s *Server) handleRetryInit(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Retry(); err != nil {
		s.writeError(w, statusFor(err), errors.Message(err))
		return
	}
	s.writeJSON(w, http.StatusAccepted, statusResponse{Status: s.ctrl.State().Status.String()})
}

// handleTriggerRun starts a run and waits for its outcome unless ?wait=false.
// A run still pending when the wait ends is reported with 202.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	req, err := s.ctrl.TriggerRun()
	if err != nil {
		s.writeError(w, statusFor(err), errors.Message(err))
		return
	}

	if r.URL.Query().Get("wait") == "false" {
		s.writeJSON(w, http.StatusAccepted, runResponse{ID: req.ID, Status: "pending"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.runWait)
	defer cancel()
	result, err := req.Wait(ctx)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, runResponse{ID: req.ID, Status: "success", Result: result})
	case !isDone(req.Done()):
		s.writeJSON(w, http.StatusAccepted, runResponse{ID: req.ID, Status: "pending"})
	default:
		s.writeJSON(w, statusFor(err), runResponse{ID: req.ID, Status: "error", Error: errors.Message(err)})
	}
}

func isDone(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}

	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list runs", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*history.Record{}
	}
	s.writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}

	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}

	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("run stats", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// statusFor maps coordinator error kinds to HTTP status codes.
func statusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindProtocolMisuse:
		return http.StatusConflict
	case errors.KindContextLost:
		return http.StatusServiceUnavailable
	case errors.KindRunFault:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
