package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/orchestrator"
	"github.com/JakeFAU/realtime-site-auditor/internal/store"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
	queryTimeout        = 5 * time.Second
	maxRequestBytes     = 1 << 20
)

// SessionHandler exposes the session endpoints.
type SessionHandler struct {
	svc     Service
	timeout time.Duration
	logger  *zap.Logger
}

// NewSessionHandler wires the orchestrator and logger.
func NewSessionHandler(svc Service, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{svc: svc, timeout: queryTimeout, logger: logger}
}

type submitRequest struct {
	Name      string             `json:"name"`
	Kind      string             `json:"kind"`
	Owner     string             `json:"owner"`
	URLs      []string           `json:"urls"`
	Browsers  []string           `json:"browsers"`
	Viewports []string           `json:"viewports"`
	Phone     audit.PhoneOptions `json:"phone"`
}

func (req submitRequest) toSpec() (audit.JobSpec, error) {
	kind, err := audit.ParseKind(req.Kind)
	if err != nil {
		return audit.JobSpec{}, err
	}
	spec := audit.JobSpec{
		Name:  req.Name,
		Kind:  kind,
		Owner: req.Owner,
		URLs:  req.URLs,
		Phone: req.Phone,
	}
	for _, raw := range req.Browsers {
		b, err := audit.ParseBrowser(raw)
		if err != nil {
			return audit.JobSpec{}, err
		}
		spec.Browsers = append(spec.Browsers, b)
	}
	for _, raw := range req.Viewports {
		v, err := audit.ParseViewport(raw)
		if err != nil {
			return audit.JobSpec{}, err
		}
		spec.Viewports = append(spec.Viewports, v)
	}
	return spec, nil
}

// Submit handles POST /v1/sessions. It answers 202 with the session id and
// the expected unit count, 400 for invalid specs and 503 while shutting down.
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	spec, err := req.toSpec()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	task, err := h.svc.Submit(r.Context(), spec)
	switch {
	case errors.Is(err, audit.ErrInvalidSpec):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, orchestrator.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.logger.Error("submit session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to submit session")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id":     task.ID(),
		"total_expected": task.TotalExpected(),
	})
}

// List handles GET /v1/sessions?status=&owner=&limit=&offset=.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultSessionLimit, maxSessionLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := audit.SessionFilter{
		Owner:  strings.TrimSpace(r.URL.Query().Get("owner")),
		Limit:  limit,
		Offset: offset,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := audit.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = &status
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessions, err := h.svc.List(ctx, filter)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []audit.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// Get handles GET /v1/sessions/{session_id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session, err := h.svc.Session(ctx, id)
	if err != nil {
		h.writeLookupError(w, "load session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

// Progress handles GET /v1/sessions/{session_id}/progress. It always answers
// 200; unknown or malformed ids get the not_found sentinel.
func (h *SessionHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusOK, audit.NotFoundProgress())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	prog, err := h.svc.Progress(ctx, id)
	if err != nil {
		h.logger.Warn("load progress failed", zap.String("session_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, prog)
}

// Results handles GET /v1/sessions/{session_id}/results.
func (h *SessionHandler) Results(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results, err := h.svc.Results(ctx, id)
	if err != nil {
		h.writeLookupError(w, "list results", err)
		return
	}
	if results == nil {
		results = []audit.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "results": results})
}

// Stop handles POST /v1/sessions/{session_id}/stop.
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.svc.Stop(ctx, id); err != nil {
		h.writeLookupError(w, "stop session", err)
		return
	}
	prog, err := h.svc.Progress(ctx, id)
	if err != nil {
		h.logger.Warn("load progress failed", zap.String("session_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "status": prog.Status})
}

// Delete handles DELETE /v1/sessions/{session_id}. Running sessions are
// stopped before their records and artifacts are removed.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeLookupError(w, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "session_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session_id")
		return "", false
	}
	return id, true
}

func (h *SessionHandler) writeLookupError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	h.logger.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to "+op)
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
