package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"callagent/internal/domain/services"
	"callagent/internal/httputil"
)

// CallHandler serves call records to the dashboard
type CallHandler struct {
	calls  services.CallService
	logger *slog.Logger
}

// NewCallHandler creates a new call handler
func NewCallHandler(calls services.CallService, logger *slog.Logger) *CallHandler {
	return &CallHandler{
		calls:  calls,
		logger: logger,
	}
}

// ListCalls returns the most recent calls, newest first
// GET /api/calls?limit=50
func (h *CallHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	calls, err := h.calls.ListCalls(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list calls", "error", err)
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, calls)
}

// GetCall returns one call record
// GET /api/calls/{callSid}
func (h *CallHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	call, err := h.calls.GetCall(r.Context(), r.PathValue("callSid"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, call)
}

// HealthCheck handles health check requests
// GET /health
func (h *CallHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
