package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/snagbot/internal/scheduler"
	"github.com/dukerupert/snagbot/internal/store"
)

// StatusSource exposes the scheduler's live cycle view. *scheduler.Scheduler
// satisfies it.
type StatusSource interface {
	Snapshot() []scheduler.CycleStatus
}

type AccountHandler struct {
	status StatusSource
	events *store.EventStore
	logger *slog.Logger
}

func NewAccountHandler(status StatusSource, events *store.EventStore, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{status: status, events: events, logger: logger}
}

// List handles GET /api/accounts
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	statuses := h.status.Snapshot()
	if statuses == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// Events handles GET /api/accounts/{login_id}/events
func (h *AccountHandler) Events(w http.ResponseWriter, r *http.Request) {
	loginID := r.PathValue("login_id")
	if loginID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "login_id is required"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	events, err := h.events.ListByAccount(loginID, limit)
	if err != nil {
		h.logger.Error("list attempt events", "login_id", loginID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list events"})
		return
	}
	if events == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
