package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gochang/agrialimi/internal/catalog"
	"github.com/gochang/agrialimi/internal/interest"
	"github.com/gochang/agrialimi/internal/scheduler"
	"github.com/gochang/agrialimi/internal/store"
)

type InterestHandler struct {
	registry *interest.Registry
	sched    *scheduler.Scheduler
	logger   *slog.Logger
}

func NewInterestHandler(registry *interest.Registry, sched *scheduler.Scheduler, logger *slog.Logger) *InterestHandler {
	return &InterestHandler{registry: registry, sched: sched, logger: logger}
}

// Toggle flips interest membership for one program and returns the resulting
// state plus the program's current job set.
func (h *InterestHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	programID := r.PathValue("program_id")
	if programID == "" {
		writeError(w, http.StatusBadRequest, "program_id is required")
		return
	}

	result, err := h.registry.Toggle(r.Context(), userID, programID)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			writeError(w, http.StatusNotFound, "unknown program")
		case errors.Is(err, store.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		default:
			h.logger.Error("toggle interest", "user", userID, "program", programID, "error", err)
			writeError(w, http.StatusInternalServerError, "toggle failed")
		}
		return
	}

	jobs, err := h.sched.JobsFor(userID, programID)
	if err != nil {
		h.logger.Warn("list jobs after toggle", "user", userID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": result,
		"jobs":   jobs,
	})
}

// List returns the user's interest set.
func (h *InterestHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}

	ids, err := h.registry.List(userID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"interests": ids})
}
