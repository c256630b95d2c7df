package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gochang/agrialimi/internal/dispatch"
	"github.com/gochang/agrialimi/internal/model"
	"github.com/gochang/agrialimi/internal/stats"
	"github.com/gochang/agrialimi/internal/store"
)

type HistoryHandler struct {
	history    *store.HistoryLog
	dispatcher *dispatch.Dispatcher
	aggregator *stats.Aggregator
	logger     *slog.Logger
}

func NewHistoryHandler(history *store.HistoryLog, dispatcher *dispatch.Dispatcher, aggregator *stats.Aggregator, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		history:    history,
		dispatcher: dispatcher,
		aggregator: aggregator,
		logger:     logger,
	}
}

// List returns notification history, newest first. ?limit caps the result.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.history.List(userID, limit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// Opened records the user's acknowledgment of a delivered reminder.
func (h *HistoryHandler) Opened(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	programID := r.PathValue("program_id")
	if programID == "" {
		writeError(w, http.StatusBadRequest, "program_id is required")
		return
	}

	if err := h.dispatcher.RecordOpened(userID, programID); err != nil {
		h.logger.Error("record opened", "user", userID, "program", programID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// Stats returns the delivery/open rollup for the last ?days days (default 30).
func (h *HistoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	window, err := h.aggregator.WindowStats(userID, days)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		return
	}
	writeJSON(w, http.StatusOK, window)
}
