package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gochang/agrialimi/internal/model"
	"github.com/gochang/agrialimi/internal/settings"
	"github.com/gochang/agrialimi/internal/store"
)

type SettingsHandler struct {
	controller *settings.Controller
	logger     *slog.Logger
}

func NewSettingsHandler(controller *settings.Controller, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{controller: controller, logger: logger}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}

	s, err := h.controller.Get(userID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}

	var req model.NotificationSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	saved, err := h.controller.Update(r.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, settings.ErrInvalid):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		default:
			h.logger.Error("update settings", "user", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "update failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
