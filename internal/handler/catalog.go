package handler

import (
	"log/slog"
	"net/http"

	"github.com/gochang/agrialimi/internal/catalog"
)

type CatalogHandler struct {
	catalog *catalog.Service
	logger  *slog.Logger
}

func NewCatalogHandler(c *catalog.Service, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: c, logger: logger}
}

// List returns the known program catalog.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	programs, err := h.catalog.List(r.Context())
	if err != nil {
		h.logger.Error("list catalog", "error", err)
		writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"programs": programs})
}

// Refresh forces a catalog fetch regardless of cache age.
func (h *CatalogHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Refresh(r.Context()); err != nil {
		h.logger.Warn("refresh catalog", "error", err)
		writeError(w, http.StatusBadGateway, "catalog refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
