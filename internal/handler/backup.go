package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gochang/agrialimi/internal/backup"
)

const passphraseHeader = "X-Backup-Passphrase"

// maxImportSize bounds uploaded snapshots (the KV store is small; 32 MiB is
// generous).
const maxImportSize = 32 << 20

type BackupHandler struct {
	manager *backup.Manager
	logger  *slog.Logger
}

func NewBackupHandler(manager *backup.Manager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: manager, logger: logger}
}

// Export returns an encrypted snapshot of all local data.
func (h *BackupHandler) Export(w http.ResponseWriter, r *http.Request) {
	passphrase := r.Header.Get(passphraseHeader)
	if passphrase == "" {
		writeError(w, http.StatusBadRequest, "passphrase header is required")
		return
	}

	data, err := h.manager.Export(passphrase)
	if err != nil {
		h.logger.Error("export backup", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="agrialimi.bak"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("write backup response", "error", err)
	}
}

// Import restores a previously exported snapshot.
func (h *BackupHandler) Import(w http.ResponseWriter, r *http.Request) {
	passphrase := r.Header.Get(passphraseHeader)
	if passphrase == "" {
		writeError(w, http.StatusBadRequest, "passphrase header is required")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read snapshot body failed")
		return
	}

	if err := h.manager.Import(data, passphrase); err != nil {
		h.logger.Warn("import backup", "error", err)
		writeError(w, http.StatusBadRequest, "import failed: wrong passphrase or corrupt snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}
