// Package backup exports and restores the app's local data as an encrypted
// snapshot the user can move between devices.
package backup

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gochang/agrialimi/internal/store"
)

const snapshotVersion = 1

// snapshot is the plaintext envelope inside an encrypted backup.
type snapshot struct {
	Version    int                        `json:"version"`
	ExportedAt time.Time                  `json:"exported_at"`
	Rows       map[string]json.RawMessage `json:"rows"`
}

// Config holds backup configuration.
type Config struct {
	Dir string // directory where snapshot files are written
}

// Manager produces and restores encrypted snapshots of the KV store.
type Manager struct {
	config Config
	kv     *store.KV
	logger *slog.Logger
}

func NewManager(cfg Config, kv *store.KV, logger *slog.Logger) *Manager {
	return &Manager{config: cfg, kv: kv, logger: logger}
}

// Export encrypts every KV row under the passphrase and returns the sealed
// snapshot bytes.
func (m *Manager) Export(passphrase string) ([]byte, error) {
	rows, err := m.kv.Dump()
	if err != nil {
		return nil, err
	}

	plain, err := json.Marshal(snapshot{
		Version:    snapshotVersion,
		ExportedAt: time.Now().UTC(),
		Rows:       rows,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	sealed, err := encrypt(plain, passphrase)
	if err != nil {
		return nil, err
	}
	m.logger.Info("exported backup", "rows", len(rows))
	return sealed, nil
}

// ExportToFile writes an encrypted snapshot into the configured directory and
// returns its path.
func (m *Manager) ExportToFile(passphrase string) (string, error) {
	data, err := m.Export(passphrase)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(m.config.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	path := filepath.Join(m.config.Dir, fmt.Sprintf("agrialimi-%s.bak", time.Now().UTC().Format("20060102-150405")))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// Import decrypts a snapshot and restores its rows. A wrong passphrase or an
// unknown snapshot version mutates nothing.
func (m *Manager) Import(data []byte, passphrase string) error {
	plain, err := decrypt(data, passphrase)
	if err != nil {
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(plain, &snap); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	if err := m.kv.Restore(snap.Rows); err != nil {
		return err
	}
	m.logger.Info("imported backup", "rows", len(snap.Rows), "exported_at", snap.ExportedAt)
	return nil
}
