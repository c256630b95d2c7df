package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable wraps every storage failure so callers can treat the whole
// class uniformly (abort the operation, surface a retryable failure upward).
var ErrUnavailable = errors.New("store unavailable")

// Namespaces used across the app. Each component owns its namespace; nothing
// outside a component touches its keys.
const (
	NSJobs      = "jobs"
	NSJobIndex  = "job_index"
	NSInterests = "interests"
	NSSettings  = "settings"
	NSHistory   = "history"
	NSPush      = "push"
	NSCatalog   = "catalog"
)

// KV is a namespaced key-value store over a single SQLite table. Operations
// are atomic at single-key granularity; there are no multi-key transactions.
// Values are JSON-encoded.
type KV struct {
	db *sql.DB
}

func NewKV(db *sql.DB) *KV {
	return &KV{db: db}
}

// Set stores value under (ns, key), replacing any previous value.
func (s *KV) Set(ns, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", ns, key, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO kv (ns, k, v, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(ns, k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at`,
		ns, key, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: set %s/%s: %v", ErrUnavailable, ns, key, err)
	}
	return nil
}

// Get loads the value under (ns, key) into out. The bool reports presence;
// absence is not an error.
func (s *KV) Get(ns, key string, out any) (bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT v FROM kv WHERE ns = ? AND k = ?`, ns, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: get %s/%s: %v", ErrUnavailable, ns, key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("unmarshal %s/%s: %w", ns, key, err)
	}
	return true, nil
}

// Remove deletes the value under (ns, key). Removing an absent key is a no-op.
func (s *KV) Remove(ns, key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE ns = ? AND k = ?`, ns, key)
	if err != nil {
		return fmt.Errorf("%w: remove %s/%s: %v", ErrUnavailable, ns, key, err)
	}
	return nil
}

// Scan returns all keys in ns starting with prefix, in ascending key order.
// An empty prefix lists the whole namespace. Implemented as a range query so
// prefixes containing LIKE metacharacters need no escaping.
func (s *KV) Scan(ns, prefix string) ([]string, error) {
	query := `SELECT k FROM kv WHERE ns = ? AND k >= ? ORDER BY k`
	args := []any{ns, prefix}
	if upper := prefixUpperBound(prefix); upper != "" {
		query = `SELECT k FROM kv WHERE ns = ? AND k >= ? AND k < ? ORDER BY k`
		args = append(args, upper)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s/%s*: %v", ErrUnavailable, ns, prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%w: scan %s row: %v", ErrUnavailable, ns, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrUnavailable, ns, err)
	}
	return keys, nil
}

// Dump returns every row in the store, keyed "ns/key" with the raw JSON value.
// Used by the backup exporter.
func (s *KV) Dump() (map[string]json.RawMessage, error) {
	rows, err := s.db.Query(`SELECT ns, k, v FROM kv ORDER BY ns, k`)
	if err != nil {
		return nil, fmt.Errorf("%w: dump: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var ns, k, v string
		if err := rows.Scan(&ns, &k, &v); err != nil {
			return nil, fmt.Errorf("%w: dump row: %v", ErrUnavailable, err)
		}
		out[ns+"/"+k] = json.RawMessage(v)
	}
	return out, rows.Err()
}

// Restore writes every "ns/key" row from a dump back into the store.
func (s *KV) Restore(rows map[string]json.RawMessage) error {
	for full, raw := range rows {
		ns, key, ok := splitKey(full)
		if !ok {
			return fmt.Errorf("restore: malformed key %q", full)
		}
		_, err := s.db.Exec(
			`INSERT INTO kv (ns, k, v, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(ns, k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at`,
			ns, key, string(raw), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("%w: restore %s: %v", ErrUnavailable, full, err)
		}
	}
	return nil
}

// prefixUpperBound returns the smallest string greater than every string with
// the given prefix, or "" when no finite bound exists.
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

func splitKey(full string) (ns, key string, ok bool) {
	for i := 0; i < len(full); i++ {
		if full[i] == '/' {
			return full[:i], full[i+1:], true
		}
	}
	return "", "", false
}
