package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/gochang/agrialimi/internal/model"
)

const (
	notificationCap = 100
	usageCap        = 1000
)

// HistoryLog keeps per-user notification history and a generic usage log,
// both bounded rings: newest first, oldest trimmed on insert.
type HistoryLog struct {
	kv *KV
}

func NewHistoryLog(kv *KV) *HistoryLog {
	return &HistoryLog{kv: kv}
}

func notifKey(userID string) string { return userID + "/notifications" }
func usageKey(userID string) string { return userID + "/usage" }

// Append records a notification event. The entry's ID and OccurredAt are
// filled in when empty.
func (l *HistoryLog) Append(userID string, entry model.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	var entries []model.HistoryEntry
	if _, err := l.kv.Get(NSHistory, notifKey(userID), &entries); err != nil {
		return err
	}

	entries = append([]model.HistoryEntry{entry}, entries...)
	if len(entries) > notificationCap {
		entries = entries[:notificationCap]
	}
	return l.kv.Set(NSHistory, notifKey(userID), entries)
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (l *HistoryLog) List(userID string, limit int) ([]model.HistoryEntry, error) {
	var entries []model.HistoryEntry
	if _, err := l.kv.Get(NSHistory, notifKey(userID), &entries); err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Since returns entries with OccurredAt >= cutoff, newest first.
func (l *HistoryLog) Since(userID string, cutoff time.Time) ([]model.HistoryEntry, error) {
	entries, err := l.List(userID, 0)
	if err != nil {
		return nil, err
	}
	var out []model.HistoryEntry
	for _, e := range entries {
		if !e.OccurredAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

// RecordUsage appends a generic usage record.
func (l *HistoryLog) RecordUsage(userID, action string, metadata map[string]string) error {
	rec := model.UsageRecord{
		Action:     action,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	}

	var records []model.UsageRecord
	if _, err := l.kv.Get(NSHistory, usageKey(userID), &records); err != nil {
		return err
	}

	records = append([]model.UsageRecord{rec}, records...)
	if len(records) > usageCap {
		records = records[:usageCap]
	}
	return l.kv.Set(NSHistory, usageKey(userID), records)
}

// Usage returns usage records from the last given number of days, newest first.
func (l *HistoryLog) Usage(userID string, days int) ([]model.UsageRecord, error) {
	var records []model.UsageRecord
	if _, err := l.kv.Get(NSHistory, usageKey(userID), &records); err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var out []model.UsageRecord
	for _, r := range records {
		if !r.OccurredAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}
