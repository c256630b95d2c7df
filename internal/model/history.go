package model

import "time"

// HistoryAction describes what happened to a notification.
type HistoryAction string

const (
	ActionDelivered HistoryAction = "delivered"
	ActionOpened    HistoryAction = "opened"
	ActionCancelled HistoryAction = "cancelled"
)

// HistoryEntry is an immutable record of a notification event. The log is a
// bounded ring: oldest entries are trimmed on insert.
type HistoryEntry struct {
	ID         string        `json:"id"`
	ProgramID  string        `json:"program_id,omitempty"`
	Action     HistoryAction `json:"action"`
	Title      string        `json:"title,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// UsageRecord is one generic app-usage log entry.
type UsageRecord struct {
	Action     string            `json:"action"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
