package model

import "time"

// JobStatus is the lifecycle state of a reminder job.
type JobStatus string

const (
	JobScheduled JobStatus = "scheduled"
	JobFired     JobStatus = "fired"
	JobCancelled JobStatus = "cancelled"
)

// ReminderJob is one future reminder for one (program, offset) pair.
// At most one non-Cancelled job may exist per (user, program, offset).
type ReminderJob struct {
	UserID     string    `json:"user_id"`
	ProgramID  string    `json:"program_id"`
	OffsetDays int       `json:"offset_days"`
	FiresAt    time.Time `json:"fires_at"`
	Status     JobStatus `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Active reports whether the job still counts against the one-per-pair invariant.
func (j ReminderJob) Active() bool {
	return j.Status != JobCancelled
}
