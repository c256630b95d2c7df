// Package interest tracks which programs a user has marked as interesting.
// The registry is the only path that creates or cancels reminder jobs for a
// user-driven toggle, which keeps the interest set and the job set consistent.
package interest

import (
	"context"
	"log/slog"
	"sort"

	"github.com/gochang/agrialimi/internal/model"
	"github.com/gochang/agrialimi/internal/scheduler"
	"github.com/gochang/agrialimi/internal/store"
)

// ToggleResult reports the membership state after a toggle.
type ToggleResult string

const (
	Added   ToggleResult = "added"
	Removed ToggleResult = "removed"
)

// ProgramSource resolves programs for newly added interests.
type ProgramSource interface {
	GetByID(ctx context.Context, id string) (model.Program, error)
}

// Registry holds per-user interest sets in the KV store, one row per user.
type Registry struct {
	kv       *store.KV
	sched    *scheduler.Scheduler
	programs ProgramSource
	history  *store.HistoryLog
	logger   *slog.Logger
}

func NewRegistry(kv *store.KV, sched *scheduler.Scheduler, programs ProgramSource, history *store.HistoryLog, logger *slog.Logger) *Registry {
	return &Registry{
		kv:       kv,
		sched:    sched,
		programs: programs,
		history:  history,
		logger:   logger,
	}
}

// Toggle flips the user's membership for a program. On add it schedules the
// program's reminders before returning; on remove it cancels them. Repeated
// toggles in the same direction are idempotent set operations. Removal never
// consults the catalog, so a program that has dropped out of it can still be
// unmarked and its jobs cancelled.
func (r *Registry) Toggle(ctx context.Context, userID, programID string) (ToggleResult, error) {
	var result ToggleResult
	err := r.sched.Queue().Do(userID, func() error {
		set, err := r.loadSet(userID)
		if err != nil {
			return err
		}

		if _, has := set[programID]; has {
			delete(set, programID)
			result = Removed
			if err := r.saveSet(userID, set); err != nil {
				return err
			}
			_, err := r.sched.CancelFor(userID, programID)
			return err
		}

		// Adding requires the program to exist in the catalog.
		program, err := r.programs.GetByID(ctx, programID)
		if err != nil {
			return err
		}
		set[programID] = struct{}{}
		if err := r.saveSet(userID, set); err != nil {
			return err
		}
		if _, err := r.sched.ScheduleFor(userID, program, program.Offsets()); err != nil {
			return err
		}
		result = Added
		return nil
	})
	if err != nil {
		return "", err
	}

	if err := r.history.RecordUsage(userID, "interest_"+string(result), map[string]string{"program_id": programID}); err != nil {
		r.logger.Warn("record interest usage", "user", userID, "error", err)
	}
	return result, nil
}

// List returns the user's interest set as a sorted slice.
func (r *Registry) List(userID string) ([]string, error) {
	set, err := r.loadSet(userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Interests satisfies scheduler.InterestSource.
func (r *Registry) Interests(userID string) ([]string, error) {
	return r.List(userID)
}

// Users returns every user id that has ever toggled an interest. The
// dispatcher sweeps over this set.
func (r *Registry) Users() ([]string, error) {
	return r.kv.Scan(store.NSInterests, "")
}

func (r *Registry) loadSet(userID string) (map[string]struct{}, error) {
	var ids []string
	if _, err := r.kv.Get(store.NSInterests, userID, &ids); err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (r *Registry) saveSet(userID string, set map[string]struct{}) error {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return r.kv.Set(store.NSInterests, userID, ids)
}
