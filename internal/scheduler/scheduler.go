// Package scheduler computes and stores future reminder jobs for programs a
// user cares about. All mutating methods must run inside the owning user's
// UserQueue task; the queue is the sole serialization point for job state.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gochang/agrialimi/internal/model"
	"github.com/gochang/agrialimi/internal/store"
)

// InterestSource lists the programs a user currently cares about.
// Implemented by interest.Registry.
type InterestSource interface {
	Interests(userID string) ([]string, error)
}

// ProgramSource resolves program records by id. Implemented by catalog.Service.
type ProgramSource interface {
	GetByID(ctx context.Context, id string) (model.Program, error)
}

// Scheduler owns reminder job state: creation with idempotency and
// skip-past-due, cancellation, full rebuilds, and the due-job read path.
type Scheduler struct {
	kv     *store.KV
	queue  *UserQueue
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time

	interests InterestSource
	programs  ProgramSource
}

// New creates a Scheduler. SetSources must be called before RescheduleAll is
// used; the other operations have no external dependencies.
func New(kv *store.KV, queue *UserQueue, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		kv:     kv,
		queue:  queue,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// SetSources wires the interest registry and program catalog. Separate from
// New because the registry itself depends on the scheduler.
func (s *Scheduler) SetSources(interests InterestSource, programs ProgramSource) {
	s.interests = interests
	s.programs = programs
}

// SetClock overrides the time source.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Queue returns the shared per-user serialization queue.
func (s *Scheduler) Queue() *UserQueue {
	return s.queue
}

func jobKey(userID, programID string, offset int) string {
	return userID + "/" + programID + "/" + strconv.Itoa(offset)
}

func indexKey(userID, programID string) string {
	return userID + "/" + programID
}

// ScheduleFor creates the reminder jobs for one program. Offsets whose fire
// time is already in the past are skipped; offsets that already have an
// active job are left untouched. Returns the jobs actually created.
func (s *Scheduler) ScheduleFor(userID string, program model.Program, offsets []int) ([]model.ReminderJob, error) {
	now := s.now()
	start := s.startOfDay(program.Window.Start)

	var created []model.ReminderJob
	for _, offset := range offsets {
		if offset < 0 {
			continue
		}
		firesAt := start.AddDate(0, 0, -offset)
		if firesAt.Before(now) {
			continue
		}

		key := jobKey(userID, program.ID, offset)
		var existing model.ReminderJob
		found, err := s.kv.Get(store.NSJobs, key, &existing)
		if err != nil {
			return created, err
		}
		if found && existing.Active() {
			// Duplicate suppressed: re-scheduling is a designed no-op.
			s.logger.Debug("reminder already scheduled",
				"user", userID, "program", program.ID, "offset", offset)
			continue
		}

		job := model.ReminderJob{
			UserID:     userID,
			ProgramID:  program.ID,
			OffsetDays: offset,
			FiresAt:    firesAt,
			Status:     model.JobScheduled,
			CreatedAt:  now.UTC(),
		}
		if err := s.kv.Set(store.NSJobs, key, job); err != nil {
			return created, err
		}
		if err := s.addToIndex(userID, program.ID, key); err != nil {
			return created, err
		}
		created = append(created, job)
	}
	return created, nil
}

// CancelFor transitions every Scheduled job for the program to Cancelled and
// returns the count. Fired and already-Cancelled jobs are untouched.
func (s *Scheduler) CancelFor(userID, programID string) (int, error) {
	keys, err := s.indexedKeys(userID, programID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, key := range keys {
		var job model.ReminderJob
		found, err := s.kv.Get(store.NSJobs, key, &job)
		if err != nil {
			return cancelled, err
		}
		if !found || job.Status != model.JobScheduled {
			continue
		}
		job.Status = model.JobCancelled
		if err := s.kv.Set(store.NSJobs, key, job); err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// RescheduleAll cancels every job owned by the user's current interests and
// re-derives the job set from the interest list and the catalog. Safe to run
// at any time; the final state is the same regardless of prior state.
func (s *Scheduler) RescheduleAll(ctx context.Context, userID string) error {
	if s.interests == nil || s.programs == nil {
		return fmt.Errorf("scheduler sources not wired")
	}

	programIDs, err := s.interests.Interests(userID)
	if err != nil {
		return err
	}

	for _, id := range programIDs {
		if _, err := s.CancelFor(userID, id); err != nil {
			return err
		}
	}
	for _, id := range programIDs {
		program, err := s.programs.GetByID(ctx, id)
		if err != nil {
			// Program fell out of the catalog; its jobs stay cancelled.
			s.logger.Warn("reschedule: program lookup failed", "user", userID, "program", id, "error", err)
			continue
		}
		if _, err := s.ScheduleFor(userID, program, program.Offsets()); err != nil {
			return err
		}
	}
	return nil
}

// DueJobs returns the user's Scheduled jobs with firesAt <= asOf, ordered by
// firesAt ascending then offsetDays descending, so same-instant ties fire the
// coarser-grained reminder first.
func (s *Scheduler) DueJobs(userID string, asOf time.Time) ([]model.ReminderJob, error) {
	keys, err := s.kv.Scan(store.NSJobs, userID+"/")
	if err != nil {
		return nil, err
	}

	var due []model.ReminderJob
	for _, key := range keys {
		var job model.ReminderJob
		found, err := s.kv.Get(store.NSJobs, key, &job)
		if err != nil {
			return nil, err
		}
		if !found || job.Status != model.JobScheduled {
			continue
		}
		if job.FiresAt.After(asOf) {
			continue
		}
		due = append(due, job)
	}

	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].FiresAt.Equal(due[j].FiresAt) {
			return due[i].FiresAt.Before(due[j].FiresAt)
		}
		return due[i].OffsetDays > due[j].OffsetDays
	})
	return due, nil
}

// MarkFired transitions a job to Fired. The transition is terminal.
func (s *Scheduler) MarkFired(job model.ReminderJob) error {
	key := jobKey(job.UserID, job.ProgramID, job.OffsetDays)
	job.Status = model.JobFired
	return s.kv.Set(store.NSJobs, key, job)
}

// JobsFor returns every stored job for one (user, program) pair, any status.
func (s *Scheduler) JobsFor(userID, programID string) ([]model.ReminderJob, error) {
	keys, err := s.indexedKeys(userID, programID)
	if err != nil {
		return nil, err
	}

	var jobs []model.ReminderJob
	for _, key := range keys {
		var job model.ReminderJob
		found, err := s.kv.Get(store.NSJobs, key, &job)
		if err != nil {
			return nil, err
		}
		if found {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].OffsetDays > jobs[j].OffsetDays })
	return jobs, nil
}

// addToIndex maintains the per-(user, program) job-key list so cancellation
// never scans the whole job namespace.
func (s *Scheduler) addToIndex(userID, programID, key string) error {
	idx := indexKey(userID, programID)
	var keys []string
	if _, err := s.kv.Get(store.NSJobIndex, idx, &keys); err != nil {
		return err
	}
	for _, k := range keys {
		if k == key {
			return nil
		}
	}
	keys = append(keys, key)
	return s.kv.Set(store.NSJobIndex, idx, keys)
}

func (s *Scheduler) indexedKeys(userID, programID string) ([]string, error) {
	var keys []string
	if _, err := s.kv.Get(store.NSJobIndex, indexKey(userID, programID), &keys); err != nil {
		return nil, err
	}
	// Guard against index rows written before key-format changes.
	var valid []string
	for _, k := range keys {
		if strings.HasPrefix(k, userID+"/"+programID+"/") {
			valid = append(valid, k)
		}
	}
	return valid, nil
}

// startOfDay normalizes a calendar date to local midnight in the scheduler's
// timezone. Reminder math works in whole days.
func (s *Scheduler) startOfDay(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}
