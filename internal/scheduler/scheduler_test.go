package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gochang/agrialimi/internal/database"
	"github.com/gochang/agrialimi/internal/model"
	"github.com/gochang/agrialimi/internal/store"
)

func setupScheduler(t *testing.T) *Scheduler {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store.NewKV(db), NewUserQueue(), time.UTC, logger)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testProgram(id, name string, start time.Time) model.Program {
	return model.Program{
		ID:   id,
		Name: name,
		Window: model.ApplicationWindow{
			Start: start,
			End:   start.AddDate(0, 0, 30),
		},
	}
}

func TestScheduleForCreatesFutureJobs(t *testing.T) {
	sched := setupScheduler(t)
	sched.SetClock(fixedClock(time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)))

	program := testProgram("p1", "농민수당", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	created, err := sched.ScheduleFor("u1", program, model.DefaultReminderOffsets)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(created) != 4 {
		t.Fatalf("created %d jobs, want 4", len(created))
	}

	wantFires := map[int]time.Time{
		7: time.Date(2025, 3, 25, 0, 0, 0, 0, time.UTC),
		3: time.Date(2025, 3, 29, 0, 0, 0, 0, time.UTC),
		1: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		0: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, job := range created {
		want, ok := wantFires[job.OffsetDays]
		if !ok {
			t.Errorf("unexpected offset %d", job.OffsetDays)
			continue
		}
		if !job.FiresAt.Equal(want) {
			t.Errorf("offset %d fires at %v, want %v", job.OffsetDays, job.FiresAt, want)
		}
		if job.Status != model.JobScheduled {
			t.Errorf("offset %d status = %s, want scheduled", job.OffsetDays, job.Status)
		}
	}
}

func TestScheduleForSkipsPastDue(t *testing.T) {
	sched := setupScheduler(t)
	// Two days before the window opens: the 7-day and 3-day marks already passed.
	sched.SetClock(fixedClock(time.Date(2025, 3, 30, 9, 0, 0, 0, time.UTC)))

	program := testProgram("p1", "농민수당", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	created, err := sched.ScheduleFor("u1", program, model.DefaultReminderOffsets)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d jobs, want 2 (offsets 1 and 0)", len(created))
	}
	for _, job := range created {
		if job.OffsetDays != 1 && job.OffsetDays != 0 {
			t.Errorf("unexpected offset %d scheduled", job.OffsetDays)
		}
	}
}

func TestScheduleForIdempotent(t *testing.T) {
	sched := setupScheduler(t)
	sched.SetClock(fixedClock(time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)))

	program := testProgram("p1", "농민수당", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	if _, err := sched.ScheduleFor("u1", program, model.DefaultReminderOffsets); err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	again, err := sched.ScheduleFor("u1", program, model.DefaultReminderOffsets)
	if err != nil {
		t.Fatalf("second schedule: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second schedule created %d jobs, want 0", len(again))
	}

	jobs, err := sched.JobsFor("u1", "p1")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	active := 0
	for _, j := range jobs {
		if j.Active() {
			active++
		}
	}
	if active != 4 {
		t.Errorf("%d active jobs, want 4", active)
	}
}

func TestScheduleAfterCancelCreatesFresh(t *testing.T) {
	sched := setupScheduler(t)
	sched.SetClock(fixedClock(time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)))

	program := testProgram("p1", "농민수당", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	if _, err := sched.ScheduleFor("u1", program, model.DefaultReminderOffsets); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := sched.CancelFor("u1", "p1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	created, err := sched.ScheduleFor("u1", program, model.DefaultReminderOffsets)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if len(created) != 4 {
		t.Errorf("reschedule created %d jobs, want 4", len(created))
	}
}

func TestCancelForLeavesFired(t *testing.T) {
	sched := setupScheduler(t)
	sched.SetClock(fixedClock(time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)))

	program := testProgram("p1", "농민수당", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	created, err := sched.ScheduleFor("u1", program, model.DefaultReminderOffsets)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// The 7-day reminder has already gone out.
	for _, job := range created {
		if job.OffsetDays == 7 {
			if err := sched.MarkFired(job); err != nil {
				t.Fatalf("mark fired: %v", err)
			}
		}
	}

	cancelled, err := sched.CancelFor("u1", "p1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled != 3 {
		t.Errorf("cancelled %d jobs, want 3", cancelled)
	}

	jobs, err := sched.JobsFor("u1", "p1")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	for _, j := range jobs {
		switch j.OffsetDays {
		case 7:
			if j.Status != model.JobFired {
				t.Errorf("fired job regressed to %s", j.Status)
			}
		default:
			if j.Status != model.JobCancelled {
				t.Errorf("offset %d status = %s, want cancelled", j.OffsetDays, j.Status)
			}
		}
	}
}

func TestCancelForIsScopedToProgram(t *testing.T) {
	sched := setupScheduler(t)
	sched.SetClock(fixedClock(time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)))

	p1 := testProgram("p1", "농민수당", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	p2 := testProgram("p2", "친환경 직불금", time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC))
	if _, err := sched.ScheduleFor("u1", p1, model.DefaultReminderOffsets); err != nil {
		t.Fatalf("schedule p1: %v", err)
	}
	if _, err := sched.ScheduleFor("u1", p2, model.DefaultReminderOffsets); err != nil {
		t.Fatalf("schedule p2: %v", err)
	}

	if _, err := sched.CancelFor("u1", "p1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	jobs, err := sched.JobsFor("u1", "p2")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	for _, j := range jobs {
		if j.Status != model.JobScheduled {
			t.Errorf("p2 offset %d status = %s, want scheduled", j.OffsetDays, j.Status)
		}
	}
}

func TestDueJobsOrdering(t *testing.T) {
	sched := setupScheduler(t)
	sched.SetClock(fixedClock(time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)))

	// p1 opens April 1, p2 opens April 8: p2's 7-day mark and p1's 0-day mark
	// land on the same midnight.
	p1 := testProgram("p1", "농민수당", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	p2 := testProgram("p2", "친환경 직불금", time.Date(2025, 4, 8, 0, 0, 0, 0, time.UTC))
	if _, err := sched.ScheduleFor("u1", p1, model.DefaultReminderOffsets); err != nil {
		t.Fatalf("schedule p1: %v", err)
	}
	if _, err := sched.ScheduleFor("u1", p2, model.DefaultReminderOffsets); err != nil {
		t.Fatalf("schedule p2: %v", err)
	}

	due, err := sched.DueJobs("u1", time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	// Due by April 1 noon: p1 offsets 7, 3, 1, 0 and p2 offset 7.
	if len(due) != 5 {
		t.Fatalf("got %d due jobs, want 5", len(due))
	}
	for i := 1; i < len(due); i++ {
		prev, cur := due[i-1], due[i]
		if cur.FiresAt.Before(prev.FiresAt) {
			t.Errorf("due[%d] fires before due[%d]", i, i-1)
		}
		if cur.FiresAt.Equal(prev.FiresAt) && cur.OffsetDays > prev.OffsetDays {
			t.Errorf("tie at %v not ordered by offset descending", cur.FiresAt)
		}
	}
	// The April 1 tie: p2's 7-day reminder before p1's day-of reminder.
	last2 := due[len(due)-2:]
	if last2[0].ProgramID != "p2" || last2[0].OffsetDays != 7 {
		t.Errorf("tie order wrong: got %s/%d first", last2[0].ProgramID, last2[0].OffsetDays)
	}
	if last2[1].ProgramID != "p1" || last2[1].OffsetDays != 0 {
		t.Errorf("tie order wrong: got %s/%d last", last2[1].ProgramID, last2[1].OffsetDays)
	}
}

func TestDueJobsExcludesFutureAndTerminal(t *testing.T) {
	sched := setupScheduler(t)
	sched.SetClock(fixedClock(time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)))

	program := testProgram("p1", "농민수당", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	created, err := sched.ScheduleFor("u1", program, model.DefaultReminderOffsets)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	for _, job := range created {
		if job.OffsetDays == 7 {
			if err := sched.MarkFired(job); err != nil {
				t.Fatalf("mark fired: %v", err)
			}
		}
	}

	due, err := sched.DueJobs("u1", time.Date(2025, 3, 29, 6, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	// Only offset 3 is due: 7 already fired, 1 and 0 are in the future.
	if len(due) != 1 || due[0].OffsetDays != 3 {
		t.Fatalf("due = %v, want exactly the 3-day job", due)
	}
}

type staticInterests []string

func (s staticInterests) Interests(userID string) ([]string, error) { return s, nil }

type staticPrograms map[string]model.Program

func (s staticPrograms) GetByID(ctx context.Context, id string) (model.Program, error) {
	p, ok := s[id]
	if !ok {
		return model.Program{}, context.Canceled
	}
	return p, nil
}

func TestRescheduleAllRebuildsJobs(t *testing.T) {
	sched := setupScheduler(t)
	now := time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)
	sched.SetClock(fixedClock(now))

	program := testProgram("p1", "농민수당", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	sched.SetSources(staticInterests{"p1"}, staticPrograms{"p1": program})

	if _, err := sched.ScheduleFor("u1", program, model.DefaultReminderOffsets); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := sched.CancelFor("u1", "p1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := sched.RescheduleAll(context.Background(), "u1"); err != nil {
		t.Fatalf("reschedule all: %v", err)
	}

	jobs, err := sched.JobsFor("u1", "p1")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	active := 0
	for _, j := range jobs {
		if j.Active() {
			active++
		}
	}
	if active != 4 {
		t.Errorf("%d active jobs after rebuild, want 4", active)
	}
}

func TestRescheduleAllSkipsMissingProgram(t *testing.T) {
	sched := setupScheduler(t)
	sched.SetClock(fixedClock(time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)))

	p1 := testProgram("p1", "농민수당", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	// u1 is interested in p1 and a program the catalog no longer carries.
	sched.SetSources(staticInterests{"p1", "gone"}, staticPrograms{"p1": p1})

	if err := sched.RescheduleAll(context.Background(), "u1"); err != nil {
		t.Fatalf("reschedule all: %v", err)
	}

	jobs, err := sched.JobsFor("u1", "p1")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if len(jobs) != 4 {
		t.Errorf("p1 has %d jobs, want 4", len(jobs))
	}
}

func TestNegativeOffsetIgnored(t *testing.T) {
	sched := setupScheduler(t)
	sched.SetClock(fixedClock(time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)))

	program := testProgram("p1", "농민수당", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	created, err := sched.ScheduleFor("u1", program, []int{-1, 3})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(created) != 1 || created[0].OffsetDays != 3 {
		t.Errorf("created %v, want only the 3-day job", created)
	}
}

func TestUserQueueSerializes(t *testing.T) {
	queue := NewUserQueue()

	counter := 0
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			queue.Do("u1", func() error {
				counter++
				return nil
			})
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}
