package interest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gochang/agrialimi/internal/database"
	"github.com/gochang/agrialimi/internal/model"
	"github.com/gochang/agrialimi/internal/scheduler"
	"github.com/gochang/agrialimi/internal/store"
)

type fakeCatalog map[string]model.Program

func (f fakeCatalog) GetByID(ctx context.Context, id string) (model.Program, error) {
	p, ok := f[id]
	if !ok {
		return model.Program{}, errors.New("program not found")
	}
	return p, nil
}

func setupRegistry(t *testing.T, catalog fakeCatalog) (*Registry, *scheduler.Scheduler, *store.HistoryLog) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := store.NewKV(db)
	history := store.NewHistoryLog(kv)
	sched := scheduler.New(kv, scheduler.NewUserQueue(), time.UTC, logger)
	sched.SetClock(func() time.Time { return time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC) })

	registry := NewRegistry(kv, sched, catalog, history, logger)
	sched.SetSources(registry, catalog)
	return registry, sched, history
}

func testCatalog() fakeCatalog {
	return fakeCatalog{
		"p1": {
			ID:   "p1",
			Name: "농민수당",
			Window: model.ApplicationWindow{
				Start: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
			},
		},
	}
}

func TestToggleAddSchedulesReminders(t *testing.T) {
	registry, sched, _ := setupRegistry(t, testCatalog())

	result, err := registry.Toggle(context.Background(), "u1", "p1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if result != Added {
		t.Errorf("result = %s, want added", result)
	}

	ids, err := registry.List("u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != "p1" {
		t.Errorf("interests = %v, want [p1]", ids)
	}

	jobs, err := sched.JobsFor("u1", "p1")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if len(jobs) != 4 {
		t.Errorf("toggle created %d jobs, want 4", len(jobs))
	}
}

func TestToggleRemoveCancelsReminders(t *testing.T) {
	registry, sched, _ := setupRegistry(t, testCatalog())

	if _, err := registry.Toggle(context.Background(), "u1", "p1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	result, err := registry.Toggle(context.Background(), "u1", "p1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if result != Removed {
		t.Errorf("result = %s, want removed", result)
	}

	ids, err := registry.List("u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("interests = %v, want empty", ids)
	}

	jobs, err := sched.JobsFor("u1", "p1")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	for _, j := range jobs {
		if j.Status != model.JobCancelled {
			t.Errorf("offset %d status = %s, want cancelled", j.OffsetDays, j.Status)
		}
	}
}

func TestToggleCycleKeepsOneActiveSet(t *testing.T) {
	registry, sched, _ := setupRegistry(t, testCatalog())

	// add, remove, add: repeated toggles must not accumulate active jobs.
	for i := 0; i < 3; i++ {
		if _, err := registry.Toggle(context.Background(), "u1", "p1"); err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
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
		t.Errorf("%d active jobs after toggle cycle, want 4", active)
	}
}

func TestToggleUnknownProgram(t *testing.T) {
	registry, _, _ := setupRegistry(t, testCatalog())

	if _, err := registry.Toggle(context.Background(), "u1", "nope"); err == nil {
		t.Fatal("toggle of unknown program succeeded, want error")
	}

	// Failed toggle must not record membership.
	ids, err := registry.List("u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("interests = %v, want empty", ids)
	}
}

func TestToggleRemoveAfterProgramLeavesCatalog(t *testing.T) {
	catalog := testCatalog()
	registry, sched, _ := setupRegistry(t, catalog)

	if _, err := registry.Toggle(context.Background(), "u1", "p1"); err != nil {
		t.Fatalf("add: %v", err)
	}

	// The program drops out of the catalog; unmarking must still work.
	delete(catalog, "p1")

	result, err := registry.Toggle(context.Background(), "u1", "p1")
	if err != nil {
		t.Fatalf("remove after catalog loss: %v", err)
	}
	if result != Removed {
		t.Errorf("result = %s, want removed", result)
	}

	ids, err := registry.List("u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("interests = %v, want empty", ids)
	}

	jobs, err := sched.JobsFor("u1", "p1")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	for _, j := range jobs {
		if j.Status != model.JobCancelled {
			t.Errorf("offset %d status = %s, want cancelled", j.OffsetDays, j.Status)
		}
	}
}

func TestToggleRecordsUsage(t *testing.T) {
	registry, _, history := setupRegistry(t, testCatalog())

	if _, err := registry.Toggle(context.Background(), "u1", "p1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := registry.Toggle(context.Background(), "u1", "p1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	records, err := history.Usage("u1", 1)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d usage records, want 2", len(records))
	}
	if records[0].Action != "interest_removed" || records[1].Action != "interest_added" {
		t.Errorf("actions = %s, %s", records[0].Action, records[1].Action)
	}
}

func TestUsersListsEveryToggler(t *testing.T) {
	registry, _, _ := setupRegistry(t, testCatalog())

	for _, u := range []string{"u1", "u2"} {
		if _, err := registry.Toggle(context.Background(), u, "p1"); err != nil {
			t.Fatalf("toggle %s: %v", u, err)
		}
	}

	users, err := registry.Users()
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("users = %v, want 2 entries", users)
	}
}
