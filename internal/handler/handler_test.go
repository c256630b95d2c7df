package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gochang/agrialimi/internal/catalog"
	"github.com/gochang/agrialimi/internal/database"
	"github.com/gochang/agrialimi/internal/interest"
	"github.com/gochang/agrialimi/internal/model"
	"github.com/gochang/agrialimi/internal/scheduler"
	"github.com/gochang/agrialimi/internal/settings"
	"github.com/gochang/agrialimi/internal/store"
)

func setupMux(t *testing.T) *http.ServeMux {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := store.NewKV(db)
	history := store.NewHistoryLog(kv)

	catalogSvc := catalog.NewService(catalog.Config{TTL: time.Hour}, kv, logger)
	catalogSvc.Seed([]model.Program{
		{
			ID:   "p1",
			Name: "농민수당",
			Window: model.ApplicationWindow{
				Start: time.Date(2125, 4, 1, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2125, 4, 30, 0, 0, 0, 0, time.UTC),
			},
		},
	})

	sched := scheduler.New(kv, scheduler.NewUserQueue(), time.UTC, logger)
	registry := interest.NewRegistry(kv, sched, catalogSvc, history, logger)
	sched.SetSources(registry, catalogSvc)
	settingsCtl := settings.NewController(kv, sched, logger)

	interestH := NewInterestHandler(registry, sched, logger)
	settingsH := NewSettingsHandler(settingsCtl, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/{user_id}/interests", interestH.List)
	mux.HandleFunc("POST /api/users/{user_id}/interests/{program_id}/toggle", interestH.Toggle)
	mux.HandleFunc("GET /api/users/{user_id}/settings", settingsH.Get)
	mux.HandleFunc("PUT /api/users/{user_id}/settings", settingsH.Update)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestToggleEndpoint(t *testing.T) {
	mux := setupMux(t)

	rec := doRequest(t, mux, http.MethodPost, "/api/users/u1/interests/p1/toggle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Result string              `json:"result"`
		Jobs   []model.ReminderJob `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result != "added" {
		t.Errorf("result = %q, want added", resp.Result)
	}
	if len(resp.Jobs) != 4 {
		t.Errorf("jobs = %d, want 4", len(resp.Jobs))
	}

	rec = doRequest(t, mux, http.MethodGet, "/api/users/u1/interests", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Interests []string `json:"interests"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Interests) != 1 || list.Interests[0] != "p1" {
		t.Errorf("interests = %v, want [p1]", list.Interests)
	}
}

func TestToggleUnknownProgramEndpoint(t *testing.T) {
	mux := setupMux(t)

	rec := doRequest(t, mux, http.MethodPost, "/api/users/u1/interests/nope/toggle", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	mux := setupMux(t)

	rec := doRequest(t, mux, http.MethodGet, "/api/users/u1/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got model.NotificationSettings
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Enabled || got.PreferredTime != "08:00" {
		t.Errorf("defaults = %+v", got)
	}

	rec = doRequest(t, mux, http.MethodPut, "/api/users/u1/settings",
		`{"enabled":true,"preferred_time":"21:00","sound_enabled":false,"vibration_enabled":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, mux, http.MethodGet, "/api/users/u1/settings", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PreferredTime != "21:00" || got.SoundEnabled {
		t.Errorf("persisted = %+v", got)
	}
}

func TestSettingsRejectsBadPayload(t *testing.T) {
	mux := setupMux(t)

	rec := doRequest(t, mux, http.MethodPut, "/api/users/u1/settings", `{"preferred_time":"25:99"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad time status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, mux, http.MethodPut, "/api/users/u1/settings", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", rec.Code)
	}
}
