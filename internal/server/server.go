package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gochang/agrialimi/internal/backup"
	"github.com/gochang/agrialimi/internal/catalog"
	"github.com/gochang/agrialimi/internal/config"
	"github.com/gochang/agrialimi/internal/dispatch"
	"github.com/gochang/agrialimi/internal/handler"
	"github.com/gochang/agrialimi/internal/inapp"
	"github.com/gochang/agrialimi/internal/interest"
	"github.com/gochang/agrialimi/internal/middleware"
	"github.com/gochang/agrialimi/internal/push"
	"github.com/gochang/agrialimi/internal/scheduler"
	"github.com/gochang/agrialimi/internal/settings"
	"github.com/gochang/agrialimi/internal/stats"
	"github.com/gochang/agrialimi/internal/store"
)

// Server owns the full dependency graph and the HTTP routes.
type Server struct {
	hub       *inapp.Hub
	runner    *dispatch.Runner
	interestH *handler.InterestHandler
	settingsH *handler.SettingsHandler
	historyH  *handler.HistoryHandler
	catalogH  *handler.CatalogHandler
	pushH     *handler.PushHandler
	backupH   *handler.BackupHandler
	logger    *slog.Logger
}

// New wires every component. The returned server's Runner must be started by
// the caller (see cmd/agrialimi).
func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	kv := store.NewKV(db)
	history := store.NewHistoryLog(kv)
	subs := store.NewSubscriptionStore(kv)

	hub := inapp.NewHub(logger.With("component", "inapp"))

	catalogSvc := catalog.NewService(catalog.Config{
		URL: cfg.CatalogURL,
		TTL: cfg.CatalogTTL,
	}, kv, logger.With("component", "catalog"))

	queue := scheduler.NewUserQueue()
	sched := scheduler.New(kv, queue, cfg.Location(), logger.With("component", "scheduler"))

	registry := interest.NewRegistry(kv, sched, catalogSvc, history, logger.With("component", "interest"))
	sched.SetSources(registry, catalogSvc)

	settingsCtl := settings.NewController(kv, sched, logger.With("component", "settings"))

	pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)

	dispatcher := dispatch.New(
		sched, settingsCtl, registry, subs, history, catalogSvc,
		pushSvc, hub, logger.With("component", "dispatch"),
	)
	runner := dispatch.NewRunner(dispatcher, cfg.SweepInterval, cfg.SweepCron, logger.With("component", "dispatch"))

	backupMgr := backup.NewManager(backup.Config{Dir: cfg.BackupDir}, kv, logger.With("component", "backup"))
	aggregator := stats.NewAggregator(history)

	return &Server{
		hub:       hub,
		runner:    runner,
		interestH: handler.NewInterestHandler(registry, sched, logger.With("component", "interest_handler")),
		settingsH: handler.NewSettingsHandler(settingsCtl, logger.With("component", "settings_handler")),
		historyH:  handler.NewHistoryHandler(history, dispatcher, aggregator, logger.With("component", "history_handler")),
		catalogH:  handler.NewCatalogHandler(catalogSvc, logger.With("component", "catalog_handler")),
		pushH:     handler.NewPushHandler(subs, pushSvc, logger.With("component", "push_handler")),
		backupH:   handler.NewBackupHandler(backupMgr, logger.With("component", "backup_handler")),
		logger:    logger,
	}
}

// Runner returns the dispatch runner for lifecycle management.
func (s *Server) Runner() *dispatch.Runner {
	return s.runner
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Catalog
	mux.HandleFunc("GET /api/programs", s.catalogH.List)
	mux.HandleFunc("POST /api/programs/refresh", s.catalogH.Refresh)

	// Interests
	mux.HandleFunc("GET /api/users/{user_id}/interests", s.interestH.List)
	mux.HandleFunc("POST /api/users/{user_id}/interests/{program_id}/toggle", s.interestH.Toggle)

	// Settings
	mux.HandleFunc("GET /api/users/{user_id}/settings", s.settingsH.Get)
	mux.HandleFunc("PUT /api/users/{user_id}/settings", s.settingsH.Update)

	// History, acknowledgments, stats
	mux.HandleFunc("GET /api/users/{user_id}/history", s.historyH.List)
	mux.HandleFunc("POST /api/users/{user_id}/history/{program_id}/opened", s.historyH.Opened)
	mux.HandleFunc("GET /api/users/{user_id}/stats", s.historyH.Stats)

	// Push subscriptions
	mux.HandleFunc("POST /api/users/{user_id}/push/subscriptions", s.pushH.Subscribe)
	mux.HandleFunc("GET /api/users/{user_id}/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("DELETE /api/users/{user_id}/push/subscriptions/{id}", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)

	// Backup
	mux.HandleFunc("GET /api/backup/export", s.backupH.Export)
	mux.HandleFunc("POST /api/backup/import", s.backupH.Import)

	// In-app surface
	mux.HandleFunc("GET /ws", inapp.HandleWebSocket(s.hub, s.logger.With("component", "inapp")))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
