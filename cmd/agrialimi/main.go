package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gochang/agrialimi/internal/config"
	"github.com/gochang/agrialimi/internal/database"
	"github.com/gochang/agrialimi/internal/logging"
	"github.com/gochang/agrialimi/internal/push"
	"github.com/gochang/agrialimi/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		// Push delivery needs a stable key pair across restarts; generate one
		// for first-run convenience and tell the operator to pin it.
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			logger.Error("generate VAPID keys", "error", err)
			os.Exit(1)
		}
		cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey = pub, priv
		logger.Warn("generated ephemeral VAPID keys; set ALIMI_VAPID_PUBLIC_KEY and ALIMI_VAPID_PRIVATE_KEY to persist subscriptions across restarts")
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(db, cfg, logger)

	runnerCtx, cancelRunner := context.WithCancel(context.Background())
	srv.Runner().Start(runnerCtx)
	defer cancelRunner()

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("agrialimi listening", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	srv.Runner().Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
