// Package main runs the offline sync service for point-of-sale terminals.
// The local UI talks to it over REST/WebSocket on localhost; the service
// persists writes locally and replays them to the shop's backend when a
// connection is available.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warungkita/possync/internal/config"
	"github.com/warungkita/possync/internal/db"
	apperrors "github.com/warungkita/possync/internal/errors"
	"github.com/warungkita/possync/internal/httpapi"
	"github.com/warungkita/possync/internal/logging"
	"github.com/warungkita/possync/internal/models"
	"github.com/warungkita/possync/internal/offline"
	"github.com/warungkita/possync/internal/remote"
	syncpkg "github.com/warungkita/possync/internal/sync"
	"github.com/warungkita/possync/internal/sync/conflict"
	"github.com/warungkita/possync/internal/sync/scheduler"
	"github.com/warungkita/possync/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("Invalid configuration", err)
		os.Exit(1)
	}
	logging.Init(os.Stdout, cfg.LogLevel)

	store, err := db.Open(cfg.DataDir)
	if err != nil {
		logging.Error("Failed to open local store", err, map[string]interface{}{
			"dataDir": cfg.DataDir,
		})
		os.Exit(1)
	}
	defer store.Close()

	svc := offline.NewService(store)
	hub := ws.NewHub()
	defer hub.Close()

	var remoteAPI syncpkg.RemoteAPI
	if cfg.RemoteBaseURL != "" {
		remoteAPI = remote.NewClient(cfg.RemoteBaseURL, cfg.RemoteTimeout)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runner *syncpkg.Runner
	var sched *scheduler.Scheduler
	if remoteAPI != nil {
		runner = syncpkg.NewRunner(svc, remoteAPI, hub)
		sched = scheduler.New(runner, svc, &scheduler.Config{
			SyncInterval:        cfg.SyncInterval,
			MaintenanceInterval: cfg.MaintenanceInterval,
		})
		sched.Start(ctx)
		defer sched.Stop()
	} else {
		logging.Warn("No remote URL configured, running storage-only")
		runner = syncpkg.NewRunner(svc, unconfiguredRemote{}, hub)
	}

	api := httpapi.NewServer(svc, runner, conflict.NewResolver(svc), sched)
	router := api.Router()
	router.HandleFunc("/ws", hub.Handler())
	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"possync"}`))
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Server starting", map[string]interface{}{
			"addr":    cfg.HTTPAddr,
			"dataDir": cfg.DataDir,
		})
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("Shutting down", map[string]interface{}{"signal": sig.String()})
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logging.Error("Server failed", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Forced shutdown", map[string]interface{}{"error": err.Error()})
	}
}

// unconfiguredRemote rejects replays when no backend URL is set. Records stay
// pending until the operator configures POSSYNC_REMOTE_URL and restarts.
type unconfiguredRemote struct{}

var errNoRemote = apperrors.New(apperrors.ErrRemoteReplayFailed, "no remote endpoint configured")

func (unconfiguredRemote) ReplaySale(ctx context.Context, sale *models.PendingSale) error {
	return errNoRemote
}

func (unconfiguredRemote) ReplayInventory(ctx context.Context, update *models.PendingInventoryUpdate) error {
	return errNoRemote
}
