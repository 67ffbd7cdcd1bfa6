// Package main runs the collabd collaborative editing server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/planforge/collabd/internal/api"
	"github.com/planforge/collabd/internal/collab"
	"github.com/planforge/collabd/internal/collab/presence"
	"github.com/planforge/collabd/internal/config"
	"github.com/planforge/collabd/internal/logging"
	"github.com/planforge/collabd/internal/store"
	"github.com/planforge/collabd/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "collabd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(os.Stdout, logging.ParseLevel(cfg.LogLevel))

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	sqlStore := store.NewSQLiteStore(db)
	writerCfg := store.DefaultWriterConfig()
	writerCfg.QueueSize = cfg.WriteQueueSize
	writer := store.NewWriter(sqlStore, writerCfg)
	defer writer.Close()

	hub := ws.NewHub()
	defer hub.Close()

	registry := collab.NewRegistry(collab.Config{
		IdleGrace:    cfg.IdleGrace,
		ReapInterval: cfg.ReapInterval,
		Presence: presence.Config{
			Timeout:       cfg.PresenceTimeout,
			SweepInterval: cfg.SweepInterval,
		},
	}, hub.Publish, writer)

	if err := restoreSessions(registry, sqlStore); err != nil {
		return fmt.Errorf("restore sessions: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registry.Start(ctx)
	defer registry.Stop()

	wsHandler := ws.NewHandler(hub, registry, ws.HeaderAuthenticator{})
	router := api.NewRouter(registry, wsHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  0, // websocket connections stay open
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("server listening", logging.Fields{"port": cfg.Port})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.Info("shutting down", logging.Fields{"signal": sig.String()})
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// restoreSessions rebuilds in-memory sessions from the durable store so a
// restart does not lose committed history.
func restoreSessions(registry *collab.Registry, s *store.SQLiteStore) error {
	infos, err := s.LoadSessions()
	if err != nil {
		return err
	}
	for _, info := range infos {
		changes, err := s.LoadChanges(info.ID)
		if err != nil {
			return err
		}
		conflicts, err := s.LoadConflicts(info.ID)
		if err != nil {
			return err
		}
		if err := registry.Restore(info, changes, conflicts); err != nil {
			logging.Warn("session restore skipped", logging.Fields{
				"session_id": info.ID,
				"error":      err.Error(),
			})
			continue
		}
	}
	logging.Info("sessions restored", logging.Fields{"count": len(infos)})
	return nil
}
