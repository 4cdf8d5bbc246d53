// Package main provides the operator console server for shopdesk.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/shopdesk/internal/chat"
	"github.com/raphaelgruber/shopdesk/internal/config"
	"github.com/raphaelgruber/shopdesk/internal/db"
	"github.com/raphaelgruber/shopdesk/internal/metrics"
	"github.com/raphaelgruber/shopdesk/internal/server"
	"github.com/raphaelgruber/shopdesk/internal/service"
	"golang.org/x/sync/errgroup"
)

// version is set at build time.
var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse flags
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, closeLog := config.SetupLogger("shopdesk-server", cfg.LogFile, cfg.LogLevel)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	logger.Info("starting shopdesk-server", "version", version, "port", cfg.ServerPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mc := metrics.NewCollector()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	dbClient, err := db.NewClient(connectCtx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger, mc)
	if err != nil {
		cancel()
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	if err := dbClient.InitSchema(connectCtx); err != nil {
		cancel()
		return fmt.Errorf("initialize schema: %w", err)
	}

	// Wipe database if requested (via flag or env var)
	if *wipeDB || os.Getenv("SHOPDESK_WIPE_DB") == "true" {
		if err := dbClient.WipeData(connectCtx); err != nil {
			cancel()
			return fmt.Errorf("wipe database: %w", err)
		}
	}
	cancel()

	sessions := service.NewSessionManager(dbClient, chat.Options{
		RefireOnReselect:   cfg.RefireOnReselect,
		RefireOnPush:       cfg.RefireOnPush,
		MarkOperatorOnline: cfg.MarkOperatorOnline,
		WriteTimeout:       cfg.WriteTimeout,
		Logger:             logger,
		Metrics:            mc,
	})

	srv := server.New(ctx, sessions, mc, version, logger)

	httpServer := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     srv.Handler(),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("console endpoint available", "url", fmt.Sprintf("ws://localhost:%s/ws", cfg.ServerPort))
		logger.Info("stats endpoint available", "url", fmt.Sprintf("http://localhost:%s/stats", cfg.ServerPort))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Hijacked websocket connections are not tracked by Shutdown.
		sessions.CloseAll()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
