package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tripbuilder/crmsync/internal/api"
	"tripbuilder/crmsync/internal/config"
	"tripbuilder/crmsync/internal/jobs"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/routes"
	"tripbuilder/crmsync/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logging.Init(cfg.AppEnv, cfg.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Close()

	logging.Info("crmsync server starting up",
		"environment", cfg.AppEnv,
		"timestamp", time.Now().Format(time.RFC3339),
	)
	if err := cfg.RequireRemote(); err != nil {
		logging.Fatal("CRM credentials missing", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := api.InitDependencies(cfg, reg)
	if err != nil {
		logging.Fatal("Failed to initialize dependencies", "error", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logging.Warn("Failed to close connections", "error", err)
		}
	}()

	jobs.InitializeJobs(ctx, cfg.Sync, deps.Jobs.FullSync, deps.Jobs.Pending)
	workers.InitWorkers(ctx, deps.Services.PushQueue, deps.Services.Pusher, deps.Services.Ledger)

	upSince := time.Now()
	handlers := api.NewHandlers(ctx, deps)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes.RegisterRoutes(deps, handlers, reg, upSince),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info("Server starting", "port", cfg.Port, "environment", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logging.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Graceful shutdown failed", "error", err)
	}
}
