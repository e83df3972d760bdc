// Package main implements the status watcher daemon. It runs the
// reconciliation engine against the account service and exposes health,
// status, and metrics endpoints for operations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upvotelabs/upvote-client/internal/app"
	"github.com/upvotelabs/upvote-client/internal/config"
	"github.com/upvotelabs/upvote-client/internal/metrics"
	"github.com/upvotelabs/upvote-client/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	payments := flag.String("payments", "", "Comma-separated payment ids to watch")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("watcher").WithError(err).Error("load configuration")
		os.Exit(1)
	}

	log := logger.New("watcher", cfg.Log.Level)

	application, err := app.New(app.Options{Config: cfg, Log: log})
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	if err := application.SeedOrders(ctx); err != nil {
		log.WithError(err).Warn("initial order load failed; will retry on next poll")
	}
	for _, id := range strings.Split(*payments, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := application.WatchPayment(id); err != nil {
			log.WithError(err).WithField("payment_id", id).Warn("watch payment failed")
		}
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(application.Status()); err != nil {
			log.WithError(err).Warn("encode status response")
		}
	})
	router.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         cfg.Ops.ListenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("ops endpoints listening on %s", cfg.Ops.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("ops server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("ops server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}
}
