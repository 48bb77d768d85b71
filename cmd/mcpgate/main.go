// Package main is the entry point for the mcpgate server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mcpgate/internal/auth"
	"mcpgate/internal/billing"
	"mcpgate/internal/config"
	"mcpgate/internal/credentials"
	"mcpgate/internal/crypto"
	"mcpgate/internal/embedder"
	"mcpgate/internal/gatewaysvc"
	"mcpgate/internal/httpapi"
	"mcpgate/internal/mcpsvc/auditlog"
	"mcpgate/internal/mcpsvc/bundle"
	"mcpgate/internal/mcpsvc/catalog"
	"mcpgate/internal/mcpsvc/registry"
	"mcpgate/internal/mcpsvc/search"
	"mcpgate/internal/oauth2client"
	"mcpgate/internal/storage/postgres"
	"mcpgate/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to configuration file")
	flag.Parse()

	cfg := config.LoadOrDefault(*configPath)

	logger := telemetry.NewJSONLogger(cfg.Telemetry.LogLevel)
	slog.SetDefault(logger)
	tlog := telemetry.NewSlogAdapter(logger)

	slog.Info("starting mcpgate", "http_port", cfg.Server.HTTPPort)

	pgStore, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		slog.Error("failed to initialize postgres storage", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	encryption, err := crypto.NewEncryptionServiceFromString(cfg.Security.EncryptionKeyB64)
	if err != nil {
		slog.Error("failed to initialize encryption service", "error", err)
		os.Exit(1)
	}

	emb, err := embedder.NewFromConfig(cfg.Embedder)
	if err != nil {
		slog.Error("failed to initialize embedder", "error", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(pgStore, cfg.Security)
	if err != nil {
		slog.Error("failed to initialize auth service", "error", err)
		os.Exit(1)
	}

	credStore := credentials.NewStore(pgStore, encryption, cfg.Credentials.RefreshLookahead)
	reg := registry.NewRegistry(pgStore, emb)
	bundles := bundle.NewManager(pgStore)

	redirectURL := fmt.Sprintf("%s/connected-accounts/oauth2/callback", cfg.Server.PublicBaseURL)
	oauth2Mgr := oauth2client.NewManager(pgStore.OAuth2Clients, redirectURL)

	syncer := catalog.NewSyncer(pgStore, credStore, emb, metrics)
	billingService := billing.NewService(pgStore, cfg.Billing.StripeAPIKey, cfg.Billing.StripeWebhookSecret, cfg.Server.PublicBaseURL)
	ranker := search.NewRanker(emb)
	auditLogger := auditlog.NewLogger(pgStore, tlog)

	dispatcher := gatewaysvc.NewDispatcher(pgStore, credStore, oauth2Mgr, ranker, emb, auditLogger, metrics, tlog)

	server := httpapi.NewServer(httpapi.Deps{
		Config:     cfg,
		Store:      pgStore,
		Auth:       authService,
		Registry:   reg,
		Bundles:    bundles,
		Creds:      credStore,
		OAuth2:     oauth2Mgr,
		Syncer:     syncer,
		Billing:    billingService,
		AuditLog:   auditLogger,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     tlog,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	go func() {
		slog.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during http server shutdown", "error", err)
	}
	slog.Info("mcpgate stopped")
}
