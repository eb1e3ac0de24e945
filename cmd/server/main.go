package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/paybridge/ipn/internal/adapters/sqlite"
	"github.com/paybridge/ipn/internal/app/services"
	"github.com/paybridge/ipn/internal/audit"
	"github.com/paybridge/ipn/internal/config"
	"github.com/paybridge/ipn/internal/db"
	"github.com/paybridge/ipn/internal/observability"
	"github.com/paybridge/ipn/internal/orders"
	"github.com/paybridge/ipn/internal/server"
	"github.com/paybridge/ipn/internal/server/routes"
	ipnwebhook "github.com/paybridge/ipn/internal/webhooks/ipn"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	handler := observability.WrapSlogHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log := slog.New(handler)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	auditLogger := audit.NewLogger(sqlite.NewSharedAuditStoreFactory(database), audit.Config{
		BufferSize:    cfg.Audit.BufferSize,
		FlushInterval: cfg.AuditFlushInterval(),
	}).Start()

	authenticator := services.NewAuthenticator(services.AuthenticatorConfig{
		AllowedIPs:      cfg.Webhook.AllowedIPs,
		Secret:          cfg.Webhook.Secret,
		TimestampCheck:  cfg.Webhook.TimestampCheck,
		TimestampMaxAge: cfg.TimestampMaxAge(),
	})
	orderClient := orders.NewClient(cfg.OrderSvc.URL, cfg.OrderSvc.APIKey, cfg.OrderServiceTimeout())
	pipeline := services.NewPipeline(authenticator, orderClient, auditLogger, "payment_ipn")

	srv := server.New(log)
	handlerIPN := ipnwebhook.NewHandler(pipeline, cfg.Service.Name, cfg.Service.Version).
		WithProxyHeaders(cfg.Server.TrustProxyHeaders)
	srv.RegisterRouter(routes.NewWebhookRoutes(handlerIPN))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		slog.Info("Starting server", "port", cfg.Server.Port, "service", cfg.Service.Name, "version", cfg.Service.Version)
		if err := srv.Start(addr); err != nil {
			slog.Error("Server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shut down server", "error", err)
	}
	if err := auditLogger.Close(shutdownCtx); err != nil {
		slog.Error("Failed to drain audit buffers", "error", err)
	}
}
