package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"beacon/internal/api"
	"beacon/internal/config"
	"beacon/internal/db"
	"beacon/internal/notify"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting server", "name", cfg.Server.Name)

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	if err := os.MkdirAll(cfg.Storage.AvatarDir, 0o755); err != nil {
		slog.Error("failed to create avatar directory", "error", err)
		os.Exit(1)
	}

	users := db.NewUserRepository(database)
	pending := db.NewPendingRegistrationRepository(database)
	otpCodes := db.NewOTPRepository(database)
	sessions := db.NewSessionRepository(database)
	refreshTokens := db.NewRefreshTokenRepository(database)
	contacts := db.NewContactRepository(database)
	places := db.NewSafePlaceRepository(database)
	messages := db.NewMessageRepository(database)
	preferences := db.NewPreferenceRepository(database)

	cleanupService := db.NewCleanupService(otpCodes, refreshTokens)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	go cleanupService.Start(cleanupCtx)

	var emailSender notify.Sender
	if cfg.Email.SMTP.Host != "" {
		emailSender = notify.NewSMTPSender(
			cfg.Email.SMTP.Host,
			cfg.Email.SMTP.Port,
			cfg.Email.SMTP.Username,
			cfg.Email.SMTP.Password,
			cfg.Email.SMTP.From,
		)
		slog.Info("email configured", "host", cfg.Email.SMTP.Host, "port", cfg.Email.SMTP.Port)
	} else {
		emailSender = notify.NewLogSender()
		slog.Warn("smtp not configured, verification codes will be logged")
	}
	smsSender := notify.NewSMSLogSender()

	server, err := api.NewServer(
		cfg,
		database,
		emailSender,
		smsSender,
		users,
		pending,
		otpCodes,
		sessions,
		refreshTokens,
		contacts,
		places,
		messages,
		preferences,
	)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server,
	}

	go func() {
		slog.Info("server listening", "addr", addr, "base_url", cfg.Server.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")

	cleanupCancel()

	server.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
