package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/juaniAla/turnosColMag/internal/api/router"
	"github.com/juaniAla/turnosColMag/internal/audit"
	appconfig "github.com/juaniAla/turnosColMag/internal/config"
	"github.com/juaniAla/turnosColMag/internal/credential"
	"github.com/juaniAla/turnosColMag/internal/directory"
	"github.com/juaniAla/turnosColMag/internal/notify"
	"github.com/juaniAla/turnosColMag/internal/observability/metrics"
	"github.com/juaniAla/turnosColMag/internal/turnos"
	"github.com/juaniAla/turnosColMag/internal/wizard"
	"github.com/juaniAla/turnosColMag/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting turnos API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"modo", cfg.Mode.String(),
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// The audit trail runs on database/sql over the same database.
	auditDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open audit db", "error", err)
		os.Exit(1)
	}
	defer auditDB.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	codec, err := credential.New(cfg.SecretKey)
	if err != nil {
		logger.Error("failed to initialize credential codec", "error", err)
		os.Exit(1)
	}

	auditor := audit.NewService(auditDB)
	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	turnosRepo := turnos.NewPostgresRepository(pool)
	directoryRepo := directory.NewRepository(pool)
	draftStore := wizard.NewRedisDraftStore(redisClient, cfg.DraftTTL)
	filterStore := turnos.NewFilterStore(redisClient, 0)

	var emailSender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.MailFrom,
		FromName:  cfg.MailFromName,
	}, logger); sg != nil {
		emailSender = sg
	} else {
		logger.Info("sendgrid not configured, emails will only be logged")
		emailSender = notify.NewStubEmailSender(logger)
	}
	notifier := notify.NewService(emailSender, directoryRepo, cfg.Mode, cfg.ReceiptExpiryDays, logger)

	wizardService := wizard.NewService(turnosRepo, draftStore, directoryRepo, notifier, auditor, bookingMetrics, codec, cfg.Mode, logger)
	turnosService := turnos.NewService(turnosRepo, notifier, auditor, bookingMetrics, codec, cfg.RejectionReason, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		WizardHandler:      wizard.NewHandler(wizardService, logger),
		TurnosHandler:      turnos.NewHandler(turnosService, filterStore, logger),
		DirectoryHandler:   directory.NewHandler(directoryRepo, logger),
		MetricsHandler:     promhttp.Handler(),
		ActorJWTSecret:     cfg.ActorJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
