package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"onboarding/internal/config"
	appdb "onboarding/internal/db"
	"onboarding/internal/handler"
	"onboarding/internal/httpserver"
	"onboarding/internal/repository"
	"onboarding/internal/service/admin"
	"onboarding/internal/service/auth"
	"onboarding/internal/service/journey"
	"onboarding/pkg/db"
	"onboarding/pkg/logger"
	"onboarding/pkg/mq"
	pkgotel "onboarding/pkg/otel"
	"onboarding/pkg/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	log.Info("Starting onboarding api...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("port", cfg.Server.Port),
		zap.Bool("mq_enabled", cfg.MQ.URL != ""),
		zap.Bool("require_admin", cfg.Auth.RequireAdmin),
	)

	shutdownTracing, err := pkgotel.Init(cfg.Otel, log)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := appdb.Migrate(ctx, dbConn, log); err != nil {
		log.Fatal("Failed to migrate schema", zap.Error(err))
	}
	if cfg.Seed.Enabled {
		if err := appdb.Seed(ctx, dbConn, log); err != nil {
			log.Fatal("Failed to seed data", zap.Error(err))
		}
	}

	// MQ publisher for progress notifications (optional)
	var (
		publisher  *mq.Publisher
		outboxRepo *outbox.Repository
		readyMQ    httpserver.Connected
	)
	if cfg.MQ.URL != "" && cfg.Outbox.Enabled {
		publisher, err = mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init publisher", zap.Error(err))
		}
		defer publisher.Close()
		outboxRepo = outbox.NewRepository(dbConn)
		readyMQ = publisher
	} else {
		log.Info("Progress notifications disabled")
	}

	store := repository.NewStore(dbConn, outboxRepo, log)
	engine := journey.NewEngine(journey.NewPGStore(store), log)
	adminService := admin.NewService(store, log)
	authService := auth.NewService(store, cfg.JWT.Secret, cfg.SessionTTL(), log)

	handlers := httpserver.Handlers{
		Journey: handler.NewJourneyHandler(engine, adminService, log),
		Admin:   handler.NewAdminHandler(adminService, log),
		Auth:    handler.NewAuthHandler(authService, cfg.Auth.CookieName, cfg.SessionTTL(), log),
	}

	if outboxRepo != nil {
		dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
			WithInterval(cfg.OutboxInterval()).
			WithBatchSize(cfg.Outbox.BatchSize).
			WithMaxRetries(cfg.Outbox.MaxRetries)
		go dispatcher.Start(ctx)

		replay := outbox.NewReplayService(outboxRepo, publisher, log)
		handlers.Outbox = handler.NewOutboxHandler(replay, log)
	}

	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	router := httpserver.NewRouter(handlers, authService, httpserver.Options{
		ServiceName:  serviceName,
		StaticDir:    cfg.Server.StaticDir,
		AllowOrigins: cfg.Server.AllowOrigins,
		RequireAdmin: cfg.Auth.RequireAdmin,
		CookieName:   cfg.Auth.CookieName,
	}, log, dbConn, readyMQ)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down onboarding api gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("onboarding api shutdown complete")
}
