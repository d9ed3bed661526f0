package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"onboarding/internal/config"
	appdb "onboarding/internal/db"
	"onboarding/internal/mqhandler"
	"onboarding/internal/repository"
	"onboarding/internal/service/journey"
	"onboarding/pkg/db"
	"onboarding/pkg/logger"
	"onboarding/pkg/mq"
	pkgotel "onboarding/pkg/otel"
	"onboarding/pkg/outbox"
	redisclient "onboarding/pkg/redis"
	"onboarding/pkg/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	if cfg.MQ.URL == "" {
		log.Fatal("mq.url is required for the worker")
	}

	log.Info("Starting journey worker...",
		zap.String("queue", cfg.MQ.EventQueue),
		zap.String("routing_key", cfg.MQ.EventKey),
		zap.Int64("max_retries", cfg.MQ.MaxRetries),
	)

	shutdownTracing, err := pkgotel.Init(cfg.Otel, log)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	if err := appdb.Migrate(context.Background(), dbConn, log); err != nil {
		log.Fatal("Failed to migrate schema", zap.Error(err))
	}

	// Redis is optional; without it dedup and retry counting are skipped
	rdb := redisclient.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := redisclient.Ping(pingCtx, rdb); err != nil {
			log.Warn("Redis not reachable, dedup degraded", zap.Error(err))
		}
		pingCancel()
	}
	deduper := util.NewDeduper(rdb, cfg.DedupTTL(), log)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	var outboxRepo *outbox.Repository
	if cfg.Outbox.Enabled {
		outboxRepo = outbox.NewRepository(dbConn)
	}
	store := repository.NewStore(dbConn, outboxRepo, log)
	engine := journey.NewEngine(journey.NewPGStore(store), log)
	appEventHandler := mqhandler.NewAppEventHandler(engine, deduper, retryCounter, cfg.MQ.MaxRetries, log)

	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.MQ.EventQueue, cfg.MQ.EventKey, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(appEventHandler.Handle)

	go func() {
		log.Info("Starting app event consumer...")
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("App event consumer failed", zap.Error(err))
		}
	}()

	// health + metrics
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := dbConn.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		if !consumer.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := config.WorkerAddr()
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Worker HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("journey worker is fully initialized and running", zap.String("http_addr", addr))

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down journey worker gracefully...")
	consumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Worker HTTP server shutdown error", zap.Error(err))
	}

	log.Info("journey worker shutdown complete")
}
