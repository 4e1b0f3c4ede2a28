package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/flashmart/coupon-service/internal/adapter/handler"
	"github.com/flashmart/coupon-service/internal/adapter/messaging"
	"github.com/flashmart/coupon-service/internal/adapter/storage"
	"github.com/flashmart/coupon-service/internal/adapter/userclient"
	"github.com/flashmart/coupon-service/internal/config"
	"github.com/flashmart/coupon-service/internal/core/service"
	"github.com/flashmart/coupon-service/internal/port"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "coupon-service").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime())
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping mysql")
	}
	logger.Info().Msg("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping redis")
	}
	logger.Info().Msg("connected to redis")

	// Storage adapters
	couponStore := storage.NewMySQLCouponStore(db, cfg.Issue.OnePerUser)
	outboxStore := storage.NewMySQLOutboxStore(db)
	templateCache := storage.NewRedisTemplateCache(rdb, couponStore, cfg.Issue.CacheTTL())
	mutex := storage.NewRedisMutex(rdb)

	// User verification, selected at composition time
	var users port.UserVerifier
	if cfg.Users.Stub {
		users = userclient.NewStubUserClient()
		logger.Warn().Msg("user verification stubbed out")
	} else {
		users = userclient.NewHTTPUserClient(cfg.Users.BaseURL, cfg.Users.Timeout())
	}

	// Core services
	issueService := service.NewIssueService(couponStore, templateCache, mutex, service.IssueConfig{
		LockWait:  cfg.Issue.LockWait(),
		LockLease: cfg.Issue.LockLease(),
	}, logger)
	coordinator := service.NewIssueCoordinator(issueService, templateCache, cfg.Issue.QueueSize, cfg.Issue.Workers, logger)
	gate := service.NewIssueGate(users, templateCache, coordinator, issueService, cfg.Issue.AsyncEnabled, logger)
	commandService := service.NewCommandService(couponStore, logger)
	usageService := service.NewUsageService(couponStore, logger)

	// Messaging
	orderPaidPublisher := messaging.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.OrderPaidTopic)
	defer orderPaidPublisher.Close()

	outboxWorker := service.NewOutboxWorker(outboxStore, orderPaidPublisher, service.OutboxWorkerConfig{
		PollInterval: cfg.Outbox.PollInterval(),
		BatchSize:    cfg.Outbox.BatchSize,
		MaxRetries:   cfg.Outbox.MaxRetries,
	}, logger)

	commandConsumer := messaging.NewCommandConsumer(cfg.Kafka.Brokers, cfg.Kafka.CommandTopic,
		cfg.Kafka.CommandReplyTopic, cfg.Kafka.CommandGroupID, commandService, logger)
	defer commandConsumer.Close()

	orderPaidConsumer := messaging.NewOrderPaidConsumer(cfg.Kafka.Brokers, cfg.Kafka.OrderPaidTopic,
		cfg.Kafka.OrderPaidGroupID, usageService, logger)
	defer orderPaidConsumer.Close()

	// Background loops. The coordinator runs on its own context so a signal
	// does not cancel its workers before they drain accepted tickets; the
	// context is cancelled only as a drain backstop during shutdown.
	coordCtx, coordCancel := context.WithCancel(context.Background())
	defer coordCancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coordinator.Start(coordCtx) })
	g.Go(func() error { return outboxWorker.Start(gctx) })
	g.Go(func() error { return commandConsumer.Start(gctx) })
	g.Go(func() error { return orderPaidConsumer.Start(gctx) })
	logger.Info().Int("workers", cfg.Issue.Workers).Msg("background workers started")

	// HTTP server
	httpHandler := handler.NewHTTPHandler(gate, coordinator, commandService, couponStore)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.HandleFunc("/api/coupons/issue", httpHandler.Issue)
	mux.HandleFunc("/api/coupons/issue/status", httpHandler.IssueStatus)
	mux.HandleFunc("/api/coupons/validate", httpHandler.Validate)
	mux.HandleFunc("/api/coupons", httpHandler.ListCoupons)

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: mux,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}

	// Stop admission, then wait for workers to drain what they accepted.
	// The backstop cancels the drain if the ledger is too slow to finish it.
	coordinator.Close()
	drainBackstop := time.AfterFunc(10*time.Second, coordCancel)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("background worker error")
	}
	drainBackstop.Stop()

	rdb.Close()
	db.Close()
	logger.Info().Msg("shut down cleanly")
}
