package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"canister-transfer-backend/config"
	"canister-transfer-backend/internal/api"
	"canister-transfer-backend/internal/db"
	"canister-transfer-backend/internal/estimator"
	"canister-transfer-backend/internal/lease"
	"canister-transfer-backend/internal/logging"
	"canister-transfer-backend/internal/notification"
	"canister-transfer-backend/internal/store"
	"canister-transfer-backend/internal/transfer"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Service)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", configPath))

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	var schedulerLease lease.Lease
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		schedulerLease = lease.NewRedisLease(rdb, cfg.Scheduler.LeaseName, cfg.Scheduler.LeaseTTL, logger)
		logger.Info("scheduler lease kept in redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		schedulerLease = lease.NewStoreLease(appStore, cfg.Scheduler.LeaseName, cfg.Scheduler.LeaseTTL, logger)
	}

	var sinks notification.Multi
	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, webpushOptions, logger)
		pool.Start(ctx)
		sinks = append(sinks, pool)
	} else {
		logger.Warn("VAPID keys are not configured, browser push is disabled")
	}

	if cfg.MQTT.Broker != "" {
		client, err := notification.NewMQTTClient(&cfg.MQTT)
		if err != nil {
			logger.Fatal("failed to connect to mqtt broker", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
		}
		defer client.Disconnect(250)
		sinks = append(sinks, notification.NewMQTTSink(client, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS, logger))
	}

	est := estimator.New(&cfg.Estimator, logger)
	orchestrator := transfer.NewOrchestrator(appStore, schedulerLease, cfg.Scheduler, est, sinks, logger)
	machine := transfer.NewMachine(appStore, orchestrator.Selector(), sinks, logger)
	if cfg.Scheduler.RerunOnDrain {
		machine.OnDrain(func(_ context.Context, systemID int64) {
			go func() {
				result, err := orchestrator.Run(ctx, transfer.RunRequest{SystemID: systemID})
				if err != nil {
					logger.Info("no follow-up pass after drain", zap.Int64("system_id", systemID), zap.Error(err))
					return
				}
				logger.Info("follow-up pass scheduled", zap.Int64("system_id", systemID), zap.Int64s("cycle_ids", result.CycleIDs))
			}()
		})
	}

	handler := api.NewHandler(appStore, orchestrator, machine, webpushOptions, logger)
	router := api.NewRouter(handler, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server Shutdown", zap.Error(err))
	}

	logger.Info("server gracefully stopped")
}
