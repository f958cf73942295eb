package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notifyhub/config"
	"notifyhub/internal/schedule"
	"notifyhub/pkg/logger"
	"notifyhub/pkg/mq"
	"notifyhub/pkg/redisclient"
)

func main() {
	cfg := config.Load()

	log := logger.New()
	defer log.Sync()

	log.Info("Starting notifyhub scheduler...",
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("redis_addr", cfg.Redis.Addr),
	)

	rdb, err := redisclient.New(cfg.Redis)
	if err != nil {
		log.Fatal("Failed to init redis", zap.Error(err))
	}
	defer rdb.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	guard := schedule.NewRedisFireGuard(rdb, log)
	scheduler := schedule.New(rdb, guard, publisher, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.RegisterTriggers(ctx, schedule.DefaultTriggers()); err != nil {
		log.Fatal("Failed to register triggers", zap.Error(err))
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
		log.Info("Metrics server starting", zap.String("port", cfg.Server.MetricsPort))
		if err := http.ListenAndServe(":"+cfg.Server.MetricsPort, mux); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()

	go scheduler.Run(ctx)

	log.Info("notifyhub scheduler is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notifyhub scheduler...")
	cancel()
}
