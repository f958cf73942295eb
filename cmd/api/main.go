package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notifyhub/config"
	"notifyhub/internal/api"
	"notifyhub/internal/repository"
	"notifyhub/internal/schedule"
	"notifyhub/internal/service/notification"
	"notifyhub/internal/service/prefs"
	"notifyhub/pkg/db"
	"notifyhub/pkg/logger"
	"notifyhub/pkg/mq"
	"notifyhub/pkg/redisclient"
)

func main() {
	cfg := config.Load()

	log := logger.New()
	defer log.Sync()

	log.Info("Starting notifyhub API...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("port", cfg.Server.Port),
	)

	dbPool, err := db.NewPool(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbPool.Close()

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

	// Repositories
	notificationRepo := repository.NewNotificationRepository(dbPool)
	preferenceRepo := repository.NewPreferenceRepository(dbPool)

	// Services
	notificationSvc := notification.NewService(notificationRepo, log)
	prefsSvc := prefs.NewService(preferenceRepo, log)

	// The API only publishes manual triggers; the fire loop runs in the
	// scheduler binary.
	guard := schedule.NewRedisFireGuard(rdb, log)
	scheduler := schedule.New(rdb, guard, publisher, log)

	dlqInspector := mq.NewDLQInspector(cfg.MQ.URL)

	// Handlers
	notificationHandler := api.NewNotificationHandler(notificationSvc, log)
	preferenceHandler := api.NewPreferenceHandler(prefsSvc, log)
	adminHandler := api.NewAdminHandler(scheduler, dlqInspector, log)

	router := api.NewRouter(notificationHandler, preferenceHandler, adminHandler, cfg.JWT.Secret, dbPool)

	// Metrics on a separate listener, away from the public surface.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Info("Metrics server starting", zap.String("port", cfg.Server.MetricsPort))
		if err := http.ListenAndServe(":"+cfg.Server.MetricsPort, mux); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.Server.Port))
		if err := router.Run(":" + cfg.Server.Port); err != nil {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("notifyhub API is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notifyhub API...")
}
