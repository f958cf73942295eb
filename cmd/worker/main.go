package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notifyhub/config"
	mqcontracts "notifyhub/contracts/mq"
	"notifyhub/internal/mqhandler"
	"notifyhub/internal/repository"
	"notifyhub/internal/service/hub"
	"notifyhub/internal/service/lifecycle"
	"notifyhub/internal/service/mailer"
	"notifyhub/internal/service/notification"
	"notifyhub/internal/service/prefs"
	"notifyhub/internal/service/reminder"
	"notifyhub/pkg/circuitbreaker"
	"notifyhub/pkg/db"
	"notifyhub/pkg/logger"
	"notifyhub/pkg/mq"
	"notifyhub/pkg/redisclient"
	"notifyhub/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.New()
	defer log.Sync()

	log.Info("Starting notifyhub worker...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
		zap.Int("prefetch", cfg.Worker.Prefetch),
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

	if err := publisher.SetupDLQ(mqcontracts.RoutingKeyReminderDeliver); err != nil {
		log.Fatal("Failed to set up DLQ", zap.Error(err))
	}

	// Repositories
	notificationRepo := repository.NewNotificationRepository(dbPool)
	preferenceRepo := repository.NewPreferenceRepository(dbPool)
	reminderLogRepo := repository.NewReminderLogRepository(dbPool)
	userRepo := repository.NewUserRepository(dbPool)
	tenantRepo := repository.NewTenantRepository(dbPool)

	// Services
	notificationSvc := notification.NewService(notificationRepo, log)
	prefsSvc := prefs.NewService(preferenceRepo, log)

	sender := mailer.NewBreakerSender(
		mailer.NewProviderSender(cfg.Email, log),
		circuitbreaker.DefaultConfig(),
	)
	notifyHub := hub.New(userRepo, notificationSvc, prefsSvc, sender, log)

	// Redis-backed job plumbing
	deduper := util.NewDeduper(rdb, 24*time.Hour, log)
	retries := util.NewRetryCounter(rdb, time.Hour)
	limiter := util.NewRateLimiter(rdb, cfg.Worker.RateLimit,
		time.Duration(cfg.Worker.RateWindowSeconds)*time.Second, log)

	enqueuer := mqhandler.NewEnqueuer(publisher, deduper, log)
	scanner := reminder.NewScanner(userRepo, tenantRepo, reminderLogRepo, enqueuer,
		reminder.Defaults{
			MFADeadlineDays:   cfg.Reminder.MFADefaultDeadlineDays,
			PhoneDeadlineDays: cfg.Reminder.PhoneDefaultDeadlineDays,
			Thresholds: reminder.Thresholds{
				FirstDays: cfg.Reminder.FirstStageDays,
				FinalDays: cfg.Reminder.FinalStageDays,
			},
		}, log)
	lifecycleSvc := lifecycle.New(tenantRepo, notifyHub, log)

	// MQ Handlers
	scanHandler := mqhandler.NewScanHandler(scanner, lifecycleSvc, deduper, log)
	deliveryHandler := mqhandler.NewDeliveryHandler(
		reminderLogRepo, userRepo, notifyHub, publisher,
		deduper, retries, limiter, cfg.Worker.MaxRetries, log,
	)

	scanConsumer, err := mq.NewConsumer(cfg.MQ.URL,
		mqcontracts.QueueCampaignScan, mqcontracts.RoutingKeyCampaignScan, 1, log)
	if err != nil {
		log.Fatal("Failed to init scan consumer", zap.Error(err))
	}
	defer scanConsumer.Close()
	scanConsumer.SetHandler(scanHandler.Handle)

	deliverConsumer, err := mq.NewConsumer(cfg.MQ.URL,
		mqcontracts.QueueReminderDeliver, mqcontracts.RoutingKeyReminderDeliver, cfg.Worker.Prefetch, log)
	if err != nil {
		log.Fatal("Failed to init delivery consumer", zap.Error(err))
	}
	defer deliverConsumer.Close()
	deliverConsumer.SetHandler(deliveryHandler.Handle)

	go func() {
		if err := scanConsumer.StartConsuming(); err != nil {
			log.Fatal("Scan consumer failed", zap.Error(err))
		}
	}()
	go func() {
		if err := deliverConsumer.StartConsuming(); err != nil {
			log.Fatal("Delivery consumer failed", zap.Error(err))
		}
	}()

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

	log.Info("notifyhub worker is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notifyhub worker...")
}
