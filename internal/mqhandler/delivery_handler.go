package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "notifyhub/contracts/mq"
	"notifyhub/internal/model"
	"notifyhub/internal/policy"
	"notifyhub/internal/repository"
	"notifyhub/internal/service/hub"
	"notifyhub/internal/service/reminder"
	"notifyhub/pkg/metrics"
	"notifyhub/pkg/trace"
	"notifyhub/pkg/util"
)

// DeliveryLedger records and looks up delivery attempts.
type DeliveryLedger interface {
	Insert(ctx context.Context, l *model.ReminderLog) (bool, error)
	Exists(ctx context.Context, userID, tenantID *string, campaign policy.Campaign, stage policy.Stage) (bool, error)
}

// RecipientDirectory resolves delivery job recipients.
type RecipientDirectory interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Notifier performs the multichannel delivery.
type Notifier interface {
	Notify(ctx context.Context, req hub.Request) hub.Result
}

// DeadLetterer parks jobs that exhausted their retries.
type DeadLetterer interface {
	PublishToDLQ(routingKey, messageID string, payload []byte, originalError string) error
}

// RetryTracker counts delivery attempts per job across worker restarts.
type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// RateGate bounds delivery throughput toward the email provider.
type RateGate interface {
	Allow(ctx context.Context, name string) bool
}

// DeliveryHandler consumes per-recipient delivery jobs. Each job results in
// at most one ledger row; once delivery was attempted the job is acked even
// if the bookkeeping afterwards fails, so a recipient is never contacted
// twice for the same stage.
type DeliveryHandler struct {
	ledger     DeliveryLedger
	users      RecipientDirectory
	hub        Notifier
	dlq        DeadLetterer
	deduper    DedupGuard
	retries    RetryTracker
	limiter    RateGate
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
}

func NewDeliveryHandler(
	ledger DeliveryLedger,
	users RecipientDirectory,
	notifier Notifier,
	dlq DeadLetterer,
	deduper DedupGuard,
	retries RetryTracker,
	limiter RateGate,
	maxRetries int,
	logger *zap.Logger,
) *DeliveryHandler {
	return &DeliveryHandler{
		ledger:     ledger,
		users:      users,
		hub:        notifier,
		dlq:        dlq,
		deduper:    deduper,
		retries:    retries,
		limiter:    limiter,
		maxRetries: maxRetries,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle processes one delivery job. Returning an error requeues the
// message; nil acks it.
func (h *DeliveryHandler) Handle(ctx context.Context, data json.RawMessage) error {
	start := time.Now()
	defer func() {
		metrics.RecordMQConsumeLatency(mqcontracts.RoutingKeyReminderDeliver, mqcontracts.QueueReminderDeliver, time.Since(start))
	}()

	var payload mqcontracts.ReminderDeliveryPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.logger.Error("Failed to decode delivery payload, dropping", zap.Error(err))
		return nil
	}

	if payload.TraceID != "" {
		ctx = trace.WithContext(ctx, payload.TraceID)
	}
	log := h.logger.With(
		zap.String("job_id", payload.JobID),
		zap.String("campaign", payload.Campaign),
		zap.String("stage", payload.Stage),
		zap.String("trace_id", payload.TraceID),
	)

	campaign, ok := policy.ParseCampaign(payload.Campaign)
	if !ok {
		log.Error("Unknown campaign in delivery job, dropping")
		return nil
	}
	stage := policy.Stage(payload.Stage)
	if stage != policy.StageFirst && stage != policy.StageFinal {
		log.Error("Unknown stage in delivery job, dropping")
		return nil
	}

	// Hold the job back while the provider ceiling is hit. The message
	// requeues before any state is touched, so this does not count as a
	// retry. No local sleep here: stalling the consume loop would also
	// delay jobs that are not subject to the ceiling.
	if !h.limiter.Allow(ctx, "deliver") {
		log.Debug("Delivery rate limited, requeueing")
		return fmt.Errorf("delivery rate limit reached")
	}

	if !h.deduper.AcquireOnce(ctx, "deliver", payload.JobID) {
		return nil
	}

	retryKey := util.FormatRetryKey("deliver", payload.JobID)
	count, err := h.retries.IncrementAndGet(ctx, retryKey)
	if err != nil {
		log.Warn("Retry counter unavailable, continuing", zap.Error(err))
	}
	if count > int64(h.maxRetries) {
		log.Error("Delivery job exhausted retries, dead-lettering",
			zap.Int64("attempts", count),
		)
		if err := h.dlq.PublishToDLQ(mqcontracts.RoutingKeyReminderDeliver, payload.JobID, data, "max retries exceeded"); err != nil {
			log.Error("Failed to dead-letter job", zap.Error(err))
		}
		_ = h.retries.Reset(ctx, retryKey)
		return nil
	}

	userID, tenantID := ledgerKey(payload)

	exists, err := h.ledger.Exists(ctx, userID, tenantID, campaign, stage)
	if err != nil {
		return h.failBeforeAttempt(ctx, log, payload.JobID, data, retryKey, fmt.Errorf("ledger lookup: %w", err))
	}
	if exists {
		log.Info("Stage already attempted, skipping")
		_ = h.retries.Reset(ctx, retryKey)
		return nil
	}

	recipient, err := h.users.FindByID(ctx, payload.RecipientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Recipient vanished between scan and delivery. Nothing to do.
			log.Warn("Delivery recipient no longer exists, dropping",
				zap.String("recipient_id", payload.RecipientID),
			)
			_ = h.retries.Reset(ctx, retryKey)
			return nil
		}
		return h.failBeforeAttempt(ctx, log, payload.JobID, data, retryKey, fmt.Errorf("resolve recipient: %w", err))
	}

	content := reminder.BuildContent(campaign, stage, payload.DaysRemaining)
	category, _ := policy.CampaignCategory(campaign)

	result := h.hub.Notify(ctx, hub.Request{
		UserID:       recipient.ID,
		TenantID:     payload.TenantID,
		Category:     category,
		Title:        content.Title,
		Message:      content.Message,
		Severity:     content.Severity,
		ActionRoute:  content.ActionRoute,
		ActionLabel:  content.ActionLabel,
		Metadata: map[string]any{
			"campaign":       payload.Campaign,
			"stage":          payload.Stage,
			"deadline_at":    payload.DeadlineAt,
			"days_remaining": payload.DaysRemaining,
		},
		EmailSubject: content.EmailSubject,
		EmailHTML:    content.EmailHTML,
	})

	// Delivery has been attempted; from here on the job is acked no matter
	// what, so a bookkeeping failure cannot cause a duplicate send.
	now := h.now().UTC()
	entry := &model.ReminderLog{
		UserID:     userID,
		TenantID:   tenantID,
		Campaign:   campaign,
		Stage:      stage,
		EmailSent:  result.EmailSent,
		InAppSent:  result.InAppSent,
		DeadlineAt: payload.DeadlineAt,
		Metadata: map[string]any{
			"job_id":         payload.JobID,
			"recipient_id":   payload.RecipientID,
			"days_remaining": payload.DaysRemaining,
		},
	}
	if result.EmailSent {
		entry.EmailSentAt = &now
	}
	if result.EmailError != "" {
		e := result.EmailError
		entry.EmailError = &e
	}
	if result.InAppSent {
		entry.InAppSentAt = &now
	}

	inserted, err := h.ledger.Insert(ctx, entry)
	if err != nil {
		log.Error("Failed to record delivery in ledger", zap.Error(err))
	} else if !inserted {
		log.Info("Concurrent delivery recorded this stage first")
	}

	_ = h.retries.Reset(ctx, retryKey)

	log.Info("Delivery job completed",
		zap.Bool("email_sent", result.EmailSent),
		zap.Bool("in_app_sent", result.InAppSent),
	)
	return nil
}

// failBeforeAttempt routes an error raised before any send attempt. A
// retryable error releases the dedup hold and requeues; a terminal error
// would fail on every redelivery, so the job goes straight to the DLQ.
func (h *DeliveryHandler) failBeforeAttempt(ctx context.Context, log *zap.Logger, jobID string, data json.RawMessage, retryKey string, err error) error {
	retryable, errType := util.IsRetryableError(err)
	if retryable {
		h.deduper.Release(ctx, "deliver", jobID)
		return err
	}
	log.Error("Terminal delivery error, dead-lettering",
		zap.String("error_type", errType),
		zap.Error(err),
	)
	if dlqErr := h.dlq.PublishToDLQ(mqcontracts.RoutingKeyReminderDeliver, jobID, data, err.Error()); dlqErr != nil {
		log.Error("Failed to dead-letter job", zap.Error(dlqErr))
	}
	_ = h.retries.Reset(ctx, retryKey)
	return nil
}

// ledgerKey maps a payload onto the ledger's natural key. Tenant campaigns
// are keyed by tenant alone so a change of owner does not re-trigger a stage.
func ledgerKey(payload mqcontracts.ReminderDeliveryPayload) (userID, tenantID *string) {
	if payload.UserID != "" {
		userID = &payload.UserID
	}
	if payload.TenantID != "" {
		tenantID = &payload.TenantID
	}
	return userID, tenantID
}
