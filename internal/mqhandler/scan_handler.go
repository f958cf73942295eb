package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "notifyhub/contracts/mq"
	"notifyhub/internal/policy"
	"notifyhub/pkg/metrics"
	"notifyhub/pkg/trace"
	"notifyhub/pkg/util"
)

// CampaignScanner runs one eligibility pass and reports how many jobs it
// queued.
type CampaignScanner interface {
	Scan(ctx context.Context, campaign policy.Campaign) (int, error)
}

// LifecycleExecutor applies past-deadline state transitions.
type LifecycleExecutor interface {
	DowngradeExpiredTrials(ctx context.Context) (int, error)
	ExecuteDueDeletions(ctx context.Context) (int, error)
}

// ScanHandler consumes scheduler trigger messages and dispatches them to the
// scanner and the lifecycle executor.
type ScanHandler struct {
	scanner   CampaignScanner
	lifecycle LifecycleExecutor
	deduper   DedupGuard
	logger    *zap.Logger
}

func NewScanHandler(scanner CampaignScanner, lifecycle LifecycleExecutor, deduper DedupGuard, logger *zap.Logger) *ScanHandler {
	return &ScanHandler{
		scanner:   scanner,
		lifecycle: lifecycle,
		deduper:   deduper,
		logger:    logger,
	}
}

// Handle processes one trigger message. Returning an error requeues the
// message; nil acks it.
func (h *ScanHandler) Handle(ctx context.Context, data json.RawMessage) error {
	start := time.Now()
	defer func() {
		metrics.RecordMQConsumeLatency(mqcontracts.RoutingKeyCampaignScan, mqcontracts.QueueCampaignScan, time.Since(start))
	}()

	var payload mqcontracts.CampaignScanPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.logger.Error("Failed to decode scan payload, dropping", zap.Error(err))
		return nil
	}

	if payload.TraceID != "" {
		ctx = trace.WithContext(ctx, payload.TraceID)
	}
	log := h.logger.With(
		zap.String("job_id", payload.JobID),
		zap.String("trigger", payload.Campaign),
		zap.String("trace_id", payload.TraceID),
	)

	// One fire, one scan. Two workers pulling the same trigger message (or
	// a scheduler double-fire) collapse here.
	if !h.deduper.AcquireOnce(ctx, "scan", payload.JobID) {
		return nil
	}

	var err error
	switch payload.Campaign {
	case mqcontracts.TriggerMFAEnablement:
		err = h.runScan(ctx, log, policy.CampaignMFAEnablement)
	case mqcontracts.TriggerPhoneVerification:
		err = h.runScan(ctx, log, policy.CampaignPhoneVerification)
	case mqcontracts.TriggerTrialExpiration:
		err = h.runScan(ctx, log, policy.CampaignTrialExpiration)
	case mqcontracts.TriggerTrialDowngrade:
		err = h.runDowngrade(ctx, log)
	case mqcontracts.TriggerTenantDeletion:
		// Deletion day: first remind tenants still inside the window, then
		// remove those whose window has fully elapsed.
		err = h.runScan(ctx, log, policy.CampaignTenantDeletion)
		if err == nil {
			err = h.runDeletions(ctx, log)
		}
	default:
		log.Error("Unknown trigger, dropping")
		return nil
	}
	if err == nil {
		return nil
	}

	if retryable, errType := util.IsRetryableError(err); !retryable {
		log.Error("Terminal scan error, dropping",
			zap.String("error_type", errType),
			zap.Error(err),
		)
		return nil
	}
	// A held dedup key would make the redelivered message ack without
	// scanning. Release it so the retry actually runs.
	h.deduper.Release(ctx, "scan", payload.JobID)
	return err
}

func (h *ScanHandler) runDowngrade(ctx context.Context, log *zap.Logger) error {
	n, err := h.lifecycle.DowngradeExpiredTrials(ctx)
	if err != nil {
		return fmt.Errorf("trial downgrade pass: %w", err)
	}
	log.Info("Trial downgrade trigger completed", zap.Int("downgraded", n))
	return nil
}

func (h *ScanHandler) runDeletions(ctx context.Context, log *zap.Logger) error {
	n, err := h.lifecycle.ExecuteDueDeletions(ctx)
	if err != nil {
		return fmt.Errorf("deletion pass: %w", err)
	}
	log.Info("Tenant deletion trigger completed", zap.Int("deleted", n))
	return nil
}

func (h *ScanHandler) runScan(ctx context.Context, log *zap.Logger, campaign policy.Campaign) error {
	queued, err := h.scanner.Scan(ctx, campaign)
	if err != nil {
		return fmt.Errorf("scan %s: %w", campaign, err)
	}
	log.Info("Scan trigger completed",
		zap.String("campaign", string(campaign)),
		zap.Int("queued", queued),
	)
	return nil
}
