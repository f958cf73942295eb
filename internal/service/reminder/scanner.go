package reminder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "notifyhub/contracts/mq"
	"notifyhub/internal/model"
	"notifyhub/internal/policy"
	"notifyhub/pkg/metrics"
)

// UserCandidateSource yields subjects for the user-scoped campaigns.
type UserCandidateSource interface {
	MFAPending(ctx context.Context, defaultDays int) ([]model.ReminderCandidate, error)
	PhonePending(ctx context.Context, defaultDays int) ([]model.ReminderCandidate, error)
}

// TenantCandidateSource yields subjects for the tenant-scoped campaigns.
type TenantCandidateSource interface {
	Trialing(ctx context.Context) ([]model.TenantCandidate, error)
	DeletionScheduled(ctx context.Context) ([]model.TenantCandidate, error)
}

// Ledger answers whether a (subject, campaign, stage) was already attempted.
type Ledger interface {
	Exists(ctx context.Context, userID, tenantID *string, campaign policy.Campaign, stage policy.Stage) (bool, error)
}

// Enqueuer queues one per-recipient delivery job. Implementations suppress
// duplicate job ids at the queue layer.
type Enqueuer interface {
	EnqueueDelivery(ctx context.Context, payload mqcontracts.ReminderDeliveryPayload) error
}

// Defaults carries campaign fallbacks used when tenant config is absent.
type Defaults struct {
	MFADeadlineDays   int
	PhoneDeadlineDays int
	Thresholds        Thresholds
}

// Scanner walks campaign populations daily, computes deadlines and stages,
// filters through the dedup ledger, and queues delivery jobs. It never
// delivers anything itself.
type Scanner struct {
	users    UserCandidateSource
	tenants  TenantCandidateSource
	ledger   Ledger
	enqueuer Enqueuer
	defaults Defaults
	logger   *zap.Logger
	now      func() time.Time
}

func NewScanner(
	users UserCandidateSource,
	tenants TenantCandidateSource,
	ledger Ledger,
	enqueuer Enqueuer,
	defaults Defaults,
	logger *zap.Logger,
) *Scanner {
	if defaults.Thresholds == (Thresholds{}) {
		defaults.Thresholds = DefaultThresholds()
	}
	return &Scanner{
		users:    users,
		tenants:  tenants,
		ledger:   ledger,
		enqueuer: enqueuer,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}
}

// Scan runs the eligibility pass for one campaign and returns the number of
// delivery jobs queued.
func (s *Scanner) Scan(ctx context.Context, campaign policy.Campaign) (int, error) {
	start := s.now()
	defer func() {
		metrics.ObserveScan(string(campaign), time.Since(start))
	}()

	switch campaign {
	case policy.CampaignMFAEnablement:
		candidates, err := s.users.MFAPending(ctx, s.defaults.MFADeadlineDays)
		if err != nil {
			return 0, fmt.Errorf("list mfa candidates: %w", err)
		}
		return s.scanUsers(ctx, campaign, candidates)
	case policy.CampaignPhoneVerification:
		candidates, err := s.users.PhonePending(ctx, s.defaults.PhoneDeadlineDays)
		if err != nil {
			return 0, fmt.Errorf("list phone candidates: %w", err)
		}
		return s.scanUsers(ctx, campaign, candidates)
	case policy.CampaignTrialExpiration:
		candidates, err := s.tenants.Trialing(ctx)
		if err != nil {
			return 0, fmt.Errorf("list trial candidates: %w", err)
		}
		return s.scanTenants(ctx, campaign, candidates)
	case policy.CampaignTenantDeletion:
		candidates, err := s.tenants.DeletionScheduled(ctx)
		if err != nil {
			return 0, fmt.Errorf("list deletion candidates: %w", err)
		}
		return s.scanTenants(ctx, campaign, candidates)
	}
	return 0, fmt.Errorf("unknown campaign: %s", campaign)
}

func (s *Scanner) scanUsers(ctx context.Context, campaign policy.Campaign, candidates []model.ReminderCandidate) (int, error) {
	now := s.now()
	queued := 0

	for _, c := range candidates {
		deadline := Deadline(c.AnchorAt, c.DeadlineDays)
		days := DaysRemaining(deadline, now)
		if days < 0 {
			// Past deadline: the expiration/downgrade process owns it now.
			continue
		}

		stage := SelectStage(days, s.defaults.Thresholds)
		if stage == policy.StageNone {
			continue
		}

		userID, tenantID := c.UserID, c.TenantID
		exists, err := s.ledger.Exists(ctx, &userID, &tenantID, campaign, stage)
		if err != nil {
			s.logger.Error("Ledger check failed, skipping subject",
				zap.String("campaign", string(campaign)),
				zap.String("user_id", c.UserID),
				zap.Error(err),
			)
			continue
		}
		if exists {
			continue
		}

		payload := mqcontracts.ReminderDeliveryPayload{
			JobID:         DeliveryJobID(campaign, stage, c.TenantID, c.UserID),
			Campaign:      string(campaign),
			Stage:         string(stage),
			UserID:        c.UserID,
			TenantID:      c.TenantID,
			RecipientID:   c.UserID,
			DeadlineAt:    deadline,
			DaysRemaining: days,
		}
		if err := s.enqueuer.EnqueueDelivery(ctx, payload); err != nil {
			s.logger.Error("Failed to enqueue delivery job",
				zap.String("job_id", payload.JobID),
				zap.Error(err),
			)
			continue
		}
		metrics.IncJobsQueued(string(campaign), string(stage))
		queued++
	}

	s.logger.Info("Campaign scan completed",
		zap.String("campaign", string(campaign)),
		zap.Int("candidates", len(candidates)),
		zap.Int("queued", queued),
	)
	return queued, nil
}

func (s *Scanner) scanTenants(ctx context.Context, campaign policy.Campaign, candidates []model.TenantCandidate) (int, error) {
	now := s.now()
	queued := 0

	for _, c := range candidates {
		days := DaysRemaining(c.DeadlineAt, now)
		if days < 0 {
			continue
		}

		stage := SelectStage(days, s.defaults.Thresholds)
		if stage == policy.StageNone {
			continue
		}

		tenantID := c.TenantID
		exists, err := s.ledger.Exists(ctx, nil, &tenantID, campaign, stage)
		if err != nil {
			s.logger.Error("Ledger check failed, skipping subject",
				zap.String("campaign", string(campaign)),
				zap.String("tenant_id", c.TenantID),
				zap.Error(err),
			)
			continue
		}
		if exists {
			continue
		}

		payload := mqcontracts.ReminderDeliveryPayload{
			JobID:         DeliveryJobID(campaign, stage, c.TenantID, ""),
			Campaign:      string(campaign),
			Stage:         string(stage),
			TenantID:      c.TenantID,
			RecipientID:   c.OwnerUserID,
			DeadlineAt:    c.DeadlineAt,
			DaysRemaining: days,
		}
		if err := s.enqueuer.EnqueueDelivery(ctx, payload); err != nil {
			s.logger.Error("Failed to enqueue delivery job",
				zap.String("job_id", payload.JobID),
				zap.Error(err),
			)
			continue
		}
		metrics.IncJobsQueued(string(campaign), string(stage))
		queued++
	}

	s.logger.Info("Campaign scan completed",
		zap.String("campaign", string(campaign)),
		zap.Int("candidates", len(candidates)),
		zap.Int("queued", queued),
	)
	return queued, nil
}

// DeliveryJobID is the deterministic job identity for one (subject, campaign,
// stage). Two concurrent scans of the same population produce the same ids,
// so queue-level dedup suppresses the duplicate enqueue.
func DeliveryJobID(campaign policy.Campaign, stage policy.Stage, tenantID, userID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", campaign, stage, tenantID, userID)
}

// SetClock overrides the scanner clock, for tests.
func (s *Scanner) SetClock(now func() time.Time) {
	s.now = now
}
