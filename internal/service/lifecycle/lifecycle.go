// Package lifecycle executes the state transitions that follow an expired
// deadline: trial tenants drop to the free plan, and tenants whose deletion
// grace period has lapsed are removed.
package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"notifyhub/internal/model"
	"notifyhub/internal/policy"
	"notifyhub/internal/service/hub"
)

// TenantTransitions is the slice of tenant storage the lifecycle pass needs.
type TenantTransitions interface {
	TrialExpired(ctx context.Context) ([]model.TenantCandidate, error)
	DowngradeToFree(ctx context.Context, tenantID string) error
	DeletionDue(ctx context.Context) ([]model.TenantCandidate, error)
	MarkDeleted(ctx context.Context, tenantID string) error
}

// Notifier delivers the post-transition notice to the tenant owner.
type Notifier interface {
	Notify(ctx context.Context, req hub.Request) hub.Result
}

type Service struct {
	tenants TenantTransitions
	hub     Notifier
	logger  *zap.Logger
}

func New(tenants TenantTransitions, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		tenants: tenants,
		hub:     notifier,
		logger:  logger,
	}
}

// DowngradeExpiredTrials moves every tenant whose trial deadline has passed to
// the free plan and notifies the owner. Returns the number of tenants
// downgraded.
func (s *Service) DowngradeExpiredTrials(ctx context.Context) (int, error) {
	expired, err := s.tenants.TrialExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("list expired trials: %w", err)
	}

	downgraded := 0
	for _, t := range expired {
		if err := s.tenants.DowngradeToFree(ctx, t.TenantID); err != nil {
			s.logger.Error("Failed to downgrade tenant",
				zap.String("tenant_id", t.TenantID),
				zap.Error(err),
			)
			continue
		}
		downgraded++

		message := fmt.Sprintf("The trial for %s has ended and the workspace is now on the free plan. Upgrade any time to restore full features.", t.TenantName)
		res := s.hub.Notify(ctx, hub.Request{
			UserID:       t.OwnerUserID,
			TenantID:     t.TenantID,
			Category:     policy.CategoryTrialExpired,
			Title:        "Your trial has ended",
			Message:      message,
			Severity:     policy.SeverityWarning,
			ActionRoute:  "/billing/plans",
			ActionLabel:  "View plans",
			EmailSubject: "Your trial has ended",
			EmailHTML:    fmt.Sprintf("<p>%s</p>", message),
		})
		if !res.EmailSent && !res.InAppSent {
			s.logger.Warn("Downgrade notice failed on all channels",
				zap.String("tenant_id", t.TenantID),
				zap.String("owner_id", t.OwnerUserID),
			)
		}
	}

	s.logger.Info("Trial downgrade pass completed",
		zap.Int("expired", len(expired)),
		zap.Int("downgraded", downgraded),
	)
	return downgraded, nil
}

// ExecuteDueDeletions soft-deletes every tenant whose deletion grace period
// has fully elapsed. No notification is sent: the account is gone.
func (s *Service) ExecuteDueDeletions(ctx context.Context) (int, error) {
	due, err := s.tenants.DeletionDue(ctx)
	if err != nil {
		return 0, fmt.Errorf("list due deletions: %w", err)
	}

	deleted := 0
	for _, t := range due {
		if err := s.tenants.MarkDeleted(ctx, t.TenantID); err != nil {
			s.logger.Error("Failed to delete tenant",
				zap.String("tenant_id", t.TenantID),
				zap.Error(err),
			)
			continue
		}
		deleted++
		s.logger.Info("Tenant deleted after grace period",
			zap.String("tenant_id", t.TenantID),
		)
	}

	s.logger.Info("Deletion pass completed",
		zap.Int("due", len(due)),
		zap.Int("deleted", deleted),
	)
	return deleted, nil
}
