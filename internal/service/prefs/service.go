package prefs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"notifyhub/internal/model"
	"notifyhub/internal/policy"
	"notifyhub/internal/repository"
)

// ErrInvalidInput marks a rejected preference value.
var ErrInvalidInput = errors.New("invalid preference value")

// PreferenceRepository is the slice of the preference store this service
// needs.
type PreferenceRepository interface {
	Get(ctx context.Context, userID, tenantID string) (*model.NotificationPreference, error)
	CreateDefault(ctx context.Context, userID, tenantID string) (*model.NotificationPreference, error)
	Update(ctx context.Context, p *model.NotificationPreference) error
	SetPausedUntil(ctx context.Context, userID, tenantID string, until *time.Time) error
}

// UpdateRequest carries partial preference updates. Nil fields keep the
// stored value.
type UpdateRequest struct {
	EmailEnabled *bool
	InAppEnabled *bool
	SoundEnabled *bool
	SoundVolume  *int
	DNDEnabled   *bool
	DNDStart     *string
	DNDEnd       *string
	Overrides    map[policy.Category]model.ChannelOverride
}

type Service struct {
	repo   PreferenceRepository
	logger *zap.Logger
}

func NewService(repo PreferenceRepository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// GetOrCreate returns the preference row for (user, tenant), lazily creating
// the all-enabled defaults on first access.
func (s *Service) GetOrCreate(ctx context.Context, userID, tenantID string) (*model.NotificationPreference, error) {
	p, err := s.repo.Get(ctx, userID, tenantID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	s.logger.Info("Creating default notification preferences",
		zap.String("user_id", userID),
		zap.String("tenant_id", tenantID),
	)
	return s.repo.CreateDefault(ctx, userID, tenantID)
}

// Update applies a partial update on top of the (lazily created) row.
func (s *Service) Update(ctx context.Context, userID, tenantID string, req UpdateRequest) (*model.NotificationPreference, error) {
	p, err := s.GetOrCreate(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}

	if req.EmailEnabled != nil {
		p.EmailEnabled = *req.EmailEnabled
	}
	if req.InAppEnabled != nil {
		p.InAppEnabled = *req.InAppEnabled
	}
	if req.SoundEnabled != nil {
		p.SoundEnabled = *req.SoundEnabled
	}
	if req.SoundVolume != nil {
		v := *req.SoundVolume
		if v < 0 || v > 100 {
			return nil, fmt.Errorf("%w: sound volume out of range: %d", ErrInvalidInput, v)
		}
		p.SoundVolume = v
	}
	if req.DNDEnabled != nil {
		p.DNDEnabled = *req.DNDEnabled
	}
	if req.DNDStart != nil {
		if err := validateTimeOfDay(*req.DNDStart); err != nil {
			return nil, err
		}
		p.DNDStart = *req.DNDStart
	}
	if req.DNDEnd != nil {
		if err := validateTimeOfDay(*req.DNDEnd); err != nil {
			return nil, err
		}
		p.DNDEnd = *req.DNDEnd
	}
	if req.Overrides != nil {
		p.Overrides = req.Overrides
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Pause suppresses deliveries until the given time.
func (s *Service) Pause(ctx context.Context, userID, tenantID string, until time.Time) error {
	if _, err := s.GetOrCreate(ctx, userID, tenantID); err != nil {
		return err
	}
	return s.repo.SetPausedUntil(ctx, userID, tenantID, &until)
}

// Resume clears a pause.
func (s *Service) Resume(ctx context.Context, userID, tenantID string) error {
	if _, err := s.GetOrCreate(ctx, userID, tenantID); err != nil {
		return err
	}
	return s.repo.SetPausedUntil(ctx, userID, tenantID, nil)
}

func validateTimeOfDay(v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse("15:04", v); err != nil {
		return fmt.Errorf("%w: time of day %q: want HH:MM", ErrInvalidInput, v)
	}
	return nil
}
