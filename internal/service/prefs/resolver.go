package prefs

import (
	"context"
	"errors"
	"time"

	"notifyhub/internal/model"
	"notifyhub/internal/policy"
	"notifyhub/internal/repository"
)

// IsChannelEnabled decides whether a channel is eligible for a category.
//
// ALWAYS_SEND categories return true before any preference is consulted; no
// override at any layer can suppress them. Otherwise the global channel
// toggle applies first, then the per-category override. A missing preference
// row fails open: first-run notifications are never silently swallowed.
//
// Do-not-disturb windows and pause-until are deliberately NOT consulted here.
// They affect delivery timing, not eligibility, and gate at the hub through
// EmailSuppressedNow.
func (s *Service) IsChannelEnabled(ctx context.Context, userID, tenantID string, category policy.Category, channel policy.Channel) (bool, error) {
	if policy.IsAlwaysSend(category) {
		return true, nil
	}

	p, err := s.repo.Get(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return true, nil
		}
		return false, err
	}

	if !globalToggle(p, channel) {
		return false, nil
	}

	if override, ok := p.Overrides[category]; ok {
		if v := overrideFor(override, channel); v != nil && !*v {
			return false, nil
		}
	}

	return true, nil
}

// EmailSuppressedNow reports whether a pause or an active DND window holds
// back the email channel right now. ALWAYS_SEND callers must not consult
// this.
func (s *Service) EmailSuppressedNow(ctx context.Context, userID, tenantID string, now time.Time) (bool, error) {
	p, err := s.repo.Get(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if p.PausedUntil != nil && p.PausedUntil.After(now) {
		return true, nil
	}
	return inDNDWindow(p, now), nil
}

func globalToggle(p *model.NotificationPreference, channel policy.Channel) bool {
	switch channel {
	case policy.ChannelEmail:
		return p.EmailEnabled
	case policy.ChannelInApp:
		return p.InAppEnabled
	case policy.ChannelSound:
		return p.SoundEnabled
	}
	return true
}

func overrideFor(o model.ChannelOverride, channel policy.Channel) *bool {
	switch channel {
	case policy.ChannelEmail:
		return o.Email
	case policy.ChannelInApp:
		return o.InApp
	case policy.ChannelSound:
		return o.Sound
	}
	return nil
}

// inDNDWindow checks the HH:MM window against the clock. A window whose end
// precedes its start wraps past midnight (22:00-07:00).
func inDNDWindow(p *model.NotificationPreference, now time.Time) bool {
	if !p.DNDEnabled || p.DNDStart == "" || p.DNDEnd == "" {
		return false
	}

	start, err := time.Parse("15:04", p.DNDStart)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", p.DNDEnd)
	if err != nil {
		return false
	}

	minutes := now.Hour()*60 + now.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()

	if startMin <= endMin {
		return minutes >= startMin && minutes < endMin
	}
	return minutes >= startMin || minutes < endMin
}
