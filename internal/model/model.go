package model

import (
	"time"

	"notifyhub/internal/policy"
)

// Notification is a single in-app notification row, always scoped to exactly
// one (user, tenant) pair.
type Notification struct {
	ID          string                  `json:"id"`
	UserID      string                  `json:"user_id"`
	TenantID    string                  `json:"tenant_id"`
	Type        policy.NotificationType `json:"type"`
	Category    policy.Category         `json:"category"`
	Title       string                  `json:"title"`
	Message     string                  `json:"message"`
	Severity    policy.Severity         `json:"severity"`
	ActionRoute string                  `json:"action_route,omitempty"`
	ActionLabel string                  `json:"action_label,omitempty"`
	Metadata    map[string]any          `json:"metadata,omitempty"`
	IsRead      bool                    `json:"is_read"`
	ReadAt      *time.Time              `json:"read_at,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

// ChannelOverride is a per-category preference override. Nil fields inherit
// the global toggle.
type ChannelOverride struct {
	Email *bool `json:"email,omitempty"`
	InApp *bool `json:"in_app,omitempty"`
	Sound *bool `json:"sound,omitempty"`
}

// NotificationPreference holds per (user, tenant) delivery preferences. One
// row per pair, lazily created with all channels enabled.
type NotificationPreference struct {
	UserID       string                              `json:"user_id"`
	TenantID     string                              `json:"tenant_id"`
	EmailEnabled bool                                `json:"email_enabled"`
	InAppEnabled bool                                `json:"in_app_enabled"`
	SoundEnabled bool                                `json:"sound_enabled"`
	SoundVolume  int                                 `json:"sound_volume"`
	DNDEnabled   bool                                `json:"dnd_enabled"`
	DNDStart     string                              `json:"dnd_start,omitempty"` // HH:MM
	DNDEnd       string                              `json:"dnd_end,omitempty"`   // HH:MM
	Overrides    map[policy.Category]ChannelOverride `json:"overrides,omitempty"`
	PausedUntil  *time.Time                          `json:"paused_until,omitempty"`
	CreatedAt    time.Time                           `json:"created_at"`
	UpdatedAt    time.Time                           `json:"updated_at"`
}

// DefaultPreference returns the lazily-created defaults: every channel on.
func DefaultPreference(userID, tenantID string) *NotificationPreference {
	return &NotificationPreference{
		UserID:       userID,
		TenantID:     tenantID,
		EmailEnabled: true,
		InAppEnabled: true,
		SoundEnabled: true,
		SoundVolume:  70,
		Overrides:    map[policy.Category]ChannelOverride{},
	}
}

// ReminderLog is the dedup ledger: at most one row per
// (user, tenant, reminder type, stage). Existence means the stage was already
// attempted. Append-only.
type ReminderLog struct {
	ID          int64
	UserID      *string
	TenantID    *string
	Campaign    policy.Campaign
	Stage       policy.Stage
	EmailSent   bool
	EmailSentAt *time.Time
	EmailError  *string
	InAppSent   bool
	InAppSentAt *time.Time
	DeadlineAt  time.Time
	Metadata    map[string]any
	CreatedAt   time.Time
}

// User is the slice of the users table this engine reads.
type User struct {
	ID            string
	TenantID      string
	Email         string
	Name          string
	MFAEnabled    bool
	PhoneVerified bool
	CreatedAt     time.Time
}

// Tenant is the slice of the tenants table this engine reads.
type Tenant struct {
	ID                  string
	Name                string
	OwnerUserID         string
	Plan                string
	TrialExpiresAt      *time.Time
	DeletionScheduledAt *time.Time
	CreatedAt           time.Time
}

// ReminderCandidate is one subject produced by an eligibility query for the
// user-scoped campaigns (MFA, phone). AnchorAt plus DeadlineDays gives the
// deadline.
type ReminderCandidate struct {
	UserID       string
	TenantID     string
	AnchorAt     time.Time
	DeadlineDays int
}

// TenantCandidate is one subject for the tenant-scoped campaigns
// (trial expiration, tenant deletion). DeadlineAt is used directly.
type TenantCandidate struct {
	TenantID    string
	OwnerUserID string
	TenantName  string
	DeadlineAt  time.Time
}
