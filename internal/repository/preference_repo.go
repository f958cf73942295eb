package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"notifyhub/internal/model"
	"notifyhub/internal/policy"
)

type PreferenceRepository struct {
	db *pgxpool.Pool
}

func NewPreferenceRepository(db *pgxpool.Pool) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

const preferenceColumns = `
    user_id, tenant_id, email_enabled, in_app_enabled, sound_enabled,
    sound_volume, dnd_enabled, dnd_start, dnd_end, overrides, paused_until,
    created_at, updated_at
`

func (r *PreferenceRepository) Get(ctx context.Context, userID, tenantID string) (*model.NotificationPreference, error) {
	query := `SELECT ` + preferenceColumns + `
        FROM notification_preferences
        WHERE user_id = $1 AND tenant_id = $2
    `
	p, err := scanPreference(r.db.QueryRow(ctx, query, userID, tenantID))
	if err != nil {
		return nil, translateErr(err)
	}
	return p, nil
}

// CreateDefault lazily creates the all-enabled default row. ON CONFLICT DO
// NOTHING makes concurrent first reads converge on a single row; the row is
// re-read afterwards so the caller always observes the winner.
func (r *PreferenceRepository) CreateDefault(ctx context.Context, userID, tenantID string) (*model.NotificationPreference, error) {
	def := model.DefaultPreference(userID, tenantID)
	overrides, err := json.Marshal(def.Overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal overrides: %w", err)
	}

	query := `
        INSERT INTO notification_preferences
            (user_id, tenant_id, email_enabled, in_app_enabled, sound_enabled,
             sound_volume, dnd_enabled, dnd_start, dnd_end, overrides,
             created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, FALSE, '', '', $7, NOW(), NOW())
        ON CONFLICT (user_id, tenant_id) DO NOTHING
    `
	_, err = r.db.Exec(ctx, query,
		userID, tenantID, def.EmailEnabled, def.InAppEnabled, def.SoundEnabled,
		def.SoundVolume, overrides,
	)
	if err != nil {
		return nil, err
	}

	return r.Get(ctx, userID, tenantID)
}

func (r *PreferenceRepository) Update(ctx context.Context, p *model.NotificationPreference) error {
	overrides, err := json.Marshal(p.Overrides)
	if err != nil {
		return fmt.Errorf("failed to marshal overrides: %w", err)
	}

	query := `
        UPDATE notification_preferences
        SET email_enabled = $3, in_app_enabled = $4, sound_enabled = $5,
            sound_volume = $6, dnd_enabled = $7, dnd_start = $8, dnd_end = $9,
            overrides = $10, updated_at = NOW()
        WHERE user_id = $1 AND tenant_id = $2
    `
	tag, err := r.db.Exec(ctx, query,
		p.UserID, p.TenantID, p.EmailEnabled, p.InAppEnabled, p.SoundEnabled,
		p.SoundVolume, p.DNDEnabled, p.DNDStart, p.DNDEnd, overrides,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PreferenceRepository) SetPausedUntil(ctx context.Context, userID, tenantID string, until *time.Time) error {
	query := `
        UPDATE notification_preferences
        SET paused_until = $3, updated_at = NOW()
        WHERE user_id = $1 AND tenant_id = $2
    `
	tag, err := r.db.Exec(ctx, query, userID, tenantID, until)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPreference(row rowScanner) (*model.NotificationPreference, error) {
	var p model.NotificationPreference
	var overrides []byte
	err := row.Scan(
		&p.UserID, &p.TenantID, &p.EmailEnabled, &p.InAppEnabled,
		&p.SoundEnabled, &p.SoundVolume, &p.DNDEnabled, &p.DNDStart,
		&p.DNDEnd, &overrides, &p.PausedUntil, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Overrides = map[policy.Category]model.ChannelOverride{}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &p.Overrides); err != nil {
			return nil, fmt.Errorf("failed to unmarshal overrides: %w", err)
		}
	}
	return &p, nil
}
