package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"notifyhub/internal/model"
	"notifyhub/internal/policy"
)

// ReminderLogRepository is the dedup ledger. The table carries
// UNIQUE (user_id, tenant_id, reminder_type, stage) with NULLS NOT DISTINCT,
// so the natural key admits at most one row even under concurrent writers.
type ReminderLogRepository struct {
	db *pgxpool.Pool
}

func NewReminderLogRepository(db *pgxpool.Pool) *ReminderLogRepository {
	return &ReminderLogRepository{db: db}
}

// Insert appends one ledger row. Returns false when the natural key already
// exists: the conflicting insert is treated as "already sent, skip", which
// closes the race between two concurrent duplicate deliveries.
func (r *ReminderLogRepository) Insert(ctx context.Context, l *model.ReminderLog) (bool, error) {
	metadata, err := json.Marshal(l.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
        INSERT INTO reminder_logs
            (user_id, tenant_id, reminder_type, stage, email_sent,
             email_sent_at, email_error, in_app_sent, in_app_sent_at,
             deadline_at, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
        ON CONFLICT (user_id, tenant_id, reminder_type, stage) DO NOTHING
    `
	tag, err := r.db.Exec(ctx, query,
		l.UserID, l.TenantID, l.Campaign, l.Stage, l.EmailSent, l.EmailSentAt,
		l.EmailError, l.InAppSent, l.InAppSentAt, l.DeadlineAt, metadata,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Exists reports whether a ledger row exists for the natural key. An existing
// row means that stage was already attempted; scanners skip the subject.
func (r *ReminderLogRepository) Exists(ctx context.Context, userID, tenantID *string, campaign policy.Campaign, stage policy.Stage) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1 FROM reminder_logs
            WHERE user_id IS NOT DISTINCT FROM $1
              AND tenant_id IS NOT DISTINCT FROM $2
              AND reminder_type = $3
              AND stage = $4
        )
    `
	var exists bool
	err := r.db.QueryRow(ctx, query, userID, tenantID, campaign, stage).Scan(&exists)
	return exists, err
}
