package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"notifyhub/internal/model"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	query := `
        SELECT id, tenant_id, email, name, mfa_enabled, phone_verified, created_at
        FROM users
        WHERE id = $1 AND deleted_at IS NULL
    `
	var u model.User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.TenantID, &u.Email, &u.Name, &u.MFAEnabled,
		&u.PhoneVerified, &u.CreatedAt,
	)
	if err != nil {
		return nil, translateErr(err)
	}
	return &u, nil
}

// MFAPending returns users in MFA-requiring tenants who have not enabled MFA,
// joined with the tenant's configured deadline offset. defaultDays applies
// when the tenant carries no security config row.
func (r *UserRepository) MFAPending(ctx context.Context, defaultDays int) ([]model.ReminderCandidate, error) {
	query := `
        SELECT u.id, u.tenant_id, u.created_at,
               COALESCE(c.mfa_deadline_days, $1)
        FROM users u
        JOIN tenants t ON t.id = u.tenant_id
        LEFT JOIN tenant_security_configs c ON c.tenant_id = u.tenant_id
        WHERE u.deleted_at IS NULL
          AND t.deleted_at IS NULL
          AND u.mfa_enabled = FALSE
          AND COALESCE(c.mfa_required, FALSE) = TRUE
    `
	return r.queryCandidates(ctx, query, defaultDays)
}

// PhonePending returns users who have not verified a phone number in tenants
// that require it.
func (r *UserRepository) PhonePending(ctx context.Context, defaultDays int) ([]model.ReminderCandidate, error) {
	query := `
        SELECT u.id, u.tenant_id, u.created_at,
               COALESCE(c.phone_deadline_days, $1)
        FROM users u
        JOIN tenants t ON t.id = u.tenant_id
        LEFT JOIN tenant_security_configs c ON c.tenant_id = u.tenant_id
        WHERE u.deleted_at IS NULL
          AND t.deleted_at IS NULL
          AND u.phone_verified = FALSE
          AND COALESCE(c.phone_verification_required, FALSE) = TRUE
    `
	return r.queryCandidates(ctx, query, defaultDays)
}

func (r *UserRepository) queryCandidates(ctx context.Context, query string, defaultDays int) ([]model.ReminderCandidate, error) {
	rows, err := r.db.Query(ctx, query, defaultDays)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []model.ReminderCandidate
	for rows.Next() {
		var c model.ReminderCandidate
		if err := rows.Scan(&c.UserID, &c.TenantID, &c.AnchorAt, &c.DeadlineDays); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
