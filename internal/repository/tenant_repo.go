package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"notifyhub/internal/model"
)

type TenantRepository struct {
	db *pgxpool.Pool
}

func NewTenantRepository(db *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{db: db}
}

// Trialing returns tenants still on a trial plan with an expiry date set.
// The trial expiry is the campaign deadline directly; no offset applies.
func (r *TenantRepository) Trialing(ctx context.Context) ([]model.TenantCandidate, error) {
	query := `
        SELECT id, owner_user_id, name, trial_expires_at
        FROM tenants
        WHERE deleted_at IS NULL
          AND plan = 'trial'
          AND trial_expires_at IS NOT NULL
    `
	return r.queryCandidates(ctx, query)
}

// DeletionScheduled returns tenants with a pending deletion date.
func (r *TenantRepository) DeletionScheduled(ctx context.Context) ([]model.TenantCandidate, error) {
	query := `
        SELECT id, owner_user_id, name, deletion_scheduled_at
        FROM tenants
        WHERE deleted_at IS NULL
          AND deletion_scheduled_at IS NOT NULL
    `
	return r.queryCandidates(ctx, query)
}

// TrialExpired returns trial tenants whose expiry has passed, for downgrade.
func (r *TenantRepository) TrialExpired(ctx context.Context) ([]model.TenantCandidate, error) {
	query := `
        SELECT id, owner_user_id, name, trial_expires_at
        FROM tenants
        WHERE deleted_at IS NULL
          AND plan = 'trial'
          AND trial_expires_at IS NOT NULL
          AND trial_expires_at < NOW()
    `
	return r.queryCandidates(ctx, query)
}

// DeletionDue returns tenants whose deletion grace period has elapsed.
func (r *TenantRepository) DeletionDue(ctx context.Context) ([]model.TenantCandidate, error) {
	query := `
        SELECT id, owner_user_id, name, deletion_scheduled_at
        FROM tenants
        WHERE deleted_at IS NULL
          AND deletion_scheduled_at IS NOT NULL
          AND deletion_scheduled_at < NOW()
    `
	return r.queryCandidates(ctx, query)
}

// DowngradeToFree moves an expired trial tenant to the free plan.
func (r *TenantRepository) DowngradeToFree(ctx context.Context, tenantID string) error {
	query := `
        UPDATE tenants
        SET plan = 'free', trial_expires_at = NULL, updated_at = NOW()
        WHERE id = $1 AND plan = 'trial'
    `
	_, err := r.db.Exec(ctx, query, tenantID)
	return err
}

// MarkDeleted soft-deletes a tenant whose grace period elapsed.
func (r *TenantRepository) MarkDeleted(ctx context.Context, tenantID string) error {
	query := `
        UPDATE tenants
        SET deleted_at = NOW(), deletion_scheduled_at = NULL, updated_at = NOW()
        WHERE id = $1 AND deleted_at IS NULL
    `
	_, err := r.db.Exec(ctx, query, tenantID)
	return err
}

func (r *TenantRepository) queryCandidates(ctx context.Context, query string) ([]model.TenantCandidate, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []model.TenantCandidate
	for rows.Next() {
		var c model.TenantCandidate
		if err := rows.Scan(&c.TenantID, &c.OwnerUserID, &c.TenantName, &c.DeadlineAt); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
