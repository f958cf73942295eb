package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"notifyhub/internal/model"
)

type NotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Insert(ctx context.Context, n *model.Notification) error {
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
        INSERT INTO notifications
            (id, user_id, tenant_id, type, category, title, message, severity,
             action_route, action_label, metadata, is_read, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12)
    `
	_, err = r.db.Exec(ctx, query,
		n.ID, n.UserID, n.TenantID, n.Type, n.Category, n.Title, n.Message,
		n.Severity, n.ActionRoute, n.ActionLabel, metadata, n.CreatedAt,
	)
	return err
}

// List returns up to limit notifications for (user, tenant), newest first.
// cursor, when set, is the id of the last item of the previous page; keyset
// pagination keeps pages stable while new rows arrive.
func (r *NotificationRepository) List(ctx context.Context, userID, tenantID string, limit int, cursor string, unreadOnly bool) ([]model.Notification, error) {
	query := `
        SELECT id, user_id, tenant_id, type, category, title, message, severity,
               action_route, action_label, metadata, is_read, read_at, created_at
        FROM notifications
        WHERE user_id = $1 AND tenant_id = $2
    `
	args := []any{userID, tenantID}

	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	if cursor != "" {
		args = append(args, cursor)
		query += fmt.Sprintf(`
        AND (created_at, id) < (
            SELECT created_at, id FROM notifications WHERE id = $%d
        )`, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(`
        ORDER BY created_at DESC, id DESC
        LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Notification
	for rows.Next() {
		var n model.Notification
		var metadata []byte
		err := rows.Scan(
			&n.ID, &n.UserID, &n.TenantID, &n.Type, &n.Category, &n.Title,
			&n.Message, &n.Severity, &n.ActionRoute, &n.ActionLabel,
			&metadata, &n.IsRead, &n.ReadAt, &n.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID, tenantID string) (int, error) {
	query := `
        SELECT COUNT(*) FROM notifications
        WHERE user_id = $1 AND tenant_id = $2 AND is_read = FALSE
    `
	var count int
	err := r.db.QueryRow(ctx, query, userID, tenantID).Scan(&count)
	return count, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID, tenantID, id string) error {
	query := `
        UPDATE notifications
        SET is_read = TRUE, read_at = NOW()
        WHERE id = $1 AND user_id = $2 AND tenant_id = $3 AND is_read = FALSE
    `
	tag, err := r.db.Exec(ctx, query, id, userID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already read; verify ownership before reporting.
		var exists bool
		err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2 AND tenant_id = $3)`,
			id, userID, tenantID,
		).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID, tenantID string) (int, error) {
	query := `
        UPDATE notifications
        SET is_read = TRUE, read_at = NOW()
        WHERE user_id = $1 AND tenant_id = $2 AND is_read = FALSE
    `
	tag, err := r.db.Exec(ctx, query, userID, tenantID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *NotificationRepository) Delete(ctx context.Context, userID, tenantID, id string) error {
	query := `
        DELETE FROM notifications
        WHERE id = $1 AND user_id = $2 AND tenant_id = $3
    `
	tag, err := r.db.Exec(ctx, query, id, userID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
