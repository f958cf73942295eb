package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notifyhub/internal/model"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Repository is the slice of the notification store this service needs.
type Repository interface {
	Insert(ctx context.Context, n *model.Notification) error
	List(ctx context.Context, userID, tenantID string, limit int, cursor string, unreadOnly bool) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID, tenantID string) (int, error)
	MarkRead(ctx context.Context, userID, tenantID, id string) error
	MarkAllRead(ctx context.Context, userID, tenantID string) (int, error)
	Delete(ctx context.Context, userID, tenantID, id string) error
}

type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Create persists a notification, assigning its id and timestamp.
func (s *Service) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return s.repo.Insert(ctx, n)
}

// ListQuery parameterizes a page request.
type ListQuery struct {
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult is one page of notifications, newest first.
type ListResult struct {
	Items      []model.Notification
	HasMore    bool
	NextCursor string
}

// List returns one cursor page. Fetches limit+1 rows to learn whether more
// pages exist; the cursor is the id of the last returned item.
func (s *Service) List(ctx context.Context, userID, tenantID string, q ListQuery) (ListResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	items, err := s.repo.List(ctx, userID, tenantID, limit+1, q.Cursor, q.UnreadOnly)
	if err != nil {
		return ListResult{}, err
	}

	result := ListResult{Items: items}
	if len(items) > limit {
		result.Items = items[:limit]
		result.HasMore = true
		result.NextCursor = result.Items[limit-1].ID
	}
	return result, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID, tenantID string) (int, error) {
	return s.repo.CountUnread(ctx, userID, tenantID)
}

func (s *Service) MarkRead(ctx context.Context, userID, tenantID, id string) error {
	return s.repo.MarkRead(ctx, userID, tenantID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID, tenantID string) (int, error) {
	return s.repo.MarkAllRead(ctx, userID, tenantID)
}

func (s *Service) Delete(ctx context.Context, userID, tenantID, id string) error {
	return s.repo.Delete(ctx, userID, tenantID, id)
}
