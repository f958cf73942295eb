package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"notifyhub/internal/model"
	"notifyhub/internal/policy"
	"notifyhub/internal/repository"
	"notifyhub/internal/service/mailer"
	"notifyhub/pkg/metrics"
)

// UserDirectory resolves recipients.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// NotificationWriter persists in-app notifications.
type NotificationWriter interface {
	Create(ctx context.Context, n *model.Notification) error
}

// ChannelResolver answers per-channel eligibility and delivery-timing gates.
type ChannelResolver interface {
	IsChannelEnabled(ctx context.Context, userID, tenantID string, category policy.Category, channel policy.Channel) (bool, error)
	EmailSuppressedNow(ctx context.Context, userID, tenantID string, now time.Time) (bool, error)
}

// Request is one policy-aware multichannel notification.
type Request struct {
	UserID      string
	TenantID    string // empty for account-level notifications
	Category    policy.Category
	Title       string
	Message     string
	Severity    policy.Severity
	ActionRoute string
	ActionLabel string
	Metadata    map[string]any

	// Email content. Email is only attempted when both are provided.
	EmailSubject string
	EmailHTML    string
}

// Result reports per-channel outcomes. Failures are fields, not errors;
// nothing here propagates an exception into caller code.
type Result struct {
	EmailSent  bool
	EmailError string
	InAppSent  bool
	InAppError string
}

// Hub is the single entry point for policy-aware notification delivery, used
// by the reminder pipeline and by direct security-event flows alike.
type Hub struct {
	users    UserDirectory
	writer   NotificationWriter
	resolver ChannelResolver
	sender   mailer.Sender
	logger   *zap.Logger
	now      func() time.Time
}

func New(users UserDirectory, writer NotificationWriter, resolver ChannelResolver, sender mailer.Sender, logger *zap.Logger) *Hub {
	return &Hub{
		users:    users,
		writer:   writer,
		resolver: resolver,
		sender:   sender,
		logger:   logger,
		now:      time.Now,
	}
}

// Notify resolves eligibility, sends email, falls back to in-app, and
// reports the outcome.
//
// The fallback rule is the load-bearing invariant: an enabled email that
// FAILS to send always produces an in-app notification, regardless of the
// user's in-app preference. An email disabled by preference never does.
func (h *Hub) Notify(ctx context.Context, req Request) Result {
	var result Result

	user, err := h.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.logger.Warn("Notify target user not found",
				zap.String("user_id", req.UserID),
				zap.String("category", string(req.Category)),
			)
		} else {
			h.logger.Error("Failed to resolve notify target",
				zap.String("user_id", req.UserID),
				zap.Error(err),
			)
		}
		result.EmailError = "user not found"
		result.InAppError = "user not found"
		return result
	}

	alwaysSend := policy.IsAlwaysSend(req.Category)

	emailEnabled, inAppEnabled := true, true
	if !alwaysSend && req.TenantID != "" {
		emailEnabled = h.channelEnabled(ctx, req, policy.ChannelEmail)
		inAppEnabled = h.channelEnabled(ctx, req, policy.ChannelInApp)
	}

	// Pause and DND hold back the email channel only: timing suppression is
	// not a send failure and must not trigger the fallback.
	emailAttempted := false
	if emailEnabled && req.EmailHTML != "" {
		suppressed := false
		if !alwaysSend && req.TenantID != "" {
			suppressed, err = h.resolver.EmailSuppressedNow(ctx, req.UserID, req.TenantID, h.now())
			if err != nil {
				h.logger.Error("Failed to check delivery gate", zap.Error(err))
				suppressed = false
			}
		}
		if suppressed {
			metrics.IncDelivery("email", "suppressed")
			h.logger.Info("Email suppressed by pause/DND window",
				zap.String("user_id", req.UserID),
				zap.String("category", string(req.Category)),
			)
		} else {
			emailAttempted = true
			sendRes := h.sender.Send(ctx, mailer.Message{
				To:      user.Email,
				Subject: req.EmailSubject,
				HTML:    req.EmailHTML,
			})
			result.EmailSent = sendRes.Sent
			result.EmailError = sendRes.Error
			if sendRes.Sent {
				metrics.IncDelivery("email", "sent")
			} else {
				metrics.IncDelivery("email", "failed")
				h.logger.Warn("Email send failed",
					zap.String("user_id", req.UserID),
					zap.String("category", string(req.Category)),
					zap.String("error", sendRes.Error),
				)
			}
		}
	}

	// In-app fallback rule: create when enabled, or as a backstop when an
	// attempted email did not go out.
	shouldCreateInApp := inAppEnabled || (emailAttempted && !result.EmailSent)
	if req.TenantID == "" {
		// No workspace to scope an in-app notification to.
		shouldCreateInApp = false
	}

	if shouldCreateInApp {
		if !inAppEnabled {
			metrics.IncFallback()
		}
		metadata := map[string]any{}
		for k, v := range req.Metadata {
			metadata[k] = v
		}
		metadata["email_sent"] = result.EmailSent
		if result.EmailError != "" {
			metadata["email_error"] = result.EmailError
		}

		n := &model.Notification{
			UserID:      req.UserID,
			TenantID:    req.TenantID,
			Type:        policy.TypeOf(req.Category),
			Category:    req.Category,
			Title:       req.Title,
			Message:     req.Message,
			Severity:    req.Severity,
			ActionRoute: req.ActionRoute,
			ActionLabel: req.ActionLabel,
			Metadata:    metadata,
		}
		if err := h.writer.Create(ctx, n); err != nil {
			result.InAppError = err.Error()
			metrics.IncDelivery("in_app", "failed")
			h.logger.Error("Failed to create in-app notification",
				zap.String("user_id", req.UserID),
				zap.String("category", string(req.Category)),
				zap.Error(err),
			)
		} else {
			result.InAppSent = true
			metrics.IncDelivery("in_app", "sent")
		}
	}

	return result
}

// NotifyAsync submits a notification in the background. The primary request
// must never fail because a notification could not be delivered; the outcome
// is logged and swallowed.
func (h *Hub) NotifyAsync(req Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		result := h.Notify(ctx, req)
		if !result.EmailSent && !result.InAppSent {
			h.logger.Warn("Background notification delivered nothing",
				zap.String("user_id", req.UserID),
				zap.String("category", string(req.Category)),
				zap.String("email_error", result.EmailError),
				zap.String("in_app_error", result.InAppError),
			)
		}
	}()
}

func (h *Hub) channelEnabled(ctx context.Context, req Request, channel policy.Channel) bool {
	enabled, err := h.resolver.IsChannelEnabled(ctx, req.UserID, req.TenantID, req.Category, channel)
	if err != nil {
		// Fail open: a resolver error must not swallow a notification.
		h.logger.Error("Channel resolution failed, defaulting to enabled",
			zap.String("user_id", req.UserID),
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
		return true
	}
	return enabled
}
