package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notifyhub/internal/repository"
	"notifyhub/internal/service/notification"
)

type NotificationHandler struct {
	svc    *notification.Service
	logger *zap.Logger
}

func NewNotificationHandler(svc *notification.Service, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// List returns one cursor page of the caller's notifications, newest first.
// Query params: limit, cursor, unread_only. Tenant comes from X-Tenant-ID.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.GetString("user_id")
	tenantID := c.GetHeader("X-Tenant-ID")

	limit, _ := strconv.Atoi(c.Query("limit"))
	unreadOnly := c.Query("unread_only") == "true"

	result, err := h.svc.List(c.Request.Context(), userID, tenantID, notification.ListQuery{
		Limit:      limit,
		Cursor:     c.Query("cursor"),
		UnreadOnly: unreadOnly,
	})
	if err != nil {
		h.logger.Error("Failed to list notifications",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       result.Items,
		"has_more":    result.HasMore,
		"next_cursor": result.NextCursor,
	})
}

// UnreadCount returns the caller's unread badge count.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID := c.GetString("user_id")
	tenantID := c.GetHeader("X-Tenant-ID")

	count, err := h.svc.UnreadCount(c.Request.Context(), userID, tenantID)
	if err != nil {
		h.logger.Error("Failed to count unread notifications",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// MarkRead marks one notification read. Marking an already-read notification
// succeeds without changing anything.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID := c.GetString("user_id")
	tenantID := c.GetHeader("X-Tenant-ID")
	id := c.Param("id")

	err := h.svc.MarkRead(c.Request.Context(), userID, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		h.logger.Error("Failed to mark notification read",
			zap.String("user_id", userID),
			zap.String("notification_id", id),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MarkAllRead marks every unread notification read and reports the count.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := c.GetString("user_id")
	tenantID := c.GetHeader("X-Tenant-ID")

	count, err := h.svc.MarkAllRead(c.Request.Context(), userID, tenantID)
	if err != nil {
		h.logger.Error("Failed to mark all notifications read",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark all read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": count})
}

// Delete removes one notification owned by the caller.
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID := c.GetString("user_id")
	tenantID := c.GetHeader("X-Tenant-ID")
	id := c.Param("id")

	err := h.svc.Delete(c.Request.Context(), userID, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		h.logger.Error("Failed to delete notification",
			zap.String("user_id", userID),
			zap.String("notification_id", id),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete notification"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
