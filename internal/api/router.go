package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"notifyhub/pkg/rbac"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	notificationHandler *NotificationHandler,
	preferenceHandler *PreferenceHandler,
	adminHandler *AdminHandler,
	jwtSecret string,
	db *pgxpool.Pool,
) *Router {
	r := gin.Default()
	r.Use(TraceMiddleware(), MetricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}

		c.JSON(200, gin.H{"status": "ready"})
	})

	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.GET("/notifications",
			RequirePermission(rbac.PermissionReadNotifications),
			notificationHandler.List)
		auth.GET("/notifications/unread_count",
			RequirePermission(rbac.PermissionReadNotifications),
			notificationHandler.UnreadCount)
		auth.POST("/notifications/:id/read",
			RequirePermission(rbac.PermissionWriteNotifications),
			notificationHandler.MarkRead)
		auth.POST("/notifications/read_all",
			RequirePermission(rbac.PermissionWriteNotifications),
			notificationHandler.MarkAllRead)
		auth.DELETE("/notifications/:id",
			RequirePermission(rbac.PermissionWriteNotifications),
			notificationHandler.Delete)

		auth.GET("/preferences",
			RequirePermission(rbac.PermissionReadNotifications),
			preferenceHandler.Get)
		auth.PUT("/preferences",
			RequirePermission(rbac.PermissionWritePreferences),
			preferenceHandler.Update)
		auth.POST("/preferences/pause",
			RequirePermission(rbac.PermissionWritePreferences),
			preferenceHandler.Pause)
		auth.POST("/preferences/resume",
			RequirePermission(rbac.PermissionWritePreferences),
			preferenceHandler.Resume)

		admin := auth.Group("/admin")
		{
			admin.POST("/triggers/:trigger",
				RequirePermission(rbac.PermissionRunTriggers),
				adminHandler.TriggerNow)
			admin.GET("/triggers",
				RequirePermission(rbac.PermissionRunTriggers),
				adminHandler.ListTriggers)
			admin.GET("/failed-jobs",
				RequirePermission(rbac.PermissionReadFailedJobs),
				adminHandler.ListFailedJobs)
		}
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
