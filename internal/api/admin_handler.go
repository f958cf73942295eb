package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mqcontracts "notifyhub/contracts/mq"
	"notifyhub/internal/schedule"
	"notifyhub/pkg/mq"
)

// FailedJobReader lists jobs parked on a dead letter queue.
type FailedJobReader interface {
	Peek(routingKey string, max int) ([]mq.FailedJob, error)
}

type AdminHandler struct {
	scheduler *schedule.Scheduler
	dlq       FailedJobReader
	logger    *zap.Logger
}

func NewAdminHandler(scheduler *schedule.Scheduler, dlq FailedJobReader, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{scheduler: scheduler, dlq: dlq, logger: logger}
}

var knownTriggers = map[string]bool{
	mqcontracts.TriggerMFAEnablement:     true,
	mqcontracts.TriggerPhoneVerification: true,
	mqcontracts.TriggerTrialExpiration:   true,
	mqcontracts.TriggerTrialDowngrade:    true,
	mqcontracts.TriggerTenantDeletion:    true,
}

// TriggerNow fires one campaign trigger immediately, outside the schedule.
func (h *AdminHandler) TriggerNow(c *gin.Context) {
	name := c.Param("trigger")
	if !knownTriggers[name] {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown trigger: " + name})
		return
	}

	jobID, err := h.scheduler.TriggerNow(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("Failed to fire manual trigger",
			zap.String("trigger", name),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fire trigger"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "job_id": jobID})
}

// ListTriggers returns the recurring trigger registry.
func (h *AdminHandler) ListTriggers(c *gin.Context) {
	triggers, err := h.scheduler.ListRecurring(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list triggers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list triggers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"triggers": triggers})
}

// ListFailedJobs returns delivery jobs that exhausted their retries.
func (h *AdminHandler) ListFailedJobs(c *gin.Context) {
	max, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if max <= 0 || max > 200 {
		max = 50
	}

	jobs, err := h.dlq.Peek(mqcontracts.RoutingKeyReminderDeliver, max)
	if err != nil {
		h.logger.Error("Failed to read dead letter queue", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read failed jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}
