package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notifyhub/internal/model"
	"notifyhub/internal/policy"
	"notifyhub/internal/service/prefs"
)

type PreferenceHandler struct {
	svc    *prefs.Service
	logger *zap.Logger
}

func NewPreferenceHandler(svc *prefs.Service, logger *zap.Logger) *PreferenceHandler {
	return &PreferenceHandler{svc: svc, logger: logger}
}

// Get returns the caller's preference row, creating the defaults on first
// read.
func (h *PreferenceHandler) Get(c *gin.Context) {
	userID := c.GetString("user_id")
	tenantID := c.GetHeader("X-Tenant-ID")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-Tenant-ID header"})
		return
	}

	p, err := h.svc.GetOrCreate(c.Request.Context(), userID, tenantID)
	if err != nil {
		h.logger.Error("Failed to load preferences",
			zap.String("user_id", userID),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load preferences"})
		return
	}

	c.JSON(http.StatusOK, p)
}

type updatePreferenceRequest struct {
	EmailEnabled *bool                            `json:"email_enabled"`
	InAppEnabled *bool                            `json:"in_app_enabled"`
	SoundEnabled *bool                            `json:"sound_enabled"`
	SoundVolume  *int                             `json:"sound_volume"`
	DNDEnabled   *bool                            `json:"dnd_enabled"`
	DNDStart     *string                          `json:"dnd_start"`
	DNDEnd       *string                          `json:"dnd_end"`
	Overrides    map[string]model.ChannelOverride `json:"overrides"`
}

// Update applies a partial preference change. Unknown override categories
// are rejected; ALWAYS_SEND categories cannot be overridden.
func (h *PreferenceHandler) Update(c *gin.Context) {
	userID := c.GetString("user_id")
	tenantID := c.GetHeader("X-Tenant-ID")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-Tenant-ID header"})
		return
	}

	var req updatePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var overrides map[policy.Category]model.ChannelOverride
	if req.Overrides != nil {
		overrides = make(map[policy.Category]model.ChannelOverride, len(req.Overrides))
		for name, ov := range req.Overrides {
			cat := policy.Category(name)
			if policy.Classify(cat) == policy.ClassificationUnknown {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category: " + name})
				return
			}
			if policy.IsAlwaysSend(cat) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "category cannot be overridden: " + name})
				return
			}
			overrides[cat] = ov
		}
	}

	p, err := h.svc.Update(c.Request.Context(), userID, tenantID, prefs.UpdateRequest{
		EmailEnabled: req.EmailEnabled,
		InAppEnabled: req.InAppEnabled,
		SoundEnabled: req.SoundEnabled,
		SoundVolume:  req.SoundVolume,
		DNDEnabled:   req.DNDEnabled,
		DNDStart:     req.DNDStart,
		DNDEnd:       req.DNDEnd,
		Overrides:    overrides,
	})
	if err != nil {
		if errors.Is(err, prefs.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to update preferences",
			zap.String("user_id", userID),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update preferences"})
		return
	}

	c.JSON(http.StatusOK, p)
}

type pauseRequest struct {
	Until time.Time `json:"until" binding:"required"`
}

// Pause suppresses email delivery for the caller until a given time.
func (h *PreferenceHandler) Pause(c *gin.Context) {
	userID := c.GetString("user_id")
	tenantID := c.GetHeader("X-Tenant-ID")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-Tenant-ID header"})
		return
	}

	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !req.Until.After(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "until must be in the future"})
		return
	}

	if err := h.svc.Pause(c.Request.Context(), userID, tenantID, req.Until); err != nil {
		h.logger.Error("Failed to pause notifications",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to pause"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "paused_until": req.Until})
}

// Resume clears an active pause.
func (h *PreferenceHandler) Resume(c *gin.Context) {
	userID := c.GetString("user_id")
	tenantID := c.GetHeader("X-Tenant-ID")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-Tenant-ID header"})
		return
	}

	if err := h.svc.Resume(c.Request.Context(), userID, tenantID); err != nil {
		h.logger.Error("Failed to resume notifications",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resume"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
