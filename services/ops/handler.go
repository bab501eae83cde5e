package ops

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"licensehub-engine/pkg/db/pagination"
	"licensehub-engine/pkg/errutil"
	"licensehub-engine/pkg/task"
	"licensehub-engine/services/license"
	"licensehub-engine/services/lifecycle"
	"licensehub-engine/services/reconcile"
)

// Handler is the operational HTTP surface: manual run triggers plus direct
// license lifecycle actions. Scheduled runs go through asynq; these endpoints
// enqueue the same tasks so a manual run and a scheduled one are identical.
type Handler struct {
	enqueuer  task.Enqueuer
	licenses  *license.Service
	lifecycle *lifecycle.Service
}

type HandlerParams struct {
	fx.In
	Enqueuer  task.Enqueuer
	Licenses  *license.Service
	Lifecycle *lifecycle.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		enqueuer:  p.Enqueuer,
		licenses:  p.Licenses,
		lifecycle: p.Lifecycle,
	}
}

var Module = fx.Module("ops",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	grp := r.Group("/ops")
	{
		grp.POST("/sync", h.TriggerSync)
		grp.POST("/push", h.TriggerPush)
		grp.POST("/sweep", h.TriggerSweep)
		grp.POST("/reminders", h.TriggerReminders)
	}

	lic := r.Group("/licenses")
	{
		lic.GET("", h.ListLicenses)
		lic.GET("/:key", h.GetLicense)
		lic.POST("/:id/renew", h.RenewLicense)
		lic.POST("/:id/suspend", h.SuspendLicense)
		lic.POST("/:id/reactivate", h.ReactivateLicense)
	}
}

type triggerSyncRequest struct {
	MaxLicenses    int  `json:"max_licenses"`
	SkipValidation bool `json:"skip_validation"`
}

func (h *Handler) TriggerSync(c *gin.Context) {
	var req triggerSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	t, err := reconcile.NewSyncTask(reconcile.SyncPayload{
		MaxLicenses:    req.MaxLicenses,
		SkipValidation: req.SkipValidation,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.enqueue(c, t)
}

func (h *Handler) TriggerPush(c *gin.Context) {
	h.enqueue(c, reconcile.NewPushTask())
}

func (h *Handler) TriggerSweep(c *gin.Context) {
	h.enqueue(c, lifecycle.NewSweepTask())
}

func (h *Handler) TriggerReminders(c *gin.Context) {
	h.enqueue(c, lifecycle.NewReminderTask())
}

func (h *Handler) enqueue(c *gin.Context, t *asynq.Task) {
	info, err := h.enqueuer.Enqueue(t)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	zap.L().Info("task enqueued", zap.String("task_id", info.ID), zap.String("task_type", info.Type))
	c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "task_type": info.Type})
}

func (h *Handler) ListLicenses(c *gin.Context) {
	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lics, pageInfo, err := h.licenses.List(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": lics, "page_info": pageInfo})
}

func (h *Handler) GetLicense(c *gin.Context) {
	lic, err := h.licenses.GetByKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, lic)
}

type renewRequest struct {
	NewExpiry time.Time `json:"new_expiry" binding:"required"`
}

func (h *Handler) RenewLicense(c *gin.Context) {
	var req renewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lic, err := h.lifecycle.ExtendExpiry(c.Request.Context(), c.Param("id"), req.NewExpiry)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, lic)
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) SuspendLicense(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lic, err := h.lifecycle.Suspend(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, lic)
}

func (h *Handler) ReactivateLicense(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lic, err := h.lifecycle.Reactivate(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, lic)
}

func respondError(c *gin.Context, err error) {
	c.JSON(errutil.StatusOf(err).HTTPCode(), gin.H{"error": err.Error()})
}
