package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"canister-transfer-backend/internal/transfer"
)

type runSchedulerRequest struct {
	DeviceIDs []int64 `json:"device_ids"`
}

// RunScheduler starts a scheduling pass for a system.
func (h *Handler) RunScheduler(c *gin.Context) {
	systemID, ok := pathID(c, "system_id")
	if !ok {
		return
	}
	var req runSchedulerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
	}

	result, err := h.scheduler.Run(c.Request.Context(), transfer.RunRequest{SystemID: systemID, DeviceIDs: req.DeviceIDs})
	if errors.Is(err, transfer.ErrNoReplenishNeeded) {
		c.JSON(http.StatusOK, gin.H{"message": "nothing to schedule"})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
