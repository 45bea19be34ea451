package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"canister-transfer-backend/internal/model"
	"canister-transfer-backend/internal/store"
)

type cycleDeviceResponse struct {
	DeviceID         int64  `json:"device_id"`
	Role             string `json:"role"`
	Status           string `json:"status"`
	ToTrolleyCount   int    `json:"to_trolley_count"`
	FromTrolleyCount int    `json:"from_trolley_count"`
}

type transferRecordResponse struct {
	CanisterID          int64  `json:"canister_id"`
	NeedCanisterID      int64  `json:"need_canister_id"`
	SourceDeviceID      int64  `json:"source_device_id"`
	SourceLocationID    *int64 `json:"source_location_id"`
	TrolleyLocationID   *int64 `json:"trolley_location_id"`
	DestDeviceID        int64  `json:"dest_device_id"`
	DestQuadrant        int    `json:"dest_quadrant"`
	DestLocationID      *int64 `json:"dest_location_id"`
	DestLocationNumber  *int   `json:"dest_location_number"`
	Status              string `json:"status"`
	AlternateCanisterID *int64 `json:"alternate_canister_id,omitempty"`
	AlternateOfID       *int64 `json:"alternate_of_id,omitempty"`
}

func toRecordResponse(r *model.TransferRecord) transferRecordResponse {
	return transferRecordResponse{
		CanisterID:          r.CanisterID,
		NeedCanisterID:      r.NeedCanisterID,
		SourceDeviceID:      r.SourceDeviceID,
		SourceLocationID:    r.SourceLocationID,
		TrolleyLocationID:   r.TrolleyLocationID,
		DestDeviceID:        r.DestDeviceID,
		DestQuadrant:        r.DestQuadrant,
		DestLocationID:      r.DestLocationID,
		DestLocationNumber:  r.DestLocationNumber,
		Status:              r.Status.String(),
		AlternateCanisterID: r.AlternateCanisterID,
		AlternateOfID:       r.AlternateOfID,
	}
}

// GetCycle returns the device statuses and transfer records of a cycle.
func (h *Handler) GetCycle(c *gin.Context) {
	batchID, ok := pathID(c, "batch_id")
	if !ok {
		return
	}
	cycleID, ok := pathID(c, "cycle_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	devices, err := h.store.ListCycleDevices(ctx, batchID, cycleID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if len(devices) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "cycle not found"})
		return
	}
	records, err := h.store.ListTransferRecords(ctx, batchID, cycleID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	deviceResp := make([]cycleDeviceResponse, len(devices))
	for i, d := range devices {
		deviceResp[i] = cycleDeviceResponse{
			DeviceID:         d.DeviceID,
			Role:             d.Role.String(),
			Status:           d.Status.String(),
			ToTrolleyCount:   d.ToTrolleyCount,
			FromTrolleyCount: d.FromTrolleyCount,
		}
	}
	recordResp := make([]transferRecordResponse, len(records))
	for i := range records {
		recordResp[i] = toRecordResponse(&records[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id": batchID,
		"cycle_id": cycleID,
		"devices":  deviceResp,
		"records":  recordResp,
	})
}

type deviceStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// PutDeviceStatus advances the status of one device in a cycle.
func (h *Handler) PutDeviceStatus(c *gin.Context) {
	batchID, ok := pathID(c, "batch_id")
	if !ok {
		return
	}
	cycleID, ok := pathID(c, "cycle_id")
	if !ok {
		return
	}
	deviceID, ok := pathID(c, "device_id")
	if !ok {
		return
	}
	var req deviceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	status, ok := model.ParseCycleStatus(req.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	key := store.CycleKey{BatchID: batchID, CycleID: cycleID, DeviceID: deviceID}
	applied, err := h.cycles.UpdateCycleStatus(c.Request.Context(), key, status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !applied {
		c.JSON(http.StatusConflict, gin.H{"error": "status is already updated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status.String()})
}

// GetCycleCompletion reports whether every device of a role reached a status, and the
// next pending cycle of the batch when it did.
func (h *Handler) GetCycleCompletion(c *gin.Context) {
	batchID, ok := pathID(c, "batch_id")
	if !ok {
		return
	}
	cycleID, ok := pathID(c, "cycle_id")
	if !ok {
		return
	}
	role, ok := model.ParseDeviceRole(c.Query("role"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}
	status, ok := model.ParseCycleStatus(c.Query("status"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	done, next, err := h.cycles.CheckCycleStatus(c.Request.Context(), batchID, cycleID, role, status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"done": done, "next_cycle_id": next})
}
