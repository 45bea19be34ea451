package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"canister-transfer-backend/internal/transfer"
)

type confirmRequest struct {
	LocationID *int64 `json:"location_id"`
}

// ConfirmPlacement records that a canister reached its trolley slot or destination.
func (h *Handler) ConfirmPlacement(c *gin.Context) {
	batchID, ok := pathID(c, "batch_id")
	if !ok {
		return
	}
	canisterID, ok := pathID(c, "canister_id")
	if !ok {
		return
	}
	var req confirmRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
	}

	rec, err := h.cycles.ConfirmPlacement(c.Request.Context(), transfer.ConfirmRequest{
		BatchID:    batchID,
		CanisterID: canisterID,
		LocationID: req.LocationID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRecordResponse(rec))
}

type alternateRequest struct {
	SubstituteID *int64 `json:"substitute_id"`
}

// SkipWithAlternate replaces a canister by a substitute holding the same drug.
func (h *Handler) SkipWithAlternate(c *gin.Context) {
	batchID, ok := pathID(c, "batch_id")
	if !ok {
		return
	}
	canisterID, ok := pathID(c, "canister_id")
	if !ok {
		return
	}
	var req alternateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
	}

	rec, err := h.cycles.SkipWithAlternate(c.Request.Context(), transfer.AlternateRequest{
		BatchID:      batchID,
		CanisterID:   canisterID,
		SubstituteID: req.SubstituteID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRecordResponse(rec))
}

type canisterListRequest struct {
	CanisterIDs []int64 `json:"canister_ids" binding:"required"`
}

// Skip ends the transfer of the listed canisters.
func (h *Handler) Skip(c *gin.Context) {
	h.terminate(c, h.cycles.Skip)
}

// TransferLater ends the transfer of the listed canisters and requeues their needs.
func (h *Handler) TransferLater(c *gin.Context) {
	h.terminate(c, h.cycles.TransferLater)
}

func (h *Handler) terminate(c *gin.Context, fn func(ctx context.Context, batchID int64, canisterIDs []int64) error) {
	batchID, ok := pathID(c, "batch_id")
	if !ok {
		return
	}
	var req canisterListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	if err := fn(c.Request.Context(), batchID, req.CanisterIDs); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type scanRequest struct {
	Code string `json:"code" binding:"required"`
}

// ScanDrawer resolves a scanned drawer label or serial number.
func (h *Handler) ScanDrawer(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	drawer, err := h.cycles.ScanDrawer(c.Request.Context(), req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"container_id":  drawer.ID,
		"device_id":     drawer.DeviceID,
		"drawer":        drawer.Name,
		"serial_number": drawer.SerialNumber,
	})
}
