package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"canister-transfer-backend/internal/logging"
	"canister-transfer-backend/internal/model"
	"canister-transfer-backend/internal/store"
	"canister-transfer-backend/internal/transfer"
)

// Repository is the part of store.Store the handlers read directly.
type Repository interface {
	ListCycleDevices(ctx context.Context, batchID, cycleID int64) ([]store.CycleDevice, error)
	ListTransferRecords(ctx context.Context, batchID, cycleID int64) ([]model.TransferRecord, error)
	SaveSubscription(ctx context.Context, sub *model.PushSubscription, deviceIDs []int64) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
}

// Scheduler runs scheduling passes.
type Scheduler interface {
	Run(ctx context.Context, req transfer.RunRequest) (*transfer.PassResult, error)
}

// Cycles drives cycle and transfer record status.
type Cycles interface {
	UpdateCycleStatus(ctx context.Context, key store.CycleKey, status model.CycleStatus) (bool, error)
	CheckCycleStatus(ctx context.Context, batchID, cycleID int64, role model.DeviceRole, required model.CycleStatus) (bool, *int64, error)
	ConfirmPlacement(ctx context.Context, req transfer.ConfirmRequest) (*model.TransferRecord, error)
	Skip(ctx context.Context, batchID int64, canisterIDs []int64) error
	TransferLater(ctx context.Context, batchID int64, canisterIDs []int64) error
	SkipWithAlternate(ctx context.Context, req transfer.AlternateRequest) (*model.TransferRecord, error)
	ScanDrawer(ctx context.Context, code string) (*model.Container, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     Repository
	scheduler Scheduler
	cycles    Cycles
	webpush   *webpush.Options
	logger    *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s Repository, scheduler Scheduler, cycles Cycles, webpushOptions *webpush.Options, logger *zap.Logger) *Handler {
	return &Handler{
		store:     s,
		scheduler: scheduler,
		cycles:    cycles,
		webpush:   webpushOptions,
		logger:    logging.OrNop(logger),
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

// writeError maps domain errors to HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var cartErr *transfer.CartNotEmptyError
	var pendingErr *transfer.PendingTransferError

	switch {
	case errors.As(err, &cartErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "canister_ids": cartErr.CanisterIDs})
	case errors.As(err, &pendingErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "batch_id": pendingErr.BatchID, "cycle_id": pendingErr.CycleID})
	case errors.Is(err, transfer.ErrStaleUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": "status is already updated"})
	case errors.Is(err, transfer.ErrAlreadyRunning),
		errors.Is(err, transfer.ErrAlreadyReserved),
		errors.Is(err, transfer.ErrLocationOccupied),
		errors.Is(err, transfer.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, transfer.ErrInvalidModule),
		errors.Is(err, transfer.ErrInvalidCanisterList):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, transfer.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, transfer.ErrNoTrolleyAvailable),
		errors.Is(err, transfer.ErrNoAlternate),
		errors.Is(err, transfer.ErrNoLocation),
		errors.Is(err, transfer.ErrWrongDevice):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
