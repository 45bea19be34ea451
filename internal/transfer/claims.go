package transfer

import (
	"context"

	"go.uber.org/zap"

	"canister-transfer-backend/internal/store"
)

// claims tracks the reservations taken during one operation so they can be
// released together if the operation does not persist.
type claims struct {
	store     store.Store
	batchID   *int64
	held      []int64
	committed bool
	logger    *zap.Logger
}

func newClaims(st store.Store, batchID *int64, logger *zap.Logger) *claims {
	return &claims{store: st, batchID: batchID, logger: logger}
}

// reserve claims a canister or fails with ErrAlreadyReserved.
func (c *claims) reserve(ctx context.Context, canisterID int64) error {
	ok, err := c.store.ReserveCanister(ctx, canisterID, c.batchID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyReserved
	}
	c.held = append(c.held, canisterID)
	return nil
}

// drop releases one claim taken by this operation.
func (c *claims) drop(ctx context.Context, canisterID int64) error {
	for i, id := range c.held {
		if id == canisterID {
			c.held = append(c.held[:i], c.held[i+1:]...)
			return c.store.ReleaseReservation(ctx, []int64{canisterID})
		}
	}
	return nil
}

func (c *claims) commit() {
	c.committed = true
}

// rollback releases every claim unless the operation committed.
func (c *claims) rollback(ctx context.Context) {
	if c.committed || len(c.held) == 0 {
		return
	}
	if err := c.store.ReleaseReservation(context.WithoutCancel(ctx), c.held); err != nil {
		c.logger.Error("failed to release reservations", zap.Int64s("canister_ids", c.held), zap.Error(err))
		return
	}
	c.logger.Debug("released reservations", zap.Int64s("canister_ids", c.held))
	c.held = nil
}
