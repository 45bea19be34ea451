package transfer

import (
	"errors"
	"fmt"

	"canister-transfer-backend/internal/store"
)

var (
	ErrAlreadyRunning      = errors.New("scheduler is already running")
	ErrNoReplenishNeeded   = errors.New("no replenishment needed")
	ErrNoTrolleyAvailable  = errors.New("no trolley available")
	ErrAlreadyReserved     = errors.New("canister is already reserved")
	ErrNoAlternate         = errors.New("no alternate canister available")
	ErrInvalidCanisterList = errors.New("invalid canister list")
	ErrInvalidModule       = errors.New("invalid module")
	ErrInvalidTransition   = errors.New("invalid transfer transition")
	ErrWrongDevice         = errors.New("location is not on the planned device")

	// Repository errors surfaced unchanged.
	ErrStaleUpdate      = store.ErrStaleUpdate
	ErrNotFound         = store.ErrNotFound
	ErrLocationOccupied = store.ErrLocationOccupied
	ErrNoLocation       = store.ErrNoLocation
)

// CartNotEmptyError is returned when canisters from an earlier pass still sit on a trolley.
type CartNotEmptyError struct {
	CanisterIDs []int64
}

func (e *CartNotEmptyError) Error() string {
	return fmt.Sprintf("%d canister(s) still on a trolley", len(e.CanisterIDs))
}

// PendingTransferError is returned while a cycle of the system is not drained.
type PendingTransferError struct {
	SystemID int64
	BatchID  int64
	CycleID  int64
}

func (e *PendingTransferError) Error() string {
	return fmt.Sprintf("transfer pending for system %d: batch %d cycle %d", e.SystemID, e.BatchID, e.CycleID)
}
