package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"canister-transfer-backend/internal/model"
)

var (
	// ErrStaleUpdate is returned when a status write loses against a newer status.
	ErrStaleUpdate = errors.New("status is already updated")
	// ErrNotFound is returned when a keyed row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrLocationOccupied is returned when a canister is placed on a location holding another canister.
	ErrLocationOccupied = errors.New("location is occupied")
	// ErrNoLocation is returned when a canister has nowhere to go.
	ErrNoLocation = errors.New("no location to place the canister on")
)

// Store defines the interface for all database operations.
type Store interface {
	// Replenishment input
	GetReplenishCandidates(ctx context.Context, systemID int64, deviceIDs []int64) (*ReplenishNeed, error)
	GetAlternateCandidates(ctx context.Context, companyID int64, canisterIDs []int64, filter AlternateFilter) ([]AlternateCandidate, error)
	FindSlowMover(ctx context.Context, deviceID int64, quadrant, minLevel, maxLevel int) (*SlowMover, error)

	GetCanister(ctx context.Context, canisterID int64) (*model.Canister, error)

	// Capacity
	GetEmptyLocations(ctx context.Context, deviceID int64, quadrants []int) ([]EmptyLocation, error)
	GetEmptyCSRLocations(ctx context.Context, systemID int64) ([]EmptyLocation, error)
	GetAvailableTrolleys(ctx context.Context, systemID int64, role model.DeviceRole, exclude []int64) ([]TrolleyProfile, error)
	CanistersOnTrolleys(ctx context.Context, systemID int64) ([]int64, error)
	GetLocation(ctx context.Context, locationID int64) (*model.Location, error)
	FindContainerBySerial(ctx context.Context, serial string) (*model.Container, error)
	FindContainerByName(ctx context.Context, deviceName, drawerName string) (*model.Container, error)

	// Reservations
	ReserveCanister(ctx context.Context, canisterID int64, batchID *int64) (bool, error)
	ReleaseReservation(ctx context.Context, canisterIDs []int64) error
	ListReservedCanisters(ctx context.Context) ([]int64, error)

	// Cycles
	CreateOrUpdateCycleMeta(ctx context.Context, meta *model.TransferCycleMeta) error
	AdvanceCycleStatus(ctx context.Context, key CycleKey, status model.CycleStatus) (bool, error)
	ListCycleDevices(ctx context.Context, batchID, cycleID int64) ([]CycleDevice, error)
	NextPendingCycle(ctx context.Context, batchID, afterCycleID int64) (*int64, error)
	FindPendingCycle(ctx context.Context, systemID int64) (*model.TransferCycleMeta, error)
	IsFirstCycle(ctx context.Context, batchID int64) (bool, error)
	CompleteGuidedMeta(ctx context.Context, cycleID int64) error

	// Transfer records
	CreateOrUpdateTransferRecord(ctx context.Context, rec *model.TransferRecord) error
	GetTransferRecord(ctx context.Context, batchID, canisterID int64) (*model.TransferRecord, error)
	ListTransferRecords(ctx context.Context, batchID, cycleID int64) ([]model.TransferRecord, error)
	ApplyTransfer(ctx context.Context, changes ...TransferChange) error
	SaveTrolleyPlans(ctx context.Context, plans []*TrolleyPlan) error

	// Scheduler lease
	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, owner string) error

	// Push subscriptions
	SaveSubscription(ctx context.Context, sub *model.PushSubscription, deviceIDs []int64) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
