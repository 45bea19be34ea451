package model

import (
	"time"

	"gorm.io/datatypes"
)

// TransferCycleMeta is the status of one device within one cycle of a batch (hot row, never deleted).
type TransferCycleMeta struct {
	ID               int64       `gorm:"primaryKey"`
	SystemID         int64       `gorm:"index;not null"`
	BatchID          int64       `gorm:"uniqueIndex:idx_cycle_device;not null"`
	CycleID          int64       `gorm:"uniqueIndex:idx_cycle_device;not null"`
	DeviceID         int64       `gorm:"uniqueIndex:idx_cycle_device;not null"`
	Status           CycleStatus `gorm:"not null"`
	ToTrolleyCount   int         `gorm:"not null"`
	FromTrolleyCount int         `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (TransferCycleMeta) TableName() string { return "transfer_cycle_meta" }

// TransferRecord tracks one canister of a batch through its current cycle.
type TransferRecord struct {
	ID                  int64          `gorm:"primaryKey"`
	BatchID             int64          `gorm:"uniqueIndex:idx_batch_canister;not null"`
	CanisterID          int64          `gorm:"uniqueIndex:idx_batch_canister;not null"`
	CycleID             int64          `gorm:"index;not null"`
	NeedCanisterID      int64          `gorm:"not null"` // canister named by the replenish need
	SourceDeviceID      int64          `gorm:"not null"`
	SourceLocationID    *int64
	DestDeviceID        int64  `gorm:"not null"`
	DestQuadrant        int    `gorm:"not null"`
	DestLocationID      *int64 `gorm:"index"`
	DestLocationNumber  *int
	TrolleyLocationID   *int64
	SourceCycleMetaID   *int64
	DestCycleMetaID     *int64
	Status              TransferStatus `gorm:"index;not null"`
	AlternateCanisterID *int64         // substitute created by skip-and-alternate
	AlternateOfID       *int64         // set on the substitute's own record
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TransferHistory is the audit log of status changes (cold table).
type TransferHistory struct {
	ID         int64  `gorm:"primaryKey"`
	BatchID    int64  `gorm:"index;not null"`
	CycleID    int64  `gorm:"index;not null"`
	DeviceID   *int64
	CanisterID *int64
	Action     string `gorm:"size:64;not null"`
	Detail     datatypes.JSON
	CreatedAt  time.Time `gorm:"not null"`
}

// SchedulerLease is the advisory lock serialising scheduler passes.
type SchedulerLease struct {
	Name      string    `gorm:"primaryKey;size:64"`
	Owner     string    `gorm:"size:64;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}
