package model

import (
	"time"

	"gorm.io/gorm"

	"canister-transfer-backend/internal/parse"
)

// Drug is the master record a canister is filled with.
type Drug struct {
	ID           int64  `gorm:"primaryKey"`
	Name         string `gorm:"size:256"`
	NDC          string `gorm:"size:32;not null"`
	FormattedNDC string `gorm:"size:16;index"`
	TXR          string `gorm:"size:32;index"`
	UsageRank    int    // lower means dispensed less often
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BeforeSave keeps FormattedNDC in sync with NDC.
func (d *Drug) BeforeSave(tx *gorm.DB) error {
	formatted, err := parse.FormatNDC(d.NDC)
	if err != nil {
		return err
	}
	d.FormattedNDC = formatted
	return nil
}

// Canister is a physical unit holding one drug.
type Canister struct {
	ID         int64     `gorm:"primaryKey"`
	CompanyID  int64     `gorm:"index;not null"`
	DrugID     int64     `gorm:"index;not null"`
	Size       SizeClass `gorm:"not null"`
	Delicate   bool      `gorm:"not null;default:false"`
	Quantity   int       `gorm:"not null"`
	LocationID *int64    `gorm:"uniqueIndex"` // nil while in transit
	Active     bool      `gorm:"not null;default:true"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Associations
	Drug     Drug
	Location *Location
}

// ReservedCanister marks a canister as claimed by one in-flight allocation.
type ReservedCanister struct {
	CanisterID int64  `gorm:"primaryKey;autoIncrement:false"`
	BatchID    *int64 `gorm:"index"`
	CreatedAt  time.Time
}

// ReplenishNeed is one pack's demand for a canister on a robot quadrant.
type ReplenishNeed struct {
	ID           int64      `gorm:"primaryKey"`
	SystemID     int64      `gorm:"index;not null"`
	BatchID      int64      `gorm:"index;not null"`
	MiniBatchID  int64      `gorm:"index;not null"`
	PackID       int64      `gorm:"not null"`
	CanisterID   int64      `gorm:"index;not null"`
	DestDeviceID int64      `gorm:"not null"`
	DestQuadrant int        `gorm:"not null"`
	RequiredQty  int        `gorm:"not null"`
	Status       NeedStatus `gorm:"index;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
