package model

import "time"

// GuidedMeta describes one trolley run of a mini-batch. Its ID doubles as the cycle id.
type GuidedMeta struct {
	ID               int64        `gorm:"primaryKey"`
	SystemID         int64        `gorm:"index;not null"`
	BatchID          int64        `gorm:"index;not null"`
	MiniBatchID      int64        `gorm:"index;not null"`
	TrolleyDeviceID  int64        `gorm:"index;not null"`
	TrolleyType      TrolleyType  `gorm:"not null"`
	TransferCount    int          `gorm:"not null"`
	AltCanisterCount int          `gorm:"not null"`
	Status           GuidedStatus `gorm:"index;not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Associations
	Trackers []GuidedTracker `gorm:"foreignKey:GuidedMetaID"`
}

func (GuidedMeta) TableName() string { return "guided_meta" }

// GuidedTracker pairs a source canister with its optional alternate on one trolley.
type GuidedTracker struct {
	ID                      int64  `gorm:"primaryKey"`
	GuidedMetaID            int64  `gorm:"index;not null"`
	SourceCanisterID        int64  `gorm:"index;not null"`
	AltCanisterID           *int64 `gorm:"index"`
	CartLocationID          *int64
	AltCartLocationID       *int64
	DestDeviceID            int64 `gorm:"not null"`
	DestQuadrant            int   `gorm:"not null"`
	DestLocationID          *int64
	AltDestLocationID       *int64
	RequiredQty             int  `gorm:"not null"`
	AltCanReplenishRequired bool `gorm:"not null;default:false"`
	DisplacedCanisterID     *int64
	CreatedAt               time.Time
}
