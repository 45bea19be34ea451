package store

import (
	"canister-transfer-backend/internal/model"
)

// ReplenishNeed is the unscheduled demand of the lowest pending mini-batch of a system.
type ReplenishNeed struct {
	BatchID     int64
	MiniBatchID int64
	Candidates  []ReplenishCandidate
	PackIDs     []int64
}

// ReplenishCandidate is one canister the mini-batch needs on a robot quadrant,
// together with where it currently sits.
type ReplenishCandidate struct {
	CanisterID  int64
	CompanyID   int64
	DrugID      int64
	Quantity    int
	RequiredQty int
	Size        model.SizeClass
	Delicate    bool

	SourceDeviceID   int64
	SourceRole       model.DeviceRole
	SourceLocationID int64
	SourceQuadrant   int
	SourceLevel      int

	DestDeviceID int64
	DestQuadrant int

	NeedIDs []int64
	PackIDs []int64
}

// AlternateFilter narrows GetAlternateCandidates.
type AlternateFilter struct {
	ExcludeCanisterIDs []int64
	ExcludeDeviceIDs   []int64
}

// AlternateCandidate is a canister holding the same drug as ForCanisterID.
type AlternateCandidate struct {
	ForCanisterID int64
	CanisterID    int64
	Quantity      int
	Size          model.SizeClass
	Delicate      bool
	DeviceID      int64
	Role          model.DeviceRole
	LocationID    int64
	Quadrant      int
	Level         int
}

// SlowMover is a rarely dispensed canister that may be displaced from a robot.
type SlowMover struct {
	CanisterID int64
	LocationID int64
	DeviceID   int64
	Quadrant   int
	Level      int
	Size       model.SizeClass
}

// EmptyLocation is a free, enabled location that no in-flight transfer targets.
type EmptyLocation struct {
	LocationID  int64
	ContainerID int64
	DeviceID    int64
	Quadrant    int
	Number      int
	Level       int
	DrawerType  model.DrawerType
}

// TrolleyDrawer is one fully free drawer of a trolley.
type TrolleyDrawer struct {
	ContainerID int64
	Locations   []model.Location
}

// TrolleyProfile describes a trolley available for a new cycle.
type TrolleyProfile struct {
	DeviceID           int64
	Role               model.DeviceRole
	LocationsPerDrawer int
	Drawers            []TrolleyDrawer
}

// CycleKey addresses one TransferCycleMeta row.
type CycleKey struct {
	BatchID  int64
	CycleID  int64
	DeviceID int64
}

// CycleDevice is a cycle meta row joined with its device role.
type CycleDevice struct {
	model.TransferCycleMeta
	Role model.DeviceRole
}

// Placement moves a canister. A nil LocationID puts it in transit.
// Return sends a canister back off a trolley: LocationID is tried first and a
// matching empty CSR location of the same system is used when it is taken.
type Placement struct {
	CanisterID int64
	LocationID *int64
	Return     bool
}

// NeedRef addresses the needs of one canister in a batch.
type NeedRef struct {
	BatchID    int64
	CanisterID int64
}

// TransferChange is one compare-and-set step of a transfer record plus its side effects.
type TransferChange struct {
	RecordID   int64
	From       model.TransferStatus
	To         model.TransferStatus
	Fields     map[string]any
	Placement  *Placement
	Substitute *model.TransferRecord
	Requeue    *NeedRef
	Release    []int64
	History    model.TransferHistory
}

// TrolleyPlan is everything persisted for one trolley of a scheduling pass.
// Meta.ID becomes the cycle id of Cycles and Records.
type TrolleyPlan struct {
	Meta     model.GuidedMeta
	Trackers []model.GuidedTracker
	Cycles   []model.TransferCycleMeta
	Records  []model.TransferRecord
	NeedIDs  []int64
}
