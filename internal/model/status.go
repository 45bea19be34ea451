package model

// DeviceRole defines what a device is used for in the transfer pipeline.
type DeviceRole int

const (
	RoleRobot DeviceRole = iota + 1
	RoleCSR
	RoleTrolleyPlain
	RoleTrolleyElevator
)

// IsTrolley reports whether the role describes a mobile trolley.
func (r DeviceRole) IsTrolley() bool {
	return r == RoleTrolleyPlain || r == RoleTrolleyElevator
}

func (r DeviceRole) String() string {
	switch r {
	case RoleRobot:
		return "robot"
	case RoleCSR:
		return "csr"
	case RoleTrolleyPlain:
		return "trolley_plain"
	case RoleTrolleyElevator:
		return "trolley_elevator"
	}
	return "unknown"
}

// ParseDeviceRole maps the names returned by String back to roles.
func ParseDeviceRole(s string) (DeviceRole, bool) {
	for _, r := range []DeviceRole{RoleRobot, RoleCSR, RoleTrolleyPlain, RoleTrolleyElevator} {
		if r.String() == s {
			return r, true
		}
	}
	return 0, false
}

// SizeClass is the physical size of canisters and drawers.
type SizeClass int

const (
	SizeSmall SizeClass = iota + 1
	SizeBig
)

// DrawerType partitions locations by what they can hold.
type DrawerType string

const (
	DrawerBig      DrawerType = "big"
	DrawerSmall    DrawerType = "small"
	DrawerDelicate DrawerType = "delicate"
)

// DrawerTypeFor returns the drawer type a canister (or drawer) with the given attributes maps to.
func DrawerTypeFor(size SizeClass, delicate bool) DrawerType {
	if delicate {
		return DrawerDelicate
	}
	if size == SizeBig {
		return DrawerBig
	}
	return DrawerSmall
}

// TrolleyType is the kind of trolley a set of canisters requires.
type TrolleyType int

const (
	TrolleyPlain TrolleyType = iota + 1
	TrolleyElevator
)

// Role returns the device role trolleys of this type carry.
func (t TrolleyType) Role() DeviceRole {
	if t == TrolleyElevator {
		return RoleTrolleyElevator
	}
	return RoleTrolleyPlain
}

// CycleStatus is the per-device status of a transfer cycle. Values only ever increase.
type CycleStatus int

const (
	CycleToTrolleyPending CycleStatus = iota + 1
	CycleToTrolleyDone
	CycleToRobotOrCsrPending
	CycleToRobotDone
	CycleToCsrDone
)

func (s CycleStatus) String() string {
	switch s {
	case CycleToTrolleyPending:
		return "to_trolley_pending"
	case CycleToTrolleyDone:
		return "to_trolley_done"
	case CycleToRobotOrCsrPending:
		return "to_robot_or_csr_pending"
	case CycleToRobotDone:
		return "to_robot_done"
	case CycleToCsrDone:
		return "to_csr_done"
	}
	return "unknown"
}

// Valid reports whether s is a known cycle status.
func (s CycleStatus) Valid() bool {
	return s >= CycleToTrolleyPending && s <= CycleToCsrDone
}

func ParseCycleStatus(s string) (CycleStatus, bool) {
	for c := CycleToTrolleyPending; c <= CycleToCsrDone; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// TransferStatus tracks one canister through source -> trolley -> destination.
type TransferStatus int

const (
	TransferPending TransferStatus = iota + 1
	TransferToTrolleyDone
	TransferToTrolleySkipped
	TransferToTrolleyAlternate
	TransferToTrolleyLater
	TransferToDestDone
	TransferToDestSkipped
	TransferToDestAlternate
	TransferToDestLater
)

func (s TransferStatus) String() string {
	switch s {
	case TransferPending:
		return "pending"
	case TransferToTrolleyDone:
		return "to_trolley_done"
	case TransferToTrolleySkipped:
		return "to_trolley_skipped"
	case TransferToTrolleyAlternate:
		return "to_trolley_skipped_and_alternate"
	case TransferToTrolleyLater:
		return "to_trolley_transfer_later_skip"
	case TransferToDestDone:
		return "to_dest_done"
	case TransferToDestSkipped:
		return "to_dest_skipped"
	case TransferToDestAlternate:
		return "to_dest_skipped_and_alternate"
	case TransferToDestLater:
		return "to_dest_transfer_later_skip"
	}
	return "unknown"
}

// LeftSource reports whether the source -> trolley hop is resolved.
func (s TransferStatus) LeftSource() bool {
	return s != TransferPending
}

// ReachedDest reports whether the canister reached its destination.
func (s TransferStatus) ReachedDest() bool {
	return s >= TransferToDestDone
}

// Resolved reports whether nothing further will happen to the canister in this cycle.
func (s TransferStatus) Resolved() bool {
	return s != TransferPending && s != TransferToTrolleyDone
}

// InFlight lists the statuses of records whose canister may still occupy a planned location.
var InFlight = []TransferStatus{TransferPending, TransferToTrolleyDone}

// NeedStatus tracks a replenishment need handed to the scheduler.
type NeedStatus int

const (
	NeedPending NeedStatus = iota + 1
	NeedScheduled
)

// GuidedStatus is the state of a trolley run.
type GuidedStatus int

const (
	GuidedPending GuidedStatus = iota + 1
	GuidedDone
)
