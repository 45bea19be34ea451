package transfer

import (
	"context"
	"time"

	"canister-transfer-backend/internal/lease"
	"canister-transfer-backend/internal/model"
	"canister-transfer-backend/internal/notification"
	"canister-transfer-backend/internal/store"
)

// mockStore is a func-field implementation of store.Store. Unset functions return zero values.
type mockStore struct {
	GetReplenishCandidatesFunc       func(ctx context.Context, systemID int64, deviceIDs []int64) (*store.ReplenishNeed, error)
	GetAlternateCandidatesFunc       func(ctx context.Context, companyID int64, canisterIDs []int64, filter store.AlternateFilter) ([]store.AlternateCandidate, error)
	FindSlowMoverFunc                func(ctx context.Context, deviceID int64, quadrant, minLevel, maxLevel int) (*store.SlowMover, error)
	GetCanisterFunc                  func(ctx context.Context, canisterID int64) (*model.Canister, error)
	GetEmptyLocationsFunc            func(ctx context.Context, deviceID int64, quadrants []int) ([]store.EmptyLocation, error)
	GetEmptyCSRLocationsFunc         func(ctx context.Context, systemID int64) ([]store.EmptyLocation, error)
	GetAvailableTrolleysFunc         func(ctx context.Context, systemID int64, role model.DeviceRole, exclude []int64) ([]store.TrolleyProfile, error)
	CanistersOnTrolleysFunc          func(ctx context.Context, systemID int64) ([]int64, error)
	GetLocationFunc                  func(ctx context.Context, locationID int64) (*model.Location, error)
	FindContainerBySerialFunc        func(ctx context.Context, serial string) (*model.Container, error)
	FindContainerByNameFunc          func(ctx context.Context, deviceName, drawerName string) (*model.Container, error)
	ReserveCanisterFunc              func(ctx context.Context, canisterID int64, batchID *int64) (bool, error)
	ReleaseReservationFunc           func(ctx context.Context, canisterIDs []int64) error
	ListReservedCanistersFunc        func(ctx context.Context) ([]int64, error)
	CreateOrUpdateCycleMetaFunc      func(ctx context.Context, meta *model.TransferCycleMeta) error
	AdvanceCycleStatusFunc           func(ctx context.Context, key store.CycleKey, status model.CycleStatus) (bool, error)
	ListCycleDevicesFunc             func(ctx context.Context, batchID, cycleID int64) ([]store.CycleDevice, error)
	NextPendingCycleFunc             func(ctx context.Context, batchID, afterCycleID int64) (*int64, error)
	FindPendingCycleFunc             func(ctx context.Context, systemID int64) (*model.TransferCycleMeta, error)
	IsFirstCycleFunc                 func(ctx context.Context, batchID int64) (bool, error)
	CompleteGuidedMetaFunc           func(ctx context.Context, cycleID int64) error
	CreateOrUpdateTransferRecordFunc func(ctx context.Context, rec *model.TransferRecord) error
	GetTransferRecordFunc            func(ctx context.Context, batchID, canisterID int64) (*model.TransferRecord, error)
	ListTransferRecordsFunc          func(ctx context.Context, batchID, cycleID int64) ([]model.TransferRecord, error)
	ApplyTransferFunc                func(ctx context.Context, changes ...store.TransferChange) error
	SaveTrolleyPlansFunc             func(ctx context.Context, plans []*store.TrolleyPlan) error
	AcquireLeaseFunc                 func(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLeaseFunc                 func(ctx context.Context, name, owner string) error
	SaveSubscriptionFunc             func(ctx context.Context, sub *model.PushSubscription, deviceIDs []int64) error
	DeleteSubscriptionFunc           func(ctx context.Context, endpoint string) error
	GetSubscriptionFunc              func(ctx context.Context, endpoint string) (*model.PushSubscription, error)
}

func (m *mockStore) GetReplenishCandidates(ctx context.Context, systemID int64, deviceIDs []int64) (*store.ReplenishNeed, error) {
	if m.GetReplenishCandidatesFunc != nil {
		return m.GetReplenishCandidatesFunc(ctx, systemID, deviceIDs)
	}
	return &store.ReplenishNeed{}, nil
}

func (m *mockStore) GetAlternateCandidates(ctx context.Context, companyID int64, canisterIDs []int64, filter store.AlternateFilter) ([]store.AlternateCandidate, error) {
	if m.GetAlternateCandidatesFunc != nil {
		return m.GetAlternateCandidatesFunc(ctx, companyID, canisterIDs, filter)
	}
	return nil, nil
}

func (m *mockStore) FindSlowMover(ctx context.Context, deviceID int64, quadrant, minLevel, maxLevel int) (*store.SlowMover, error) {
	if m.FindSlowMoverFunc != nil {
		return m.FindSlowMoverFunc(ctx, deviceID, quadrant, minLevel, maxLevel)
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) GetCanister(ctx context.Context, canisterID int64) (*model.Canister, error) {
	if m.GetCanisterFunc != nil {
		return m.GetCanisterFunc(ctx, canisterID)
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) GetEmptyLocations(ctx context.Context, deviceID int64, quadrants []int) ([]store.EmptyLocation, error) {
	if m.GetEmptyLocationsFunc != nil {
		return m.GetEmptyLocationsFunc(ctx, deviceID, quadrants)
	}
	return nil, nil
}

func (m *mockStore) GetEmptyCSRLocations(ctx context.Context, systemID int64) ([]store.EmptyLocation, error) {
	if m.GetEmptyCSRLocationsFunc != nil {
		return m.GetEmptyCSRLocationsFunc(ctx, systemID)
	}
	return nil, nil
}

func (m *mockStore) GetAvailableTrolleys(ctx context.Context, systemID int64, role model.DeviceRole, exclude []int64) ([]store.TrolleyProfile, error) {
	if m.GetAvailableTrolleysFunc != nil {
		return m.GetAvailableTrolleysFunc(ctx, systemID, role, exclude)
	}
	return nil, nil
}

func (m *mockStore) CanistersOnTrolleys(ctx context.Context, systemID int64) ([]int64, error) {
	if m.CanistersOnTrolleysFunc != nil {
		return m.CanistersOnTrolleysFunc(ctx, systemID)
	}
	return nil, nil
}

func (m *mockStore) GetLocation(ctx context.Context, locationID int64) (*model.Location, error) {
	if m.GetLocationFunc != nil {
		return m.GetLocationFunc(ctx, locationID)
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) FindContainerBySerial(ctx context.Context, serial string) (*model.Container, error) {
	if m.FindContainerBySerialFunc != nil {
		return m.FindContainerBySerialFunc(ctx, serial)
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) FindContainerByName(ctx context.Context, deviceName, drawerName string) (*model.Container, error) {
	if m.FindContainerByNameFunc != nil {
		return m.FindContainerByNameFunc(ctx, deviceName, drawerName)
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) ReserveCanister(ctx context.Context, canisterID int64, batchID *int64) (bool, error) {
	if m.ReserveCanisterFunc != nil {
		return m.ReserveCanisterFunc(ctx, canisterID, batchID)
	}
	return true, nil
}

func (m *mockStore) ReleaseReservation(ctx context.Context, canisterIDs []int64) error {
	if m.ReleaseReservationFunc != nil {
		return m.ReleaseReservationFunc(ctx, canisterIDs)
	}
	return nil
}

func (m *mockStore) ListReservedCanisters(ctx context.Context) ([]int64, error) {
	if m.ListReservedCanistersFunc != nil {
		return m.ListReservedCanistersFunc(ctx)
	}
	return nil, nil
}

func (m *mockStore) CreateOrUpdateCycleMeta(ctx context.Context, meta *model.TransferCycleMeta) error {
	if m.CreateOrUpdateCycleMetaFunc != nil {
		return m.CreateOrUpdateCycleMetaFunc(ctx, meta)
	}
	return nil
}

func (m *mockStore) AdvanceCycleStatus(ctx context.Context, key store.CycleKey, status model.CycleStatus) (bool, error) {
	if m.AdvanceCycleStatusFunc != nil {
		return m.AdvanceCycleStatusFunc(ctx, key, status)
	}
	return true, nil
}

func (m *mockStore) ListCycleDevices(ctx context.Context, batchID, cycleID int64) ([]store.CycleDevice, error) {
	if m.ListCycleDevicesFunc != nil {
		return m.ListCycleDevicesFunc(ctx, batchID, cycleID)
	}
	return nil, nil
}

func (m *mockStore) NextPendingCycle(ctx context.Context, batchID, afterCycleID int64) (*int64, error) {
	if m.NextPendingCycleFunc != nil {
		return m.NextPendingCycleFunc(ctx, batchID, afterCycleID)
	}
	return nil, nil
}

func (m *mockStore) FindPendingCycle(ctx context.Context, systemID int64) (*model.TransferCycleMeta, error) {
	if m.FindPendingCycleFunc != nil {
		return m.FindPendingCycleFunc(ctx, systemID)
	}
	return nil, nil
}

func (m *mockStore) IsFirstCycle(ctx context.Context, batchID int64) (bool, error) {
	if m.IsFirstCycleFunc != nil {
		return m.IsFirstCycleFunc(ctx, batchID)
	}
	return true, nil
}

func (m *mockStore) CompleteGuidedMeta(ctx context.Context, cycleID int64) error {
	if m.CompleteGuidedMetaFunc != nil {
		return m.CompleteGuidedMetaFunc(ctx, cycleID)
	}
	return nil
}

func (m *mockStore) CreateOrUpdateTransferRecord(ctx context.Context, rec *model.TransferRecord) error {
	if m.CreateOrUpdateTransferRecordFunc != nil {
		return m.CreateOrUpdateTransferRecordFunc(ctx, rec)
	}
	return nil
}

func (m *mockStore) GetTransferRecord(ctx context.Context, batchID, canisterID int64) (*model.TransferRecord, error) {
	if m.GetTransferRecordFunc != nil {
		return m.GetTransferRecordFunc(ctx, batchID, canisterID)
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) ListTransferRecords(ctx context.Context, batchID, cycleID int64) ([]model.TransferRecord, error) {
	if m.ListTransferRecordsFunc != nil {
		return m.ListTransferRecordsFunc(ctx, batchID, cycleID)
	}
	return nil, nil
}

func (m *mockStore) ApplyTransfer(ctx context.Context, changes ...store.TransferChange) error {
	if m.ApplyTransferFunc != nil {
		return m.ApplyTransferFunc(ctx, changes...)
	}
	return nil
}

func (m *mockStore) SaveTrolleyPlans(ctx context.Context, plans []*store.TrolleyPlan) error {
	if m.SaveTrolleyPlansFunc != nil {
		return m.SaveTrolleyPlansFunc(ctx, plans)
	}
	return nil
}

func (m *mockStore) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if m.AcquireLeaseFunc != nil {
		return m.AcquireLeaseFunc(ctx, name, owner, ttl)
	}
	return true, nil
}

func (m *mockStore) ReleaseLease(ctx context.Context, name, owner string) error {
	if m.ReleaseLeaseFunc != nil {
		return m.ReleaseLeaseFunc(ctx, name, owner)
	}
	return nil
}

func (m *mockStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription, deviceIDs []int64) error {
	if m.SaveSubscriptionFunc != nil {
		return m.SaveSubscriptionFunc(ctx, sub, deviceIDs)
	}
	return nil
}

func (m *mockStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if m.DeleteSubscriptionFunc != nil {
		return m.DeleteSubscriptionFunc(ctx, endpoint)
	}
	return nil
}

func (m *mockStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	if m.GetSubscriptionFunc != nil {
		return m.GetSubscriptionFunc(ctx, endpoint)
	}
	return nil, store.ErrNotFound
}

// reservationBook is an in-memory reservation table for mockStore.
type reservationBook struct {
	held map[int64]bool
}

func newReservationBook(preheld ...int64) *reservationBook {
	b := &reservationBook{held: make(map[int64]bool)}
	for _, id := range preheld {
		b.held[id] = true
	}
	return b
}

func (b *reservationBook) wire(m *mockStore) {
	m.ReserveCanisterFunc = func(_ context.Context, id int64, _ *int64) (bool, error) {
		if b.held[id] {
			return false, nil
		}
		b.held[id] = true
		return true, nil
	}
	m.ReleaseReservationFunc = func(_ context.Context, ids []int64) error {
		for _, id := range ids {
			delete(b.held, id)
		}
		return nil
	}
}

func (b *reservationBook) ids() []int64 {
	var out []int64
	for id := range b.held {
		out = append(out, id)
	}
	return out
}

// recordingSink collects published events.
type recordingSink struct {
	cycles  []notification.CycleCreated
	drawers []notification.DrawerScanned
	flags   []notification.PendingTransferFlag
}

func (r *recordingSink) PublishCycleCreated(_ context.Context, ev notification.CycleCreated) {
	r.cycles = append(r.cycles, ev)
}

func (r *recordingSink) PublishDrawerScanned(_ context.Context, ev notification.DrawerScanned) {
	r.drawers = append(r.drawers, ev)
}

func (r *recordingSink) PublishPendingTransferFlag(_ context.Context, ev notification.PendingTransferFlag) {
	r.flags = append(r.flags, ev)
}

// fakeLease hands out a single lease.
type fakeLease struct {
	held     bool
	released int
}

func (l *fakeLease) Acquire(context.Context) (func(), error) {
	if l.held {
		return nil, lease.ErrHeld
	}
	l.held = true
	return func() {
		l.held = false
		l.released++
	}, nil
}
