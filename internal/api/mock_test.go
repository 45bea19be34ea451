package api

import (
	"context"

	"canister-transfer-backend/internal/model"
	"canister-transfer-backend/internal/store"
	"canister-transfer-backend/internal/transfer"
)

type mockRepository struct {
	ListCycleDevicesFunc    func(ctx context.Context, batchID, cycleID int64) ([]store.CycleDevice, error)
	ListTransferRecordsFunc func(ctx context.Context, batchID, cycleID int64) ([]model.TransferRecord, error)
	SaveSubscriptionFunc    func(ctx context.Context, sub *model.PushSubscription, deviceIDs []int64) error
	DeleteSubscriptionFunc  func(ctx context.Context, endpoint string) error
	GetSubscriptionFunc     func(ctx context.Context, endpoint string) (*model.PushSubscription, error)
}

func (m *mockRepository) ListCycleDevices(ctx context.Context, batchID, cycleID int64) ([]store.CycleDevice, error) {
	return m.ListCycleDevicesFunc(ctx, batchID, cycleID)
}

func (m *mockRepository) ListTransferRecords(ctx context.Context, batchID, cycleID int64) ([]model.TransferRecord, error) {
	return m.ListTransferRecordsFunc(ctx, batchID, cycleID)
}

func (m *mockRepository) SaveSubscription(ctx context.Context, sub *model.PushSubscription, deviceIDs []int64) error {
	return m.SaveSubscriptionFunc(ctx, sub, deviceIDs)
}

func (m *mockRepository) DeleteSubscription(ctx context.Context, endpoint string) error {
	return m.DeleteSubscriptionFunc(ctx, endpoint)
}

func (m *mockRepository) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	return m.GetSubscriptionFunc(ctx, endpoint)
}

type mockScheduler struct {
	RunFunc func(ctx context.Context, req transfer.RunRequest) (*transfer.PassResult, error)
}

func (m *mockScheduler) Run(ctx context.Context, req transfer.RunRequest) (*transfer.PassResult, error) {
	return m.RunFunc(ctx, req)
}

type mockCycles struct {
	UpdateCycleStatusFunc func(ctx context.Context, key store.CycleKey, status model.CycleStatus) (bool, error)
	CheckCycleStatusFunc  func(ctx context.Context, batchID, cycleID int64, role model.DeviceRole, required model.CycleStatus) (bool, *int64, error)
	ConfirmPlacementFunc  func(ctx context.Context, req transfer.ConfirmRequest) (*model.TransferRecord, error)
	SkipFunc              func(ctx context.Context, batchID int64, canisterIDs []int64) error
	TransferLaterFunc     func(ctx context.Context, batchID int64, canisterIDs []int64) error
	SkipWithAlternateFunc func(ctx context.Context, req transfer.AlternateRequest) (*model.TransferRecord, error)
	ScanDrawerFunc        func(ctx context.Context, code string) (*model.Container, error)
}

func (m *mockCycles) UpdateCycleStatus(ctx context.Context, key store.CycleKey, status model.CycleStatus) (bool, error) {
	return m.UpdateCycleStatusFunc(ctx, key, status)
}

func (m *mockCycles) CheckCycleStatus(ctx context.Context, batchID, cycleID int64, role model.DeviceRole, required model.CycleStatus) (bool, *int64, error) {
	return m.CheckCycleStatusFunc(ctx, batchID, cycleID, role, required)
}

func (m *mockCycles) ConfirmPlacement(ctx context.Context, req transfer.ConfirmRequest) (*model.TransferRecord, error) {
	return m.ConfirmPlacementFunc(ctx, req)
}

func (m *mockCycles) Skip(ctx context.Context, batchID int64, canisterIDs []int64) error {
	return m.SkipFunc(ctx, batchID, canisterIDs)
}

func (m *mockCycles) TransferLater(ctx context.Context, batchID int64, canisterIDs []int64) error {
	return m.TransferLaterFunc(ctx, batchID, canisterIDs)
}

func (m *mockCycles) SkipWithAlternate(ctx context.Context, req transfer.AlternateRequest) (*model.TransferRecord, error) {
	return m.SkipWithAlternateFunc(ctx, req)
}

func (m *mockCycles) ScanDrawer(ctx context.Context, code string) (*model.Container, error) {
	return m.ScanDrawerFunc(ctx, code)
}
