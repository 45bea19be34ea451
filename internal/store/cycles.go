package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"canister-transfer-backend/internal/model"
)

// History actions.
const (
	ActionCycleCreated = "cycle_created"
	ActionCycleStatus  = "cycle_status"
	ActionTransfer     = "transfer_status"
)

// Detail encodes a history detail document.
func Detail(fields map[string]any) datatypes.JSON {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func upsertCycleMetas(tx *gorm.DB, metas any) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "batch_id"}, {Name: "cycle_id"}, {Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"to_trolley_count", "from_trolley_count", "updated_at"}),
	}).Create(metas).Error
}

// CreateOrUpdateCycleMeta inserts the (batch, cycle, device) row or refreshes its counts.
// The status of an existing row is never touched here.
func (s *gormStore) CreateOrUpdateCycleMeta(ctx context.Context, meta *model.TransferCycleMeta) error {
	if meta.Status == 0 {
		meta.Status = model.CycleToTrolleyPending
	}
	if err := upsertCycleMetas(s.db.WithContext(ctx), meta); err != nil {
		return fmt.Errorf("failed to upsert cycle meta for device %d: %w", meta.DeviceID, err)
	}
	return nil
}

// AdvanceCycleStatus moves a device's cycle status forward and records the change.
// A lower status fails with ErrStaleUpdate; an equal one is a no-op reported as false.
func (s *gormStore) AdvanceCycleStatus(ctx context.Context, key CycleKey, status model.CycleStatus) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.TransferCycleMeta{}).
			Where("batch_id = ? AND cycle_id = ? AND device_id = ? AND status < ?", key.BatchID, key.CycleID, key.DeviceID, status).
			Update("status", status)
		if res.Error != nil {
			return fmt.Errorf("failed to update cycle status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var current model.TransferCycleMeta
			err := tx.Where("batch_id = ? AND cycle_id = ? AND device_id = ?", key.BatchID, key.CycleID, key.DeviceID).
				First(&current).Error
			if err != nil {
				return notFound(err)
			}
			if current.Status > status {
				return ErrStaleUpdate
			}
			return nil
		}

		applied = true
		deviceID := key.DeviceID
		history := model.TransferHistory{
			BatchID:  key.BatchID,
			CycleID:  key.CycleID,
			DeviceID: &deviceID,
			Action:   ActionCycleStatus,
			Detail:   Detail(map[string]any{"status": status.String()}),
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to write cycle history: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *gormStore) ListCycleDevices(ctx context.Context, batchID, cycleID int64) ([]CycleDevice, error) {
	var rows []CycleDevice
	err := s.db.WithContext(ctx).Table("transfer_cycle_meta AS m").
		Select("m.*, d.role").
		Joins("JOIN devices d ON d.id = m.device_id").
		Where("m.batch_id = ? AND m.cycle_id = ?", batchID, cycleID).
		Order("m.device_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle devices: %w", err)
	}
	return rows, nil
}

// NextPendingCycle returns the lowest cycle after afterCycleID that still has a device
// short of ToCsrDone, or nil when the batch is drained.
func (s *gormStore) NextPendingCycle(ctx context.Context, batchID, afterCycleID int64) (*int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&model.TransferCycleMeta{}).
		Where("batch_id = ? AND cycle_id > ? AND status < ?", batchID, afterCycleID, model.CycleToCsrDone).
		Order("cycle_id").
		Limit(1).
		Pluck("cycle_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find next pending cycle: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &ids[0], nil
}

// FindPendingCycle returns any undrained cycle meta of the system, or nil.
func (s *gormStore) FindPendingCycle(ctx context.Context, systemID int64) (*model.TransferCycleMeta, error) {
	var meta model.TransferCycleMeta
	err := s.db.WithContext(ctx).
		Where("system_id = ? AND status < ?", systemID, model.CycleToCsrDone).
		Order("batch_id, cycle_id").
		First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending cycle: %w", err)
	}
	return &meta, nil
}

// IsFirstCycle reports whether no trolley run has been planned for the batch yet.
func (s *gormStore) IsFirstCycle(ctx context.Context, batchID int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.GuidedMeta{}).Where("batch_id = ?", batchID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to count trolley runs: %w", err)
	}
	return count == 0, nil
}

func (s *gormStore) CompleteGuidedMeta(ctx context.Context, cycleID int64) error {
	err := s.db.WithContext(ctx).Model(&model.GuidedMeta{}).
		Where("id = ?", cycleID).
		Update("status", model.GuidedDone).Error
	if err != nil {
		return fmt.Errorf("failed to complete trolley run %d: %w", cycleID, err)
	}
	return nil
}
