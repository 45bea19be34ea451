package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"canister-transfer-backend/internal/model"
)

var recordUpdateColumns = []string{
	"cycle_id", "need_canister_id", "source_device_id", "source_location_id",
	"dest_device_id", "dest_quadrant", "dest_location_id", "dest_location_number",
	"trolley_location_id", "source_cycle_meta_id", "dest_cycle_meta_id",
	"status", "alternate_canister_id", "alternate_of_id", "updated_at",
}

// upsertRecords keeps at most one row per (batch, canister).
func upsertRecords(tx *gorm.DB, records any) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "batch_id"}, {Name: "canister_id"}},
		DoUpdates: clause.AssignmentColumns(recordUpdateColumns),
	}).Create(records).Error
}

// CreateOrUpdateTransferRecord inserts the (batch, canister) record or overwrites it in place.
func (s *gormStore) CreateOrUpdateTransferRecord(ctx context.Context, rec *model.TransferRecord) error {
	if rec.Status == 0 {
		rec.Status = model.TransferPending
	}
	if err := upsertRecords(s.db.WithContext(ctx), rec); err != nil {
		return fmt.Errorf("failed to upsert transfer record for canister %d: %w", rec.CanisterID, err)
	}
	return nil
}

func (s *gormStore) GetTransferRecord(ctx context.Context, batchID, canisterID int64) (*model.TransferRecord, error) {
	var rec model.TransferRecord
	err := s.db.WithContext(ctx).Where("batch_id = ? AND canister_id = ?", batchID, canisterID).First(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (s *gormStore) ListTransferRecords(ctx context.Context, batchID, cycleID int64) ([]model.TransferRecord, error) {
	var recs []model.TransferRecord
	err := s.db.WithContext(ctx).Where("batch_id = ? AND cycle_id = ?", batchID, cycleID).Order("id").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transfer records: %w", err)
	}
	return recs, nil
}

// ApplyTransfer performs record transitions in a single transaction. Each change is a
// status compare-and-set plus its canister move, substitute record, need requeue,
// reservation release and history row. Any failure rolls back every change.
func (s *gormStore) ApplyTransfer(ctx context.Context, changes ...TransferChange) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range changes {
			if err := applyChange(tx, &changes[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyChange(tx *gorm.DB, change *TransferChange) error {
	updates := map[string]any{"status": change.To}
	for k, v := range change.Fields {
		updates[k] = v
	}
	res := tx.Model(&model.TransferRecord{}).
		Where("id = ? AND status = ?", change.RecordID, change.From).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update transfer record %d: %w", change.RecordID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleUpdate
	}

	if p := change.Placement; p != nil {
		if err := place(tx, p); err != nil {
			return err
		}
	}

	if change.Substitute != nil {
		if change.Substitute.Status == 0 {
			change.Substitute.Status = model.TransferPending
		}
		if err := upsertRecords(tx, change.Substitute); err != nil {
			return fmt.Errorf("failed to create substitute record: %w", err)
		}
	}

	if change.Requeue != nil {
		if err := requeueNeeds(tx, *change.Requeue); err != nil {
			return err
		}
	}
	if err := releaseReservations(tx, change.Release); err != nil {
		return err
	}

	if err := tx.Create(&change.History).Error; err != nil {
		return fmt.Errorf("failed to write transfer history: %w", err)
	}
	return nil
}

func place(tx *gorm.DB, p *Placement) error {
	target := p.LocationID
	if p.Return {
		id, err := returnLocation(tx, p)
		if err != nil {
			return err
		}
		target = &id
	} else if target != nil {
		var occupied int64
		err := tx.Model(&model.Canister{}).
			Where("location_id = ? AND id <> ?", *target, p.CanisterID).
			Count(&occupied).Error
		if err != nil {
			return fmt.Errorf("failed to check location %d: %w", *target, err)
		}
		if occupied > 0 {
			return ErrLocationOccupied
		}
	}

	err := tx.Model(&model.Canister{}).Where("id = ?", p.CanisterID).Update("location_id", target).Error
	if err != nil {
		return fmt.Errorf("failed to move canister %d: %w", p.CanisterID, err)
	}
	return nil
}

// returnLocation picks where a canister coming off a trolley goes: the requested
// location while it is still empty, else the first empty CSR location of the
// canister's system that fits its size.
func returnLocation(tx *gorm.DB, p *Placement) (int64, error) {
	var row emptyRow
	if p.LocationID != nil {
		res := emptyQuery(tx).Where("l.id = ?", *p.LocationID).Limit(1).Scan(&row)
		if res.Error != nil {
			return 0, fmt.Errorf("failed to check location %d: %w", *p.LocationID, res.Error)
		}
		if res.RowsAffected > 0 {
			return row.LocationID, nil
		}
	}

	var canister struct {
		SystemID int64
		Size     model.SizeClass
		Delicate bool
	}
	err := tx.Table("canisters AS c").
		Select("d.system_id, c.size, c.delicate").
		Joins("JOIN locations l ON l.id = c.location_id").
		Joins("JOIN devices d ON d.id = l.device_id").
		Where("c.id = ?", p.CanisterID).
		Scan(&canister).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load canister %d: %w", p.CanisterID, err)
	}

	res := emptyQuery(tx).
		Where("d.system_id = ? AND d.role = ?", canister.SystemID, model.RoleCSR).
		Where("ct.size = ? AND ct.delicate = ?", canister.Size, canister.Delicate).
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to fetch empty CSR location: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrNoLocation
	}
	return row.LocationID, nil
}
