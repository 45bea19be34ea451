package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"canister-transfer-backend/internal/model"
)

// ReserveCanister claims a canister. It reports false when another claim already holds it.
func (s *gormStore) ReserveCanister(ctx context.Context, canisterID int64, batchID *int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ReservedCanister{CanisterID: canisterID, BatchID: batchID})
	if res.Error != nil {
		return false, fmt.Errorf("failed to reserve canister %d: %w", canisterID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *gormStore) ReleaseReservation(ctx context.Context, canisterIDs []int64) error {
	return releaseReservations(s.db.WithContext(ctx), canisterIDs)
}

func releaseReservations(tx *gorm.DB, canisterIDs []int64) error {
	if len(canisterIDs) == 0 {
		return nil
	}
	err := tx.Where("canister_id IN ?", canisterIDs).Delete(&model.ReservedCanister{}).Error
	if err != nil {
		return fmt.Errorf("failed to release reservations: %w", err)
	}
	return nil
}

func (s *gormStore) ListReservedCanisters(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&model.ReservedCanister{}).Order("canister_id").Pluck("canister_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return ids, nil
}
