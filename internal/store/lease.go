package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"canister-transfer-backend/internal/model"
)

// AcquireLease takes the named lease for owner unless another owner holds an unexpired one.
func (s *gormStore) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	lease := model.SchedulerLease{Name: name, Owner: owner, ExpiresAt: now.Add(ttl), UpdatedAt: now}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner", "expires_at", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "scheduler_leases.expires_at < ?", Vars: []any{now}},
		}},
	}).Create(&lease)
	if res.Error != nil {
		return false, fmt.Errorf("failed to acquire lease %q: %w", name, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReleaseLease drops the lease if owner still holds it.
func (s *gormStore) ReleaseLease(ctx context.Context, name, owner string) error {
	err := s.db.WithContext(ctx).Where("name = ? AND owner = ?", name, owner).Delete(&model.SchedulerLease{}).Error
	if err != nil {
		return fmt.Errorf("failed to release lease %q: %w", name, err)
	}
	return nil
}
