package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"canister-transfer-backend/internal/model"
)

// canisterPosition is a placed canister joined with its drug, location, drawer and device.
type canisterPosition struct {
	ID           int64
	CompanyID    int64
	DrugID       int64
	Size         model.SizeClass
	Delicate     bool
	Quantity     int
	LocationID   int64
	DeviceID     int64
	Quadrant     int
	Level        int
	Role         model.DeviceRole
	FormattedNDC string
	TXR          string
	UsageRank    int
}

// positionQuery selects active canisters that currently sit on a location.
// Canisters in transit have no location and never match.
func positionQuery(db *gorm.DB) *gorm.DB {
	return db.Table("canisters AS c").
		Select("c.id, c.company_id, c.drug_id, c.size, c.delicate, c.quantity, c.location_id, " +
			"l.device_id, l.quadrant, ct.level, d.role, dr.formatted_ndc, dr.txr, dr.usage_rank").
		Joins("JOIN drugs dr ON dr.id = c.drug_id").
		Joins("JOIN locations l ON l.id = c.location_id").
		Joins("JOIN containers ct ON ct.id = l.container_id").
		Joins("JOIN devices d ON d.id = l.device_id").
		Where("c.active = ?", true)
}

func reservedIDs(db *gorm.DB) *gorm.DB {
	return db.Model(&model.ReservedCanister{}).Select("canister_id")
}

var stationaryRoles = []model.DeviceRole{model.RoleRobot, model.RoleCSR}

// GetReplenishCandidates returns the movable canisters of the lowest pending mini-batch.
// Needs whose canister is already on the destination device, reserved, in transit or on a
// trolley are ignored; when nothing is movable the result has no candidates.
func (s *gormStore) GetReplenishCandidates(ctx context.Context, systemID int64, deviceIDs []int64) (*ReplenishNeed, error) {
	db := s.db.WithContext(ctx)

	q := db.Joins("JOIN devices ON devices.id = replenish_needs.dest_device_id").
		Where("replenish_needs.system_id = ? AND replenish_needs.status = ?", systemID, model.NeedPending).
		Where("devices.active = ? AND devices.role = ?", true, model.RoleRobot).
		Order("replenish_needs.mini_batch_id, replenish_needs.id")
	if len(deviceIDs) > 0 {
		q = q.Where("replenish_needs.dest_device_id IN ?", deviceIDs)
	}
	var needs []model.ReplenishNeed
	if err := q.Find(&needs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch replenish needs: %w", err)
	}
	result := &ReplenishNeed{}
	if len(needs) == 0 {
		return result, nil
	}

	canisterIDs := make([]int64, 0, len(needs))
	for _, n := range needs {
		canisterIDs = append(canisterIDs, n.CanisterID)
	}
	var rows []canisterPosition
	err := positionQuery(db).
		Where("c.id IN ?", canisterIDs).
		Where("c.id NOT IN (?)", reservedIDs(db)).
		Where("d.role IN ?", stationaryRoles).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch canister positions: %w", err)
	}
	positions := make(map[int64]canisterPosition, len(rows))
	for _, r := range rows {
		positions[r.ID] = r
	}

	index := make(map[int64]int)
	seenPack := make(map[int64]bool)
	for _, n := range needs {
		pos, ok := positions[n.CanisterID]
		if !ok || pos.DeviceID == n.DestDeviceID {
			continue
		}
		if result.MiniBatchID == 0 {
			result.MiniBatchID = n.MiniBatchID
			result.BatchID = n.BatchID
		}
		if n.MiniBatchID != result.MiniBatchID {
			continue
		}

		i, exists := index[n.CanisterID]
		if !exists {
			i = len(result.Candidates)
			index[n.CanisterID] = i
			result.Candidates = append(result.Candidates, ReplenishCandidate{
				CanisterID:       pos.ID,
				CompanyID:        pos.CompanyID,
				DrugID:           pos.DrugID,
				Quantity:         pos.Quantity,
				Size:             pos.Size,
				Delicate:         pos.Delicate,
				SourceDeviceID:   pos.DeviceID,
				SourceRole:       pos.Role,
				SourceLocationID: pos.LocationID,
				SourceQuadrant:   pos.Quadrant,
				SourceLevel:      pos.Level,
				DestDeviceID:     n.DestDeviceID,
				DestQuadrant:     n.DestQuadrant,
			})
		}
		c := &result.Candidates[i]
		c.RequiredQty += n.RequiredQty
		c.NeedIDs = append(c.NeedIDs, n.ID)
		c.PackIDs = append(c.PackIDs, n.PackID)
		if !seenPack[n.PackID] {
			seenPack[n.PackID] = true
			result.PackIDs = append(result.PackIDs, n.PackID)
		}
	}
	return result, nil
}

// GetAlternateCandidates returns, per source canister, the placed canisters of the same
// company holding the same drug (formatted NDC and TXR). Big alternates are dropped for
// small sources. Results are ordered by quantity, highest first.
func (s *gormStore) GetAlternateCandidates(ctx context.Context, companyID int64, canisterIDs []int64, filter AlternateFilter) ([]AlternateCandidate, error) {
	if len(canisterIDs) == 0 {
		return nil, nil
	}
	db := s.db.WithContext(ctx)

	var sources []canisterPosition
	err := db.Table("canisters AS c").
		Select("c.id, c.size, dr.formatted_ndc, dr.txr").
		Joins("JOIN drugs dr ON dr.id = c.drug_id").
		Where("c.id IN ? AND c.company_id = ?", canisterIDs, companyID).
		Order("c.id").
		Scan(&sources).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source drugs: %w", err)
	}
	if len(sources) == 0 {
		return nil, nil
	}
	ndcs := make([]string, 0, len(sources))
	for _, src := range sources {
		ndcs = append(ndcs, src.FormattedNDC)
	}

	exclude := append(append([]int64{}, canisterIDs...), filter.ExcludeCanisterIDs...)
	q := positionQuery(db).
		Where("c.company_id = ? AND c.quantity > 0", companyID).
		Where("dr.formatted_ndc IN ?", ndcs).
		Where("d.role IN ?", stationaryRoles).
		Where("c.id NOT IN ?", exclude).
		Where("c.id NOT IN (?)", reservedIDs(db)).
		Order("c.quantity DESC, c.id")
	if len(filter.ExcludeDeviceIDs) > 0 {
		q = q.Where("l.device_id NOT IN ?", filter.ExcludeDeviceIDs)
	}
	var rows []canisterPosition
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch alternate canisters: %w", err)
	}

	var out []AlternateCandidate
	for _, src := range sources {
		for _, r := range rows {
			if r.FormattedNDC != src.FormattedNDC || r.TXR != src.TXR {
				continue
			}
			if src.Size == model.SizeSmall && r.Size == model.SizeBig {
				continue
			}
			out = append(out, AlternateCandidate{
				ForCanisterID: src.ID,
				CanisterID:    r.ID,
				Quantity:      r.Quantity,
				Size:          r.Size,
				Delicate:      r.Delicate,
				DeviceID:      r.DeviceID,
				Role:          r.Role,
				LocationID:    r.LocationID,
				Quadrant:      r.Quadrant,
				Level:         r.Level,
			})
		}
	}
	return out, nil
}

// FindSlowMover returns the least used, non-delicate, unreserved canister on a robot
// quadrant within the level range.
func (s *gormStore) FindSlowMover(ctx context.Context, deviceID int64, quadrant, minLevel, maxLevel int) (*SlowMover, error) {
	db := s.db.WithContext(ctx)
	var rows []canisterPosition
	err := positionQuery(db).
		Where("l.device_id = ? AND l.quadrant = ?", deviceID, quadrant).
		Where("ct.level BETWEEN ? AND ?", minLevel, maxLevel).
		Where("c.delicate = ?", false).
		Where("c.id NOT IN (?)", reservedIDs(db)).
		Order("dr.usage_rank, c.id").
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find slow mover: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	r := rows[0]
	return &SlowMover{
		CanisterID: r.ID,
		LocationID: r.LocationID,
		DeviceID:   r.DeviceID,
		Quadrant:   r.Quadrant,
		Level:      r.Level,
		Size:       r.Size,
	}, nil
}

// GetCanister loads a canister with its drug and current location.
func (s *gormStore) GetCanister(ctx context.Context, canisterID int64) (*model.Canister, error) {
	var c model.Canister
	if err := s.db.WithContext(ctx).Preload("Drug").Preload("Location").First(&c, canisterID).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// requeueNeeds puts the scheduled needs of a canister back into the pending pool.
func requeueNeeds(tx *gorm.DB, ref NeedRef) error {
	err := tx.Model(&model.ReplenishNeed{}).
		Where("batch_id = ? AND canister_id = ? AND status = ?", ref.BatchID, ref.CanisterID, model.NeedScheduled).
		Update("status", model.NeedPending).Error
	if err != nil {
		return fmt.Errorf("failed to requeue needs for canister %d: %w", ref.CanisterID, err)
	}
	return nil
}
