package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"canister-transfer-backend/internal/model"
)

// SaveTrolleyPlans persists every trolley of a scheduling pass in one transaction.
// Each trolley is written inside its own savepoint so that its rows land as a set.
func (s *gormStore) SaveTrolleyPlans(ctx context.Context, plans []*TrolleyPlan) error {
	if len(plans) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range plans {
			err := tx.Transaction(func(tx *gorm.DB) error {
				return savePlan(tx, p)
			})
			if err != nil {
				return fmt.Errorf("failed to save plan for trolley %d: %w", p.Meta.TrolleyDeviceID, err)
			}
		}
		return nil
	})
}

func savePlan(tx *gorm.DB, p *TrolleyPlan) error {
	if p.Meta.Status == 0 {
		p.Meta.Status = model.GuidedPending
	}
	if err := tx.Omit("Trackers").Create(&p.Meta).Error; err != nil {
		return fmt.Errorf("failed to insert trolley run: %w", err)
	}
	cycleID := p.Meta.ID

	if len(p.Cycles) > 0 {
		for i := range p.Cycles {
			p.Cycles[i].CycleID = cycleID
			p.Cycles[i].BatchID = p.Meta.BatchID
			if p.Cycles[i].Status == 0 {
				p.Cycles[i].Status = model.CycleToTrolleyPending
			}
		}
		if err := upsertCycleMetas(tx, &p.Cycles); err != nil {
			return fmt.Errorf("failed to upsert cycle metas: %w", err)
		}
	}

	var metas []model.TransferCycleMeta
	if err := tx.Where("batch_id = ? AND cycle_id = ?", p.Meta.BatchID, cycleID).Find(&metas).Error; err != nil {
		return fmt.Errorf("failed to reload cycle metas: %w", err)
	}
	metaByDevice := make(map[int64]int64, len(metas))
	for _, m := range metas {
		metaByDevice[m.DeviceID] = m.ID
	}

	if len(p.Records) > 0 {
		for i := range p.Records {
			r := &p.Records[i]
			r.CycleID = cycleID
			r.BatchID = p.Meta.BatchID
			if r.Status == 0 {
				r.Status = model.TransferPending
			}
			if id, ok := metaByDevice[r.SourceDeviceID]; ok {
				r.SourceCycleMetaID = &id
			}
			if id, ok := metaByDevice[r.DestDeviceID]; ok {
				r.DestCycleMetaID = &id
			}
		}
		if err := upsertRecords(tx, &p.Records); err != nil {
			return fmt.Errorf("failed to upsert transfer records: %w", err)
		}
	}

	if len(p.Trackers) > 0 {
		for i := range p.Trackers {
			p.Trackers[i].GuidedMetaID = cycleID
		}
		if err := tx.Create(&p.Trackers).Error; err != nil {
			return fmt.Errorf("failed to insert trackers: %w", err)
		}
	}

	if len(p.NeedIDs) > 0 {
		err := tx.Model(&model.ReplenishNeed{}).
			Where("id IN ? AND status = ?", p.NeedIDs, model.NeedPending).
			Update("status", model.NeedScheduled).Error
		if err != nil {
			return fmt.Errorf("failed to mark needs scheduled: %w", err)
		}
	}

	trolleyID := p.Meta.TrolleyDeviceID
	history := model.TransferHistory{
		BatchID:  p.Meta.BatchID,
		CycleID:  cycleID,
		DeviceID: &trolleyID,
		Action:   ActionCycleCreated,
		Detail: Detail(map[string]any{
			"mini_batch_id": p.Meta.MiniBatchID,
			"transfers":     p.Meta.TransferCount,
			"alternates":    p.Meta.AltCanisterCount,
		}),
	}
	if err := tx.Create(&history).Error; err != nil {
		return fmt.Errorf("failed to write cycle history: %w", err)
	}
	return nil
}
