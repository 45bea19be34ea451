package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"canister-transfer-backend/config"
	"canister-transfer-backend/internal/estimator"
	"canister-transfer-backend/internal/lease"
	"canister-transfer-backend/internal/logging"
	"canister-transfer-backend/internal/model"
	"canister-transfer-backend/internal/notification"
	"canister-transfer-backend/internal/store"
)

// RunRequest starts a scheduling pass. An empty DeviceIDs list covers every robot of the system.
type RunRequest struct {
	SystemID  int64
	DeviceIDs []int64
}

// PassResult summarises a persisted scheduling pass.
type PassResult struct {
	BatchID          int64   `json:"batch_id"`
	MiniBatchID      int64   `json:"mini_batch_id"`
	CycleIDs         []int64 `json:"cycle_ids"`
	DeviceIDs        []int64 `json:"device_ids"`
	Transfers        int     `json:"transfers"`
	Alternates       int     `json:"alternates"`
	EstimatedSeconds int     `json:"estimated_seconds"`
}

// Orchestrator runs scheduling passes: it reads the next need, selects alternates,
// packs trolleys and persists the resulting cycles.
type Orchestrator struct {
	store     store.Store
	lease     lease.Lease
	planner   *CapacityPlanner
	selector  *Selector
	allocator *Allocator
	estimator estimator.Estimator
	sink      notification.Sink
	logger    *zap.Logger
}

func NewOrchestrator(st store.Store, l lease.Lease, cfg config.SchedulerConfig, est estimator.Estimator, sink notification.Sink, logger *zap.Logger) *Orchestrator {
	logger = logging.OrNop(logger)
	if sink == nil {
		sink = notification.Multi{}
	}
	return &Orchestrator{
		store:     st,
		lease:     l,
		planner:   NewCapacityPlanner(st),
		selector:  NewSelector(st, cfg, logger),
		allocator: NewAllocator(st, cfg.NeedsLiftLevels, logger),
		estimator: est,
		sink:      sink,
		logger:    logger,
	}
}

// Selector exposes the selector so the state machine can share it.
func (o *Orchestrator) Selector() *Selector {
	return o.selector
}

// Run performs one scheduling pass for a system. Reservations taken during the pass are
// released unless its trolley plans are persisted.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*PassResult, error) {
	if req.SystemID <= 0 {
		return nil, ErrInvalidModule
	}

	release, err := o.lease.Acquire(ctx)
	if errors.Is(err, lease.ErrHeld) {
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, err
	}
	defer release()

	onCart, err := o.store.CanistersOnTrolleys(ctx, req.SystemID)
	if err != nil {
		return nil, err
	}
	if len(onCart) > 0 {
		return nil, &CartNotEmptyError{CanisterIDs: onCart}
	}

	pending, err := o.store.FindPendingCycle(ctx, req.SystemID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, &PendingTransferError{SystemID: req.SystemID, BatchID: pending.BatchID, CycleID: pending.CycleID}
	}

	need, err := o.store.GetReplenishCandidates(ctx, req.SystemID, req.DeviceIDs)
	if err != nil {
		return nil, err
	}
	if len(need.Candidates) == 0 {
		return nil, ErrNoReplenishNeeded
	}
	log := o.logger.With(zap.Int64("system_id", req.SystemID), zap.Int64("batch_id", need.BatchID), zap.Int64("mini_batch_id", need.MiniBatchID))

	batchID := need.BatchID
	c := newClaims(o.store, &batchID, log)
	defer c.rollback(ctx)

	candidates, err := o.claimSources(ctx, c, need.Candidates, log)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoReplenishNeeded
	}

	isFirst, err := o.store.IsFirstCycle(ctx, need.BatchID)
	if err != nil {
		return nil, err
	}
	quadrants := make(map[int64][]int)
	for _, cand := range candidates {
		quadrants[cand.DestDeviceID] = appendUnique(quadrants[cand.DestDeviceID], cand.DestQuadrant)
	}
	capacity, err := o.planner.Load(ctx, quadrants)
	if err != nil {
		return nil, err
	}
	csr, err := o.planner.LoadCSR(ctx, req.SystemID)
	if err != nil {
		return nil, err
	}

	selected, err := o.selector.Select(ctx, c, candidates, isFirst, capacity, csr)
	if err != nil {
		return nil, err
	}

	for _, cand := range selected {
		if cand.Alternate != nil && !cand.Alternate.CanReplenishRequired {
			// the source stays put
			if err := c.drop(ctx, cand.CanisterID); err != nil {
				return nil, err
			}
		}
	}

	movers := Movers(selected)
	loads, err := o.allocator.Allocate(ctx, req.SystemID, movers, capacity)
	if err != nil {
		return nil, err
	}

	plans := buildPlans(req.SystemID, need, loads)
	if err := o.store.SaveTrolleyPlans(ctx, plans); err != nil {
		return nil, err
	}
	c.commit()

	result := &PassResult{BatchID: need.BatchID, MiniBatchID: need.MiniBatchID}
	devices := make(map[int64]bool)
	for _, p := range plans {
		result.CycleIDs = append(result.CycleIDs, p.Meta.ID)
		result.Transfers += p.Meta.TransferCount
		result.Alternates += p.Meta.AltCanisterCount
		for _, cm := range p.Cycles {
			if !devices[cm.DeviceID] {
				devices[cm.DeviceID] = true
				result.DeviceIDs = append(result.DeviceIDs, cm.DeviceID)
			}
		}
	}
	sort.Slice(result.DeviceIDs, func(i, j int) bool { return result.DeviceIDs[i] < result.DeviceIDs[j] })

	seconds, err := o.estimator.Estimate(ctx, need.PackIDs)
	if err != nil {
		log.Warn("failed to estimate processing time", zap.Error(err))
		seconds = 0
	}
	result.EstimatedSeconds = seconds

	o.sink.PublishCycleCreated(ctx, notification.CycleCreated{
		SystemID:         req.SystemID,
		BatchID:          need.BatchID,
		MiniBatchID:      need.MiniBatchID,
		CycleID:          result.CycleIDs[0],
		EstimatedSeconds: seconds,
		DeviceIDs:        result.DeviceIDs,
	})
	for _, id := range result.DeviceIDs {
		o.sink.PublishPendingTransferFlag(ctx, notification.PendingTransferFlag{DeviceID: id, BatchID: need.BatchID, Pending: true})
	}

	log.Info("scheduling pass persisted",
		zap.Int64s("cycle_ids", result.CycleIDs),
		zap.Int("transfers", result.Transfers),
		zap.Int("alternates", result.Alternates),
		zap.Int("estimated_seconds", seconds),
	)
	return result, nil
}

// claimSources reserves every source canister of the need. A canister claimed
// elsewhere in the meantime is left for a later pass.
func (o *Orchestrator) claimSources(ctx context.Context, c *claims, candidates []store.ReplenishCandidate, log *zap.Logger) ([]store.ReplenishCandidate, error) {
	out := make([]store.ReplenishCandidate, 0, len(candidates))
	for _, cand := range candidates {
		err := c.reserve(ctx, cand.CanisterID)
		if errors.Is(err, ErrAlreadyReserved) {
			log.Warn("source canister reserved elsewhere, skipping", zap.Int64("canister_id", cand.CanisterID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to reserve canister %d: %w", cand.CanisterID, err)
		}
		out = append(out, cand)
	}
	return out, nil
}

func appendUnique(xs []int, x int) []int {
	for _, v := range xs {
		if v == x {
			return xs
		}
	}
	return append(xs, x)
}

// buildPlans turns trolley loads into the rows persisted for each trolley.
func buildPlans(systemID int64, need *store.ReplenishNeed, loads []TrolleyLoad) []*store.TrolleyPlan {
	plans := make([]*store.TrolleyPlan, 0, len(loads))
	for _, load := range loads {
		plan := &store.TrolleyPlan{
			Meta: model.GuidedMeta{
				SystemID:        systemID,
				BatchID:         need.BatchID,
				MiniBatchID:     need.MiniBatchID,
				TrolleyDeviceID: load.Trolley.DeviceID,
				TrolleyType:     load.Type,
				TransferCount:   len(load.Movers),
			},
		}

		counts := make(map[int64]*model.TransferCycleMeta)
		var deviceOrder []int64
		meta := func(deviceID int64) *model.TransferCycleMeta {
			cm, ok := counts[deviceID]
			if !ok {
				cm = &model.TransferCycleMeta{SystemID: systemID, DeviceID: deviceID}
				counts[deviceID] = cm
				deviceOrder = append(deviceOrder, deviceID)
			}
			return cm
		}

		trackers := make(map[*Candidate]*model.GuidedTracker)
		var trackerOrder []*Candidate
		for _, m := range load.Movers {
			meta(m.SourceDeviceID).ToTrolleyCount++
			meta(m.DestDeviceID).FromTrolleyCount++

			cartID := m.CartLocationID
			sourceLocationID := m.SourceLocationID
			rec := model.TransferRecord{
				CanisterID:         m.CanisterID,
				NeedCanisterID:     m.Candidate.CanisterID,
				SourceDeviceID:     m.SourceDeviceID,
				SourceLocationID:   &sourceLocationID,
				DestDeviceID:       m.DestDeviceID,
				DestQuadrant:       m.DestQuadrant,
				DestLocationID:     m.DestLocationID,
				DestLocationNumber: m.DestLocationNumber,
				TrolleyLocationID:  &cartID,
			}
			if m.Kind == MoverAlternate {
				of := m.Candidate.CanisterID
				rec.AlternateOfID = &of
				plan.Meta.AltCanisterCount++
			}
			plan.Records = append(plan.Records, rec)

			t, ok := trackers[m.Candidate]
			if !ok {
				t = &model.GuidedTracker{
					SourceCanisterID: m.Candidate.CanisterID,
					DestDeviceID:     m.Candidate.DestDeviceID,
					DestQuadrant:     m.Candidate.DestQuadrant,
					RequiredQty:      m.Candidate.RequiredQty,
				}
				if alt := m.Candidate.Alternate; alt != nil {
					altID := alt.CanisterID
					t.AltCanisterID = &altID
					t.AltCanReplenishRequired = alt.CanReplenishRequired
					if alt.Displaced != nil {
						displaced := alt.Displaced.CanisterID
						t.DisplacedCanisterID = &displaced
					}
				}
				trackers[m.Candidate] = t
				trackerOrder = append(trackerOrder, m.Candidate)
			}
			switch m.Kind {
			case MoverSource:
				t.CartLocationID = &cartID
				t.DestLocationID = m.DestLocationID
			case MoverAlternate:
				t.AltCartLocationID = &cartID
				t.AltDestLocationID = m.DestLocationID
			}
			if m.Kind == MoverSource {
				plan.NeedIDs = append(plan.NeedIDs, m.Candidate.NeedIDs...)
			}
		}
		// needs of candidates served by their alternate alone
		for _, cand := range trackerOrder {
			if cand.Alternate != nil && !cand.Alternate.CanReplenishRequired {
				plan.NeedIDs = append(plan.NeedIDs, cand.NeedIDs...)
			}
			plan.Trackers = append(plan.Trackers, *trackers[cand])
		}
		for _, id := range deviceOrder {
			plan.Cycles = append(plan.Cycles, *counts[id])
		}
		plans = append(plans, plan)
	}
	return plans
}
