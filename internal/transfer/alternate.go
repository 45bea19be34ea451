package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"canister-transfer-backend/config"
	"canister-transfer-backend/internal/logging"
	"canister-transfer-backend/internal/model"
	"canister-transfer-backend/internal/store"
)

// Displacement moves a slow mover off a robot to make room for a delicate alternate.
type Displacement struct {
	store.SlowMover
	To store.EmptyLocation
}

// AlternateChoice is the substitute picked for a short source canister.
type AlternateChoice struct {
	store.AlternateCandidate
	// CanReplenishRequired is set when the alternate alone is still short of the
	// required quantity, so the source travels too.
	CanReplenishRequired bool
	Dest                 *store.EmptyLocation
	Displaced            *Displacement
}

// Candidate is a replenish candidate after alternate selection.
type Candidate struct {
	store.ReplenishCandidate
	Alternate *AlternateChoice
}

// Selector picks and reserves alternate canisters.
type Selector struct {
	store  store.Store
	cfg    config.SchedulerConfig
	upper  decimal.Decimal
	lower  decimal.Decimal
	logger *zap.Logger
}

func NewSelector(st store.Store, cfg config.SchedulerConfig, logger *zap.Logger) *Selector {
	return &Selector{
		store:  st,
		cfg:    cfg,
		upper:  decimal.NewFromFloat(cfg.UpperThreshold),
		lower:  decimal.NewFromFloat(cfg.LowerThreshold),
		logger: logging.OrNop(logger),
	}
}

// crosses reports whether b reaches band while a stays below it.
func crosses(band, a, b decimal.Decimal) bool {
	return a.LessThan(band) && b.GreaterThanOrEqual(band)
}

// PreferAlternate applies the quantity threshold test. On the first cycle the source is
// kept unless the alternate is clearly better stocked; on later cycles the alternate is
// taken unless the source clearly is. The later-cycle check ignores the required band.
func (s *Selector) PreferAlternate(source, alternate, required int, isFirstCycle bool) bool {
	req := decimal.NewFromInt(int64(required))
	src := decimal.NewFromInt(int64(source))
	alt := decimal.NewFromInt(int64(alternate))
	upper := req.Mul(s.upper)
	lower := req.Mul(s.lower)

	if isFirstCycle {
		return crosses(upper, src, alt) ||
			crosses(lower, src, alt) ||
			(alt.GreaterThan(req) && src.LessThanOrEqual(req))
	}
	return !(crosses(upper, alt, src) || crosses(lower, alt, src))
}

// Select runs alternate selection over a mini-batch. Chosen alternates and displaced
// slow movers are reserved through c. dest and csr are consumed for pre-assigned
// destinations of delicate alternates.
func (s *Selector) Select(ctx context.Context, c *claims, candidates []store.ReplenishCandidate, isFirstCycle bool, dest, csr *CapacityTable) ([]Candidate, error) {
	out := make([]Candidate, len(candidates))
	for i := range candidates {
		out[i].ReplenishCandidate = candidates[i]
	}

	short := make(map[int64][]int) // company -> indexes of short candidates
	var companies []int64
	exclude := make([]int64, 0, len(candidates))
	for i, cand := range candidates {
		exclude = append(exclude, cand.CanisterID)
		if cand.Quantity <= 0 || cand.Quantity >= cand.RequiredQty {
			continue
		}
		if _, ok := short[cand.CompanyID]; !ok {
			companies = append(companies, cand.CompanyID)
		}
		short[cand.CompanyID] = append(short[cand.CompanyID], i)
	}

	taken := make(map[int64]bool)
	for _, companyID := range companies {
		idx := short[companyID]
		ids := make([]int64, 0, len(idx))
		for _, i := range idx {
			ids = append(ids, candidates[i].CanisterID)
		}
		alts, err := s.store.GetAlternateCandidates(ctx, companyID, ids, store.AlternateFilter{ExcludeCanisterIDs: exclude})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch alternates: %w", err)
		}
		byCanister := make(map[int64][]store.AlternateCandidate)
		for _, a := range alts {
			byCanister[a.ForCanisterID] = append(byCanister[a.ForCanisterID], a)
		}

		for _, i := range idx {
			choice, err := s.choose(ctx, c, candidates[i], byCanister[candidates[i].CanisterID], taken, isFirstCycle, dest, csr)
			if err != nil {
				return nil, err
			}
			if choice != nil {
				taken[choice.CanisterID] = true
				out[i].Alternate = choice
				s.logger.Debug("alternate selected",
					zap.Int64("canister_id", candidates[i].CanisterID),
					zap.Int64("alternate_id", choice.CanisterID),
					zap.Bool("replenish_required", choice.CanReplenishRequired),
				)
			}
		}
	}
	return out, nil
}

func (s *Selector) choose(ctx context.Context, c *claims, cand store.ReplenishCandidate, alts []store.AlternateCandidate,
	taken map[int64]bool, isFirstCycle bool, dest, csr *CapacityTable) (*AlternateChoice, error) {
	var regular, delicate []store.AlternateCandidate
	for _, a := range alts {
		if taken[a.CanisterID] || a.DeviceID == cand.DestDeviceID {
			continue
		}
		if !s.PreferAlternate(cand.Quantity, a.Quantity, cand.RequiredQty, isFirstCycle) {
			continue
		}
		if a.Delicate && !cand.Delicate {
			delicate = append(delicate, a)
			continue
		}
		regular = append(regular, a)
	}

	for _, a := range regular {
		err := c.reserve(ctx, a.CanisterID)
		if errors.Is(err, ErrAlreadyReserved) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.newChoice(a, cand), nil
	}

	for _, a := range delicate {
		choice, err := s.placeDelicate(ctx, c, cand, a, dest, csr)
		if err != nil {
			return nil, err
		}
		if choice != nil {
			return choice, nil
		}
	}
	return nil, nil
}

func (s *Selector) newChoice(a store.AlternateCandidate, cand store.ReplenishCandidate) *AlternateChoice {
	return &AlternateChoice{
		AlternateCandidate:   a,
		CanReplenishRequired: a.Quantity < cand.RequiredQty,
	}
}

// placeDelicate finds room for a delicate alternate on the destination quadrant, displacing
// a slow mover to the CSR when no low delicate location is free. It returns nil when the
// alternate cannot be placed or is already reserved.
func (s *Selector) placeDelicate(ctx context.Context, c *claims, cand store.ReplenishCandidate, a store.AlternateCandidate, dest, csr *CapacityTable) (*AlternateChoice, error) {
	key := SlotKey{DeviceID: cand.DestDeviceID, Quadrant: cand.DestQuadrant, DrawerType: model.DrawerDelicate}
	if loc, ok := dest.Take(key, s.cfg.DelicateMaxLevel); ok {
		err := c.reserve(ctx, a.CanisterID)
		if errors.Is(err, ErrAlreadyReserved) {
			dest.Put(loc)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		choice := s.newChoice(a, cand)
		choice.Dest = &loc
		return choice, nil
	}

	slow, err := s.store.FindSlowMover(ctx, cand.DestDeviceID, cand.DestQuadrant, s.cfg.SlowMoverMinLevel, s.cfg.SlowMoverMaxLevel)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	to, ok := csr.TakeAnyOf(model.DrawerTypeFor(slow.Size, false))
	if !ok {
		return nil, nil
	}

	if err := c.reserve(ctx, a.CanisterID); err != nil {
		csr.Put(to)
		if errors.Is(err, ErrAlreadyReserved) {
			return nil, nil
		}
		return nil, err
	}
	if err := c.reserve(ctx, slow.CanisterID); err != nil {
		csr.Put(to)
		if dropErr := c.drop(ctx, a.CanisterID); dropErr != nil {
			return nil, dropErr
		}
		if errors.Is(err, ErrAlreadyReserved) {
			return nil, nil
		}
		return nil, err
	}

	choice := s.newChoice(a, cand)
	choice.Dest = &store.EmptyLocation{
		LocationID: slow.LocationID,
		DeviceID:   slow.DeviceID,
		Quadrant:   slow.Quadrant,
		Level:      slow.Level,
		DrawerType: model.DrawerTypeFor(slow.Size, false),
	}
	choice.Displaced = &Displacement{SlowMover: *slow, To: to}
	s.logger.Info("displacing slow mover for delicate alternate",
		zap.Int64("slow_mover_id", slow.CanisterID),
		zap.Int64("alternate_id", a.CanisterID),
		zap.Int64("csr_location_id", to.LocationID),
	)
	return choice, nil
}

// Substitute picks a replacement for a canister skipped by the operator. Alternates are
// tried highest quantity first; the chosen one is reserved through c.
func (s *Selector) Substitute(ctx context.Context, c *claims, canister *model.Canister, destDeviceID int64) (*store.AlternateCandidate, error) {
	alts, err := s.store.GetAlternateCandidates(ctx, canister.CompanyID, []int64{canister.ID}, store.AlternateFilter{
		ExcludeDeviceIDs: []int64{destDeviceID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch alternates: %w", err)
	}
	for _, a := range alts {
		if a.Delicate && !canister.Delicate {
			continue
		}
		err := c.reserve(ctx, a.CanisterID)
		if errors.Is(err, ErrAlreadyReserved) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &a, nil
	}
	return nil, ErrNoAlternate
}
