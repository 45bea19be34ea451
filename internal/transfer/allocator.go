package transfer

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"canister-transfer-backend/internal/logging"
	"canister-transfer-backend/internal/model"
	"canister-transfer-backend/internal/store"
)

// MoverKind tells why a canister travels.
type MoverKind int

const (
	MoverSource MoverKind = iota + 1
	MoverAlternate
	MoverDisplaced
)

// PackedCandidate is one canister to place on a trolley.
type PackedCandidate struct {
	Kind             MoverKind
	CanisterID       int64
	Size             model.SizeClass
	Delicate         bool
	Level            int
	SourceDeviceID   int64
	SourceLocationID int64

	DestDeviceID       int64
	DestQuadrant       int
	DestLocationID     *int64
	DestLocationNumber *int

	CartLocationID int64
	Candidate      *Candidate
}

func (p *PackedCandidate) setDest(loc store.EmptyLocation) {
	id := loc.LocationID
	p.DestLocationID = &id
	p.DestQuadrant = loc.Quadrant
	if loc.Number > 0 {
		n := loc.Number
		p.DestLocationNumber = &n
	}
}

// Movers expands selected candidates into canisters in pack-fill order. A candidate moves its
// source, its alternate, or both when the alternate alone is still short; a displaced slow
// mover follows its alternate.
func Movers(cands []Candidate) []*PackedCandidate {
	var out []*PackedCandidate
	for i := range cands {
		c := &cands[i]
		alt := c.Alternate
		if alt == nil || alt.CanReplenishRequired {
			out = append(out, &PackedCandidate{
				Kind:             MoverSource,
				CanisterID:       c.CanisterID,
				Size:             c.Size,
				Delicate:         c.Delicate,
				Level:            c.SourceLevel,
				SourceDeviceID:   c.SourceDeviceID,
				SourceLocationID: c.SourceLocationID,
				DestDeviceID:     c.DestDeviceID,
				DestQuadrant:     c.DestQuadrant,
				Candidate:        c,
			})
		}
		if alt == nil {
			continue
		}
		m := &PackedCandidate{
			Kind:             MoverAlternate,
			CanisterID:       alt.CanisterID,
			Size:             alt.Size,
			Delicate:         alt.Delicate,
			Level:            alt.Level,
			SourceDeviceID:   alt.DeviceID,
			SourceLocationID: alt.LocationID,
			DestDeviceID:     c.DestDeviceID,
			DestQuadrant:     c.DestQuadrant,
			Candidate:        c,
		}
		if alt.Dest != nil {
			m.setDest(*alt.Dest)
		}
		out = append(out, m)

		if d := alt.Displaced; d != nil {
			dm := &PackedCandidate{
				Kind:             MoverDisplaced,
				CanisterID:       d.CanisterID,
				Size:             d.Size,
				Level:            d.Level,
				SourceDeviceID:   d.DeviceID,
				SourceLocationID: d.LocationID,
				DestDeviceID:     d.To.DeviceID,
				Candidate:        c,
			}
			dm.setDest(d.To)
			out = append(out, dm)
		}
	}
	return out
}

// TrolleyTypeFor returns Elevator when any mover is big or sits at a level that needs a lift.
func TrolleyTypeFor(movers []*PackedCandidate, needsLift []int) model.TrolleyType {
	lift := make(map[int]bool, len(needsLift))
	for _, l := range needsLift {
		lift[l] = true
	}
	for _, m := range movers {
		if m.Size == model.SizeBig || lift[m.Level] {
			return model.TrolleyElevator
		}
	}
	return model.TrolleyPlain
}

// ExtraLocationsCount returns how many placements of partitionList do not fit on
// drawersAvailable drawers of locationsPerDrawer locations. Whole drawers are claimed
// first; spare drawers go to the largest remainders.
func ExtraLocationsCount(drawersAvailable, locationsPerDrawer int, partitionList []int) int {
	total := 0
	for _, n := range partitionList {
		total += n
	}
	if locationsPerDrawer <= 0 {
		return total
	}
	if drawersAvailable < 0 {
		drawersAvailable = 0
	}

	exact := 0
	var remainders []int
	for _, n := range partitionList {
		exact += n / locationsPerDrawer
		if r := n % locationsPerDrawer; r > 0 {
			remainders = append(remainders, r)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(remainders)))

	switch {
	case exact == drawersAvailable:
		return sum(remainders)
	case exact < drawersAvailable:
		spare := drawersAvailable - exact
		if spare >= len(remainders) {
			return 0
		}
		return sum(remainders[spare:])
	default:
		return sum(remainders) + (exact-drawersAvailable)*locationsPerDrawer
	}
}

func sum(xs []int) int {
	n := 0
	for _, x := range xs {
		n += x
	}
	return n
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}

type bucketKey struct {
	DeviceID int64
	Quadrant int
}

// Cluster is a group of movers that shares drawers.
type Cluster struct {
	Key    bucketKey
	Movers []*PackedCandidate
}

type bucket struct {
	key                 bucketKey
	source, alternate   []*PackedCandidate
	dSource, dAlternate []*PackedCandidate
}

// Clusters buckets movers by destination quadrant and splits each bucket into clusters.
// Source and alternate movers of one delicacy share a cluster only when the destination
// has room for both sets.
func Clusters(movers []*PackedCandidate, capacity *CapacityTable) []Cluster {
	var buckets []*bucket
	index := make(map[bucketKey]*bucket)
	for _, m := range movers {
		key := bucketKey{DeviceID: m.DestDeviceID, Quadrant: m.DestQuadrant}
		b, ok := index[key]
		if !ok {
			b = &bucket{key: key}
			index[key] = b
			buckets = append(buckets, b)
		}
		alt := m.Kind == MoverAlternate
		switch {
		case m.Delicate && alt:
			b.dAlternate = append(b.dAlternate, m)
		case m.Delicate:
			b.dSource = append(b.dSource, m)
		case alt:
			b.alternate = append(b.alternate, m)
		default:
			b.source = append(b.source, m)
		}
	}

	var out []Cluster
	for _, b := range buckets {
		out = append(out, split(b.key, b.source, b.alternate, capacity)...)
		out = append(out, split(b.key, b.dSource, b.dAlternate, capacity)...)
	}
	return out
}

func split(key bucketKey, source, alternate []*PackedCandidate, capacity *CapacityTable) []Cluster {
	switch {
	case len(source) == 0 && len(alternate) == 0:
		return nil
	case len(alternate) == 0:
		return []Cluster{{Key: key, Movers: source}}
	case len(source) == 0:
		return []Cluster{{Key: key, Movers: alternate}}
	}

	typeAware := 0
	seen := make(map[model.DrawerType]bool)
	for _, m := range alternate {
		dt := model.DrawerTypeFor(m.Size, m.Delicate)
		if seen[dt] {
			continue
		}
		seen[dt] = true
		typeAware += capacity.Count(SlotKey{DeviceID: key.DeviceID, Quadrant: key.Quadrant, DrawerType: dt})
	}
	allTypes := capacity.CountQuadrant(key.DeviceID, key.Quadrant)

	if typeAware >= len(alternate) && allTypes >= len(alternate) {
		merged := make([]*PackedCandidate, 0, len(source)+len(alternate))
		merged = append(append(merged, source...), alternate...)
		return []Cluster{{Key: key, Movers: merged}}
	}
	return []Cluster{{Key: key, Movers: source}, {Key: key, Movers: alternate}}
}

func partitionList(clusters []Cluster) []int {
	out := make([]int, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, len(c.Movers))
	}
	return out
}

// TrolleyLoad is the set of movers assigned to one trolley.
type TrolleyLoad struct {
	Trolley store.TrolleyProfile
	Type    model.TrolleyType
	Movers  []*PackedCandidate
}

// Allocator bin-packs movers into trolley drawers.
type Allocator struct {
	store     store.Store
	needsLift []int
	logger    *zap.Logger
}

func NewAllocator(st store.Store, needsLift []int, logger *zap.Logger) *Allocator {
	return &Allocator{store: st, needsLift: needsLift, logger: logging.OrNop(logger)}
}

// Pack splits movers into the part that fits the trolley and the part carried over to the
// next one. Overflowing movers are taken from the tail so pack-fill order is kept.
func Pack(trolley store.TrolleyProfile, movers []*PackedCandidate, capacity *CapacityTable) (fit []Cluster, pending []*PackedCandidate) {
	working := movers
	for len(working) > 0 {
		clusters := Clusters(working, capacity)
		overflow := ExtraLocationsCount(len(trolley.Drawers), trolley.LocationsPerDrawer, partitionList(clusters))
		if overflow == 0 {
			return clusters, pending
		}
		if overflow > len(working) {
			overflow = len(working)
		}
		cut := len(working) - overflow
		pending = append(append([]*PackedCandidate{}, working[cut:]...), pending...)
		working = working[:cut]
	}
	return nil, pending
}

// assign gives every mover of fit a cart location and, unless pre-assigned, a destination.
// Each cluster takes whole drawers from the back of the trolley and fills them round-robin.
func assign(trolley store.TrolleyProfile, fit []Cluster, capacity *CapacityTable) []*PackedCandidate {
	drawers := trolley.Drawers
	perDrawer := trolley.LocationsPerDrawer
	var out []*PackedCandidate
	for _, c := range fit {
		need := ceilDiv(len(c.Movers), perDrawer)
		taken := drawers[len(drawers)-need:]
		drawers = drawers[:len(drawers)-need]

		for i, m := range c.Movers {
			m.CartLocationID = taken[i%need].Locations[i/need].ID
			if m.DestLocationID == nil {
				if loc, ok := capacity.TakeFor(m.DestDeviceID, m.DestQuadrant, m.Size, m.Delicate); ok {
					m.setDest(loc)
				}
			}
			out = append(out, m)
		}
	}
	return out
}

// Allocate places every mover on a trolley of the system, fetching trolleys until nothing
// is pending. It fails with ErrNoTrolleyAvailable when the pool runs dry.
func (a *Allocator) Allocate(ctx context.Context, systemID int64, movers []*PackedCandidate, capacity *CapacityTable) ([]TrolleyLoad, error) {
	var loads []TrolleyLoad
	var used []int64
	pending := movers
	for len(pending) > 0 {
		wanted := TrolleyTypeFor(pending, a.needsLift)
		trolley, err := a.nextTrolley(ctx, systemID, wanted, used)
		if err != nil {
			return nil, err
		}
		used = append(used, trolley.DeviceID)

		fit, rest := Pack(*trolley, pending, capacity)
		if len(fit) == 0 {
			continue
		}
		assigned := assign(*trolley, fit, capacity)
		kind := model.TrolleyPlain
		if trolley.Role == model.RoleTrolleyElevator {
			kind = model.TrolleyElevator
		}
		loads = append(loads, TrolleyLoad{Trolley: *trolley, Type: kind, Movers: assigned})
		a.logger.Debug("trolley packed",
			zap.Int64("trolley_id", trolley.DeviceID),
			zap.Int("movers", len(assigned)),
			zap.Int("carried_over", len(rest)),
		)
		pending = rest
	}
	return loads, nil
}

// nextTrolley returns the first free trolley of the wanted type. A plain request falls back
// to an elevator trolley.
func (a *Allocator) nextTrolley(ctx context.Context, systemID int64, wanted model.TrolleyType, exclude []int64) (*store.TrolleyProfile, error) {
	types := []model.TrolleyType{wanted}
	if wanted == model.TrolleyPlain {
		types = append(types, model.TrolleyElevator)
	}
	for _, t := range types {
		trolleys, err := a.store.GetAvailableTrolleys(ctx, systemID, t.Role(), exclude)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch trolleys: %w", err)
		}
		if len(trolleys) > 0 {
			return &trolleys[0], nil
		}
	}
	return nil, ErrNoTrolleyAvailable
}
