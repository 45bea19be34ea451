package transfer

import (
	"context"
	"sort"

	"canister-transfer-backend/internal/model"
	"canister-transfer-backend/internal/store"
)

// SlotKey addresses the empty locations of one drawer type on a device quadrant.
type SlotKey struct {
	DeviceID   int64
	Quadrant   int
	DrawerType model.DrawerType
}

// CapacityTable is a flat table of empty locations keyed by SlotKey.
// Each slot list is kept ordered by drawer level, lowest first.
type CapacityTable struct {
	slots map[SlotKey][]store.EmptyLocation
	keys  []SlotKey
}

func NewCapacityTable() *CapacityTable {
	return &CapacityTable{slots: make(map[SlotKey][]store.EmptyLocation)}
}

func keyOf(loc store.EmptyLocation) SlotKey {
	return SlotKey{DeviceID: loc.DeviceID, Quadrant: loc.Quadrant, DrawerType: loc.DrawerType}
}

// Add inserts locations, keeping every slot list ordered by level.
func (t *CapacityTable) Add(locs ...store.EmptyLocation) {
	for _, loc := range locs {
		t.Put(loc)
	}
}

// Put returns a location to the table.
func (t *CapacityTable) Put(loc store.EmptyLocation) {
	key := keyOf(loc)
	list, ok := t.slots[key]
	if !ok {
		t.keys = append(t.keys, key)
	}
	i := sort.Search(len(list), func(i int) bool { return list[i].Level > loc.Level })
	list = append(list, store.EmptyLocation{})
	copy(list[i+1:], list[i:])
	list[i] = loc
	t.slots[key] = list
}

func (t *CapacityTable) Count(key SlotKey) int {
	return len(t.slots[key])
}

// CountQuadrant counts the empty locations of every drawer type on a quadrant.
func (t *CapacityTable) CountQuadrant(deviceID int64, quadrant int) int {
	n := 0
	for _, key := range t.keys {
		if key.DeviceID == deviceID && key.Quadrant == quadrant {
			n += len(t.slots[key])
		}
	}
	return n
}

// Take removes and returns the lowest empty location of a slot. A positive
// belowLevel only accepts drawers under that level.
func (t *CapacityTable) Take(key SlotKey, belowLevel int) (store.EmptyLocation, bool) {
	list := t.slots[key]
	if len(list) == 0 {
		return store.EmptyLocation{}, false
	}
	if belowLevel > 0 && list[0].Level >= belowLevel {
		return store.EmptyLocation{}, false
	}
	loc := list[0]
	t.slots[key] = list[1:]
	return loc, true
}

// TakeFor picks a destination for a canister. Small canisters fall back to big drawers.
func (t *CapacityTable) TakeFor(deviceID int64, quadrant int, size model.SizeClass, delicate bool) (store.EmptyLocation, bool) {
	dt := model.DrawerTypeFor(size, delicate)
	if loc, ok := t.Take(SlotKey{DeviceID: deviceID, Quadrant: quadrant, DrawerType: dt}, 0); ok {
		return loc, true
	}
	if dt == model.DrawerSmall {
		return t.Take(SlotKey{DeviceID: deviceID, Quadrant: quadrant, DrawerType: model.DrawerBig}, 0)
	}
	return store.EmptyLocation{}, false
}

// TakeAnyOf returns the first free location of a drawer type on any device in the table.
func (t *CapacityTable) TakeAnyOf(dt model.DrawerType) (store.EmptyLocation, bool) {
	for _, key := range t.keys {
		if key.DrawerType != dt {
			continue
		}
		if loc, ok := t.Take(key, 0); ok {
			return loc, true
		}
	}
	return store.EmptyLocation{}, false
}

// CapacityPlanner loads empty-location tables from the Repository.
type CapacityPlanner struct {
	store store.Store
}

func NewCapacityPlanner(st store.Store) *CapacityPlanner {
	return &CapacityPlanner{store: st}
}

// Load builds the table for the given device quadrants.
func (p *CapacityPlanner) Load(ctx context.Context, quadrants map[int64][]int) (*CapacityTable, error) {
	deviceIDs := make([]int64, 0, len(quadrants))
	for id := range quadrants {
		deviceIDs = append(deviceIDs, id)
	}
	sort.Slice(deviceIDs, func(i, j int) bool { return deviceIDs[i] < deviceIDs[j] })

	table := NewCapacityTable()
	for _, id := range deviceIDs {
		locs, err := p.store.GetEmptyLocations(ctx, id, quadrants[id])
		if err != nil {
			return nil, err
		}
		table.Add(locs...)
	}
	return table, nil
}

// LoadCSR builds the table of empty CSR locations of a system.
func (p *CapacityPlanner) LoadCSR(ctx context.Context, systemID int64) (*CapacityTable, error) {
	locs, err := p.store.GetEmptyCSRLocations(ctx, systemID)
	if err != nil {
		return nil, err
	}
	table := NewCapacityTable()
	table.Add(locs...)
	return table, nil
}
