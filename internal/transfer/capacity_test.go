package transfer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canister-transfer-backend/internal/model"
	"canister-transfer-backend/internal/store"
)

func TestCapacityTable_TakeLowestLevelFirst(t *testing.T) {
	table := NewCapacityTable()
	table.Add(
		store.EmptyLocation{LocationID: 1, DeviceID: 1, Quadrant: 1, Level: 4, DrawerType: model.DrawerDelicate},
		store.EmptyLocation{LocationID: 2, DeviceID: 1, Quadrant: 1, Level: 2, DrawerType: model.DrawerDelicate},
		store.EmptyLocation{LocationID: 3, DeviceID: 1, Quadrant: 1, Level: 6, DrawerType: model.DrawerDelicate},
	)
	key := SlotKey{DeviceID: 1, Quadrant: 1, DrawerType: model.DrawerDelicate}

	loc, ok := table.Take(key, 5)
	require.True(t, ok)
	assert.Equal(t, int64(2), loc.LocationID)

	loc, ok = table.Take(key, 5)
	require.True(t, ok)
	assert.Equal(t, int64(1), loc.LocationID)

	_, ok = table.Take(key, 5)
	assert.False(t, ok, "level 6 is not below 5")
	assert.Equal(t, 1, table.Count(key))

	table.Put(store.EmptyLocation{LocationID: 2, DeviceID: 1, Quadrant: 1, Level: 2, DrawerType: model.DrawerDelicate})
	loc, _ = table.Take(key, 0)
	assert.Equal(t, int64(2), loc.LocationID)
}

func TestCapacityTable_TakeFor(t *testing.T) {
	testCases := []struct {
		name       string
		size       model.SizeClass
		delicate   bool
		expectedID int64
		expectedOK bool
	}{
		{name: "small prefers small drawers", size: model.SizeSmall, expectedID: 10, expectedOK: true},
		{name: "big only fits big drawers", size: model.SizeBig, expectedID: 20, expectedOK: true},
		{name: "delicate needs a delicate drawer", size: model.SizeSmall, delicate: true, expectedOK: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			table := NewCapacityTable()
			table.Add(
				store.EmptyLocation{LocationID: 10, DeviceID: 1, Quadrant: 2, Level: 1, DrawerType: model.DrawerSmall},
				store.EmptyLocation{LocationID: 20, DeviceID: 1, Quadrant: 2, Level: 1, DrawerType: model.DrawerBig},
			)
			loc, ok := table.TakeFor(1, 2, tc.size, tc.delicate)
			assert.Equal(t, tc.expectedOK, ok)
			if ok {
				assert.Equal(t, tc.expectedID, loc.LocationID)
			}
		})
	}

	t.Run("small falls back to big", func(t *testing.T) {
		table := NewCapacityTable()
		table.Add(store.EmptyLocation{LocationID: 20, DeviceID: 1, Quadrant: 2, Level: 1, DrawerType: model.DrawerBig})
		loc, ok := table.TakeFor(1, 2, model.SizeSmall, false)
		require.True(t, ok)
		assert.Equal(t, int64(20), loc.LocationID)
	})
}

func TestCapacityTable_CountQuadrant(t *testing.T) {
	table := NewCapacityTable()
	table.Add(emptyLocations(1, 1, model.DrawerSmall, 1, 3)...)
	table.Add(emptyLocations(1, 1, model.DrawerBig, 10, 2)...)
	table.Add(emptyLocations(1, 2, model.DrawerSmall, 20, 4)...)

	assert.Equal(t, 5, table.CountQuadrant(1, 1))
	assert.Equal(t, 4, table.CountQuadrant(1, 2))
	assert.Equal(t, 0, table.CountQuadrant(2, 1))
}

func TestCapacityPlanner_Load(t *testing.T) {
	var calls []int64
	ms := &mockStore{
		GetEmptyLocationsFunc: func(_ context.Context, deviceID int64, quadrants []int) ([]store.EmptyLocation, error) {
			calls = append(calls, deviceID)
			return emptyLocations(deviceID, quadrants[0], model.DrawerSmall, deviceID*100, 2), nil
		},
		GetEmptyCSRLocationsFunc: func(_ context.Context, systemID int64) ([]store.EmptyLocation, error) {
			assert.Equal(t, int64(3), systemID)
			return emptyLocations(9, 1, model.DrawerBig, 900, 1), nil
		},
	}
	planner := NewCapacityPlanner(ms)

	table, err := planner.Load(context.Background(), map[int64][]int{2: {1}, 1: {3}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, calls)
	assert.Equal(t, 2, table.CountQuadrant(1, 3))
	assert.Equal(t, 2, table.CountQuadrant(2, 1))

	csr, err := planner.LoadCSR(context.Background(), 3)
	require.NoError(t, err)
	loc, ok := csr.TakeAnyOf(model.DrawerBig)
	require.True(t, ok)
	assert.Equal(t, int64(900), loc.LocationID)
}
