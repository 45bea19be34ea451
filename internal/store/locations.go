package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"canister-transfer-backend/internal/model"
)

type emptyRow struct {
	LocationID  int64
	ContainerID int64
	DeviceID    int64
	Quadrant    int
	Number      int
	Level       int
	Size        model.SizeClass
	Delicate    bool
}

// emptyQuery selects enabled locations that hold no canister and are not the
// destination of an in-flight transfer, lowest drawer level first.
func emptyQuery(db *gorm.DB) *gorm.DB {
	return db.Table("locations AS l").
		Select("l.id AS location_id, l.container_id, l.device_id, l.quadrant, l.number, ct.level, ct.size, ct.delicate").
		Joins("JOIN containers ct ON ct.id = l.container_id").
		Joins("JOIN devices d ON d.id = l.device_id").
		Where("l.disabled = ? AND d.active = ?", false, true).
		Where("NOT EXISTS (SELECT 1 FROM canisters c WHERE c.location_id = l.id)").
		Where("NOT EXISTS (SELECT 1 FROM transfer_records tr WHERE tr.dest_location_id = l.id AND tr.status IN ?)", model.InFlight).
		Order("ct.level, l.quadrant, l.number, l.id")
}

func toEmptyLocations(rows []emptyRow) []EmptyLocation {
	out := make([]EmptyLocation, 0, len(rows))
	for _, r := range rows {
		out = append(out, EmptyLocation{
			LocationID:  r.LocationID,
			ContainerID: r.ContainerID,
			DeviceID:    r.DeviceID,
			Quadrant:    r.Quadrant,
			Number:      r.Number,
			Level:       r.Level,
			DrawerType:  model.DrawerTypeFor(r.Size, r.Delicate),
		})
	}
	return out
}

// GetEmptyLocations returns the empty locations of the given quadrants of a device.
// An empty quadrant list means every quadrant.
func (s *gormStore) GetEmptyLocations(ctx context.Context, deviceID int64, quadrants []int) ([]EmptyLocation, error) {
	q := emptyQuery(s.db.WithContext(ctx)).Where("l.device_id = ?", deviceID)
	if len(quadrants) > 0 {
		q = q.Where("l.quadrant IN ?", quadrants)
	}
	var rows []emptyRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch empty locations for device %d: %w", deviceID, err)
	}
	return toEmptyLocations(rows), nil
}

// GetEmptyCSRLocations returns the empty locations of every CSR of a system.
func (s *gormStore) GetEmptyCSRLocations(ctx context.Context, systemID int64) ([]EmptyLocation, error) {
	var rows []emptyRow
	err := emptyQuery(s.db.WithContext(ctx)).
		Where("d.system_id = ? AND d.role = ?", systemID, model.RoleCSR).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch empty CSR locations: %w", err)
	}
	return toEmptyLocations(rows), nil
}

// GetAvailableTrolleys returns active trolleys of a role that no pending trolley run uses.
// Only drawers with at least LocationsPerDrawer free locations are reported, trimmed to
// that many locations.
func (s *gormStore) GetAvailableTrolleys(ctx context.Context, systemID int64, role model.DeviceRole, exclude []int64) ([]TrolleyProfile, error) {
	db := s.db.WithContext(ctx)

	busy := db.Model(&model.GuidedMeta{}).Select("trolley_device_id").Where("status = ?", model.GuidedPending)
	q := db.Where("system_id = ? AND role = ? AND active = ? AND locations_per_drawer > 0", systemID, role, true).
		Where("id NOT IN (?)", busy).
		Order("id")
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	var devices []model.Device
	if err := q.Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch trolleys: %w", err)
	}
	if len(devices) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}
	var locs []model.Location
	err := db.Where("device_id IN ? AND disabled = ?", ids, false).
		Where("NOT EXISTS (SELECT 1 FROM canisters c WHERE c.location_id = locations.id)").
		Order("device_id, container_id, number").
		Find(&locs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trolley locations: %w", err)
	}
	byContainer := make(map[int64][]model.Location)
	var containerOrder []int64
	for _, l := range locs {
		if _, ok := byContainer[l.ContainerID]; !ok {
			containerOrder = append(containerOrder, l.ContainerID)
		}
		byContainer[l.ContainerID] = append(byContainer[l.ContainerID], l)
	}

	var out []TrolleyProfile
	for _, d := range devices {
		profile := TrolleyProfile{DeviceID: d.ID, Role: d.Role, LocationsPerDrawer: d.LocationsPerDrawer}
		for _, cid := range containerOrder {
			drawer := byContainer[cid]
			if drawer[0].DeviceID != d.ID || len(drawer) < d.LocationsPerDrawer {
				continue
			}
			profile.Drawers = append(profile.Drawers, TrolleyDrawer{
				ContainerID: cid,
				Locations:   drawer[:d.LocationsPerDrawer],
			})
		}
		if len(profile.Drawers) > 0 {
			out = append(out, profile)
		}
	}
	return out, nil
}

// CanistersOnTrolleys lists canisters currently placed on a trolley of the system.
func (s *gormStore) CanistersOnTrolleys(ctx context.Context, systemID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Table("canisters AS c").
		Joins("JOIN locations l ON l.id = c.location_id").
		Joins("JOIN devices d ON d.id = l.device_id").
		Where("d.system_id = ? AND d.role IN ?", systemID, []model.DeviceRole{model.RoleTrolleyPlain, model.RoleTrolleyElevator}).
		Order("c.id").
		Pluck("c.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch canisters on trolleys: %w", err)
	}
	return ids, nil
}

func (s *gormStore) GetLocation(ctx context.Context, locationID int64) (*model.Location, error) {
	var loc model.Location
	if err := s.db.WithContext(ctx).First(&loc, locationID).Error; err != nil {
		return nil, notFound(err)
	}
	return &loc, nil
}

// FindContainerBySerial resolves a scanned drawer serial number.
func (s *gormStore) FindContainerBySerial(ctx context.Context, serial string) (*model.Container, error) {
	var c model.Container
	if err := s.db.WithContext(ctx).Preload("Device").Where("serial_number = ?", serial).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// FindContainerByName resolves a printed drawer label to its container.
func (s *gormStore) FindContainerByName(ctx context.Context, deviceName, drawerName string) (*model.Container, error) {
	var c model.Container
	err := s.db.WithContext(ctx).Preload("Device").
		Joins("JOIN devices d ON d.id = containers.device_id").
		Where("UPPER(d.name) = ? AND UPPER(containers.name) = ?", deviceName, drawerName).
		First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}
