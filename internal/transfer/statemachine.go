package transfer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"canister-transfer-backend/internal/logging"
	"canister-transfer-backend/internal/model"
	"canister-transfer-backend/internal/notification"
	"canister-transfer-backend/internal/store"
)

// ConfirmRequest confirms that a canister was placed. LocationID overrides the planned
// location when the operator put the canister somewhere else.
type ConfirmRequest struct {
	BatchID    int64
	CanisterID int64
	LocationID *int64
}

// AlternateRequest skips a canister in favour of a substitute. A nil SubstituteID lets
// the Selector pick one.
type AlternateRequest struct {
	BatchID      int64
	CanisterID   int64
	SubstituteID *int64
}

// Machine is the authoritative status model for cycles and transfer records.
type Machine struct {
	store    store.Store
	selector *Selector
	sink     notification.Sink
	logger   *zap.Logger
	onDrain  func(ctx context.Context, systemID int64)
}

func NewMachine(st store.Store, selector *Selector, sink notification.Sink, logger *zap.Logger) *Machine {
	if sink == nil {
		sink = notification.Multi{}
	}
	return &Machine{store: st, selector: selector, sink: sink, logger: logging.OrNop(logger)}
}

// OnDrain registers the hook called when a completed cycle leaves its batch without pending cycles.
func (m *Machine) OnDrain(fn func(ctx context.Context, systemID int64)) {
	m.onDrain = fn
}

// UpdateCycleStatus advances the status of one device in a cycle. It reports false when
// the status was already reached.
func (m *Machine) UpdateCycleStatus(ctx context.Context, key store.CycleKey, status model.CycleStatus) (bool, error) {
	if !status.Valid() {
		return false, ErrInvalidModule
	}
	applied, err := m.store.AdvanceCycleStatus(ctx, key, status)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	devices, err := m.store.ListCycleDevices(ctx, key.BatchID, key.CycleID)
	if err != nil {
		return true, err
	}
	if allDone(devices) {
		records, err := m.store.ListTransferRecords(ctx, key.BatchID, key.CycleID)
		if err != nil {
			return true, err
		}
		if err := m.complete(ctx, key.BatchID, key.CycleID, devices, records); err != nil {
			return true, err
		}
	}
	return true, nil
}

// CheckCycleStatus reports whether every device of role in the cycle reached required.
// When it did, next holds the following pending cycle of the batch, or nil.
func (m *Machine) CheckCycleStatus(ctx context.Context, batchID, cycleID int64, role model.DeviceRole, required model.CycleStatus) (bool, *int64, error) {
	if (role != model.RoleRobot && role != model.RoleCSR) || !required.Valid() {
		return false, nil, ErrInvalidModule
	}
	devices, err := m.store.ListCycleDevices(ctx, batchID, cycleID)
	if err != nil {
		return false, nil, err
	}
	if len(devices) == 0 {
		return false, nil, ErrNotFound
	}
	for _, d := range devices {
		if d.Role == role && d.Status < required {
			return false, nil, nil
		}
	}
	next, err := m.store.NextPendingCycle(ctx, batchID, cycleID)
	if err != nil {
		return false, nil, err
	}
	return true, next, nil
}

func transferHistory(rec *model.TransferRecord, tr Transition, detail map[string]any) model.TransferHistory {
	canisterID := rec.CanisterID
	doc := map[string]any{
		"event": tr.Event.String(),
		"from":  tr.From.String(),
		"to":    tr.To.String(),
	}
	for k, v := range detail {
		doc[k] = v
	}
	return model.TransferHistory{
		BatchID:    rec.BatchID,
		CycleID:    rec.CycleID,
		CanisterID: &canisterID,
		Action:     store.ActionTransfer,
		Detail:     store.Detail(doc),
	}
}

func (m *Machine) load(ctx context.Context, batchID, canisterID int64, ev Event) (*model.TransferRecord, Transition, error) {
	rec, err := m.store.GetTransferRecord(ctx, batchID, canisterID)
	if err != nil {
		return nil, Transition{}, fmt.Errorf("canister %d: %w", canisterID, err)
	}
	tr, ok := TransitionFor(rec.Status, ev)
	if !ok {
		return nil, Transition{}, fmt.Errorf("canister %d cannot %s from %s: %w", canisterID, ev, rec.Status, ErrInvalidTransition)
	}
	return rec, tr, nil
}

// ConfirmPlacement records that a canister reached its trolley slot or destination.
// A location other than the planned one is accepted when it is on the planned device.
func (m *Machine) ConfirmPlacement(ctx context.Context, req ConfirmRequest) (*model.TransferRecord, error) {
	rec, tr, err := m.load(ctx, req.BatchID, req.CanisterID, EventConfirm)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any)
	onTrolley := rec.Status == model.TransferPending
	target := rec.DestLocationID
	if onTrolley {
		target = rec.TrolleyLocationID
	}

	if req.LocationID != nil && (target == nil || *req.LocationID != *target) {
		loc, err := m.store.GetLocation(ctx, *req.LocationID)
		if err != nil {
			return nil, fmt.Errorf("location %d: %w", *req.LocationID, err)
		}
		if onTrolley {
			if target != nil {
				planned, err := m.store.GetLocation(ctx, *target)
				if err != nil {
					return nil, fmt.Errorf("location %d: %w", *target, err)
				}
				if planned.DeviceID != loc.DeviceID {
					return nil, ErrWrongDevice
				}
			}
			fields["trolley_location_id"] = loc.ID
		} else {
			if loc.DeviceID != rec.DestDeviceID {
				return nil, ErrWrongDevice
			}
			fields["dest_location_id"] = loc.ID
			fields["dest_quadrant"] = loc.Quadrant
			fields["dest_location_number"] = loc.Number
		}
		m.logger.Info("canister placed off plan",
			zap.Int64("canister_id", rec.CanisterID),
			zap.Int64("location_id", loc.ID),
			zap.Bool("trolley", onTrolley),
		)
		id := loc.ID
		target = &id
	}
	if target == nil {
		return nil, ErrNoLocation
	}

	change := store.TransferChange{
		RecordID:  rec.ID,
		From:      tr.From,
		To:        tr.To,
		Fields:    fields,
		Placement: &store.Placement{CanisterID: rec.CanisterID, LocationID: target},
		History:   transferHistory(rec, tr, map[string]any{"location_id": *target}),
	}
	if err := m.store.ApplyTransfer(ctx, change); err != nil {
		return nil, err
	}

	rec.Status = tr.To
	if onTrolley {
		rec.TrolleyLocationID = target
	} else if _, ok := fields["dest_location_id"]; ok {
		rec.DestLocationID = target
		quadrant, number := fields["dest_quadrant"].(int), fields["dest_location_number"].(int)
		rec.DestQuadrant = quadrant
		rec.DestLocationNumber = &number
	}

	if err := m.rederive(ctx, rec.BatchID, rec.CycleID); err != nil {
		return rec, err
	}
	return rec, nil
}

func validateList(canisterIDs []int64) error {
	if len(canisterIDs) == 0 {
		return ErrInvalidCanisterList
	}
	seen := make(map[int64]bool, len(canisterIDs))
	for _, id := range canisterIDs {
		if id <= 0 || seen[id] {
			return ErrInvalidCanisterList
		}
		seen[id] = true
	}
	return nil
}

// Skip ends the transfer of the given canisters for this cycle and releases them.
func (m *Machine) Skip(ctx context.Context, batchID int64, canisterIDs []int64) error {
	return m.terminate(ctx, batchID, canisterIDs, EventSkip)
}

// TransferLater ends the transfer of the given canisters for this cycle and puts their
// needs back into the pool for the next scheduling pass.
func (m *Machine) TransferLater(ctx context.Context, batchID int64, canisterIDs []int64) error {
	return m.terminate(ctx, batchID, canisterIDs, EventTransferLater)
}

func (m *Machine) terminate(ctx context.Context, batchID int64, canisterIDs []int64, ev Event) error {
	if err := validateList(canisterIDs); err != nil {
		return err
	}

	type step struct {
		rec *model.TransferRecord
		tr  Transition
	}
	steps := make([]step, 0, len(canisterIDs))
	for _, id := range canisterIDs {
		rec, tr, err := m.load(ctx, batchID, id, ev)
		if err != nil {
			return err
		}
		steps = append(steps, step{rec: rec, tr: tr})
	}

	var cycles []int64
	seen := make(map[int64]bool)
	changes := make([]store.TransferChange, 0, len(steps))
	for _, s := range steps {
		change := store.TransferChange{
			RecordID:  s.rec.ID,
			From:      s.tr.From,
			To:        s.tr.To,
			Placement: returnPlacement(s.rec),
			Release:   []int64{s.rec.CanisterID},
			History:   transferHistory(s.rec, s.tr, nil),
		}
		if ev == EventTransferLater {
			change.Requeue = &store.NeedRef{BatchID: batchID, CanisterID: s.rec.NeedCanisterID}
		}
		changes = append(changes, change)
		if !seen[s.rec.CycleID] {
			seen[s.rec.CycleID] = true
			cycles = append(cycles, s.rec.CycleID)
		}
	}
	if err := m.store.ApplyTransfer(ctx, changes...); err != nil {
		return err
	}

	for _, cycleID := range cycles {
		if err := m.rederive(ctx, batchID, cycleID); err != nil {
			return err
		}
	}
	return nil
}

// returnPlacement sends a canister already loaded on the trolley back to its source
// location. Canisters that never left their source stay where they are.
func returnPlacement(rec *model.TransferRecord) *store.Placement {
	if rec.Status != model.TransferToTrolleyDone {
		return nil
	}
	return &store.Placement{CanisterID: rec.CanisterID, LocationID: rec.SourceLocationID, Return: true}
}

type substitute struct {
	canisterID int64
	deviceID   int64
	locationID int64
}

// SkipWithAlternate ends the transfer of a canister and creates a record for a substitute
// holding the same drug. The substitute is reserved.
func (m *Machine) SkipWithAlternate(ctx context.Context, req AlternateRequest) (*model.TransferRecord, error) {
	rec, tr, err := m.load(ctx, req.BatchID, req.CanisterID, EventSkipWithAlternate)
	if err != nil {
		return nil, err
	}

	batchID := rec.BatchID
	c := newClaims(m.store, &batchID, m.logger)
	defer c.rollback(ctx)

	sub, err := m.pickSubstitute(ctx, c, rec, req.SubstituteID)
	if err != nil {
		return nil, err
	}

	sourceMetaID, err := m.ensureCycleDevice(ctx, rec, sub.deviceID)
	if err != nil {
		return nil, err
	}

	sourceLocationID := sub.locationID
	alternateOf := rec.CanisterID
	record := &model.TransferRecord{
		BatchID:            rec.BatchID,
		CanisterID:         sub.canisterID,
		CycleID:            rec.CycleID,
		NeedCanisterID:     rec.NeedCanisterID,
		SourceDeviceID:     sub.deviceID,
		SourceLocationID:   &sourceLocationID,
		DestDeviceID:       rec.DestDeviceID,
		DestQuadrant:       rec.DestQuadrant,
		DestLocationID:     rec.DestLocationID,
		DestLocationNumber: rec.DestLocationNumber,
		SourceCycleMetaID:  sourceMetaID,
		DestCycleMetaID:    rec.DestCycleMetaID,
		TrolleyLocationID:  rec.TrolleyLocationID,
		Status:             model.TransferPending,
		AlternateOfID:      &alternateOf,
	}

	change := store.TransferChange{
		RecordID:   rec.ID,
		From:       tr.From,
		To:         tr.To,
		Fields:     map[string]any{"alternate_canister_id": sub.canisterID},
		Placement:  returnPlacement(rec),
		Substitute: record,
		Release:    []int64{rec.CanisterID},
		History:    transferHistory(rec, tr, map[string]any{"substitute_id": sub.canisterID}),
	}
	if err := m.store.ApplyTransfer(ctx, change); err != nil {
		return nil, err
	}
	c.commit()

	m.logger.Info("canister replaced",
		zap.Int64("canister_id", rec.CanisterID),
		zap.Int64("substitute_id", sub.canisterID),
		zap.Int64("cycle_id", rec.CycleID),
	)

	if err := m.rederive(ctx, rec.BatchID, rec.CycleID); err != nil {
		return record, err
	}
	return record, nil
}

func (m *Machine) pickSubstitute(ctx context.Context, c *claims, rec *model.TransferRecord, substituteID *int64) (*substitute, error) {
	if substituteID == nil {
		canister, err := m.store.GetCanister(ctx, rec.CanisterID)
		if err != nil {
			return nil, fmt.Errorf("canister %d: %w", rec.CanisterID, err)
		}
		alt, err := m.selector.Substitute(ctx, c, canister, rec.DestDeviceID)
		if err != nil {
			return nil, err
		}
		return &substitute{canisterID: alt.CanisterID, deviceID: alt.DeviceID, locationID: alt.LocationID}, nil
	}

	if *substituteID == rec.CanisterID {
		return nil, ErrInvalidCanisterList
	}
	canister, err := m.store.GetCanister(ctx, *substituteID)
	if err != nil {
		return nil, fmt.Errorf("canister %d: %w", *substituteID, err)
	}
	if canister.LocationID == nil || canister.Location == nil || canister.Location.DeviceID == rec.DestDeviceID {
		return nil, ErrInvalidCanisterList
	}
	if err := c.reserve(ctx, canister.ID); err != nil {
		return nil, err
	}
	return &substitute{canisterID: canister.ID, deviceID: canister.Location.DeviceID, locationID: *canister.LocationID}, nil
}

// ensureCycleDevice returns the cycle meta of deviceID, creating it when the substitute
// comes from a device the cycle does not include yet.
func (m *Machine) ensureCycleDevice(ctx context.Context, rec *model.TransferRecord, deviceID int64) (*int64, error) {
	devices, err := m.store.ListCycleDevices(ctx, rec.BatchID, rec.CycleID)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrNotFound
	}
	for _, d := range devices {
		if d.DeviceID == deviceID {
			id := d.ID
			return &id, nil
		}
	}
	meta := &model.TransferCycleMeta{
		SystemID:       devices[0].SystemID,
		BatchID:        rec.BatchID,
		CycleID:        rec.CycleID,
		DeviceID:       deviceID,
		ToTrolleyCount: 1,
	}
	if err := m.store.CreateOrUpdateCycleMeta(ctx, meta); err != nil {
		return nil, err
	}
	return &meta.ID, nil
}

// deriveStatus computes the cycle status a device has reached from the records it
// sends or receives.
func deriveStatus(deviceID int64, role model.DeviceRole, records []model.TransferRecord, csrPending bool) model.CycleStatus {
	outLeft, resolved, inStarted := true, true, false
	for _, r := range records {
		out := r.SourceDeviceID == deviceID
		in := r.DestDeviceID == deviceID
		if !out && !in {
			continue
		}
		if out && !r.Status.LeftSource() {
			outLeft = false
		}
		if !r.Status.Resolved() {
			resolved = false
		}
		if in && r.Status.ReachedDest() {
			inStarted = true
		}
	}

	switch {
	case !outLeft:
		return model.CycleToTrolleyPending
	case resolved:
		if role == model.RoleRobot && csrPending {
			return model.CycleToRobotDone
		}
		return model.CycleToCsrDone
	case inStarted:
		return model.CycleToRobotOrCsrPending
	default:
		return model.CycleToTrolleyDone
	}
}

func allDone(devices []store.CycleDevice) bool {
	if len(devices) == 0 {
		return false
	}
	for _, d := range devices {
		if d.Status < model.CycleToCsrDone {
			return false
		}
	}
	return true
}

// rederive moves every device of the cycle forward to the status its records imply and
// completes the cycle when the last device gets there.
func (m *Machine) rederive(ctx context.Context, batchID, cycleID int64) error {
	devices, err := m.store.ListCycleDevices(ctx, batchID, cycleID)
	if err != nil {
		return err
	}
	records, err := m.store.ListTransferRecords(ctx, batchID, cycleID)
	if err != nil {
		return err
	}

	roles := make(map[int64]model.DeviceRole, len(devices))
	for _, d := range devices {
		roles[d.DeviceID] = d.Role
	}
	csrPending := false
	for _, r := range records {
		if roles[r.DestDeviceID] == model.RoleCSR && !r.Status.Resolved() {
			csrPending = true
			break
		}
	}

	changed := false
	for i := range devices {
		d := &devices[i]
		want := deriveStatus(d.DeviceID, d.Role, records, csrPending)
		if want <= d.Status {
			continue
		}
		key := store.CycleKey{BatchID: batchID, CycleID: cycleID, DeviceID: d.DeviceID}
		applied, err := m.store.AdvanceCycleStatus(ctx, key, want)
		if errors.Is(err, ErrStaleUpdate) {
			m.logger.Debug("cycle status moved concurrently", zap.Int64("device_id", d.DeviceID), zap.Int64("cycle_id", cycleID))
			continue
		}
		if err != nil {
			return err
		}
		if applied {
			d.Status = want
			changed = true
		}
	}

	if changed && allDone(devices) {
		return m.complete(ctx, batchID, cycleID, devices, records)
	}
	return nil
}

// complete releases the cycle's canisters, closes its trolley run and clears the
// pending-transfer flag of its devices. When the batch has no pending cycle left the
// drain hook runs.
func (m *Machine) complete(ctx context.Context, batchID, cycleID int64, devices []store.CycleDevice, records []model.TransferRecord) error {
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.CanisterID)
	}
	if err := m.store.ReleaseReservation(ctx, ids); err != nil {
		return err
	}
	if err := m.store.CompleteGuidedMeta(ctx, cycleID); err != nil {
		return err
	}

	for _, d := range devices {
		m.sink.PublishPendingTransferFlag(ctx, notification.PendingTransferFlag{DeviceID: d.DeviceID, BatchID: batchID, Pending: false})
	}
	m.logger.Info("cycle complete", zap.Int64("batch_id", batchID), zap.Int64("cycle_id", cycleID))

	next, err := m.store.NextPendingCycle(ctx, batchID, 0)
	if err != nil {
		return err
	}
	if next == nil && m.onDrain != nil {
		m.onDrain(ctx, devices[0].SystemID)
	}
	return nil
}

// ScanDrawer resolves a scanned drawer, by printed label or serial number, and
// announces it to the drawer's device.
func (m *Machine) ScanDrawer(ctx context.Context, code string) (*model.Container, error) {
	container, err := m.findDrawer(ctx, code)
	if err != nil {
		return nil, err
	}
	m.sink.PublishDrawerScanned(ctx, notification.DrawerScanned{
		DeviceID:     container.DeviceID,
		Drawer:       container.Name,
		SerialNumber: container.SerialNumber,
	})
	return container, nil
}
