package notification

import "context"

// Event types carried in notification payloads.
const (
	TypeCycleCreated        = "cycle_created"
	TypeDrawerScanned       = "drawer_scanned"
	TypePendingTransferFlag = "pending_transfer"
)

// CycleCreated announces the first cycle of a freshly scheduled mini-batch.
type CycleCreated struct {
	SystemID         int64   `json:"system_id"`
	BatchID          int64   `json:"batch_id"`
	MiniBatchID      int64   `json:"mini_batch_id"`
	CycleID          int64   `json:"cycle_id"`
	EstimatedSeconds int     `json:"estimated_seconds"`
	DeviceIDs        []int64 `json:"device_ids"`
}

// DrawerScanned reports that an operator scanned a drawer label.
type DrawerScanned struct {
	DeviceID     int64  `json:"device_id"`
	Drawer       string `json:"drawer"`
	SerialNumber string `json:"serial_number"`
}

// PendingTransferFlag toggles the pending-transfer banner of a device.
type PendingTransferFlag struct {
	DeviceID int64 `json:"device_id"`
	BatchID  int64 `json:"batch_id"`
	Pending  bool  `json:"pending"`
}

// Sink receives operator-facing state changes. Delivery is best-effort: implementations
// log failures and never report them to the caller.
type Sink interface {
	PublishCycleCreated(ctx context.Context, ev CycleCreated)
	PublishDrawerScanned(ctx context.Context, ev DrawerScanned)
	PublishPendingTransferFlag(ctx context.Context, ev PendingTransferFlag)
}

// Multi fans every event out to each sink in order.
type Multi []Sink

func (m Multi) PublishCycleCreated(ctx context.Context, ev CycleCreated) {
	for _, s := range m {
		s.PublishCycleCreated(ctx, ev)
	}
}

func (m Multi) PublishDrawerScanned(ctx context.Context, ev DrawerScanned) {
	for _, s := range m {
		s.PublishDrawerScanned(ctx, ev)
	}
}

func (m Multi) PublishPendingTransferFlag(ctx context.Context, ev PendingTransferFlag) {
	for _, s := range m {
		s.PublishPendingTransferFlag(ctx, ev)
	}
}

// envelope is the JSON document pushed to browsers and device consoles.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
