package transfer

import "canister-transfer-backend/internal/model"

// Event is an operator action on one canister.
type Event int

const (
	EventConfirm Event = iota + 1
	EventSkip
	EventSkipWithAlternate
	EventTransferLater
)

func (e Event) String() string {
	switch e {
	case EventConfirm:
		return "confirm"
	case EventSkip:
		return "skip"
	case EventSkipWithAlternate:
		return "skip_with_alternate"
	case EventTransferLater:
		return "transfer_later"
	}
	return "unknown"
}

// Transition is one allowed edge of the per-canister transfer pipeline.
type Transition struct {
	From  model.TransferStatus
	To    model.TransferStatus
	Event Event
}

var transitionsTable = []Transition{
	// source -> trolley
	{From: model.TransferPending, To: model.TransferToTrolleyDone, Event: EventConfirm},
	{From: model.TransferPending, To: model.TransferToTrolleySkipped, Event: EventSkip},
	{From: model.TransferPending, To: model.TransferToTrolleyAlternate, Event: EventSkipWithAlternate},
	{From: model.TransferPending, To: model.TransferToTrolleyLater, Event: EventTransferLater},

	// trolley -> destination
	{From: model.TransferToTrolleyDone, To: model.TransferToDestDone, Event: EventConfirm},
	{From: model.TransferToTrolleyDone, To: model.TransferToDestSkipped, Event: EventSkip},
	{From: model.TransferToTrolleyDone, To: model.TransferToDestAlternate, Event: EventSkipWithAlternate},
	{From: model.TransferToTrolleyDone, To: model.TransferToDestLater, Event: EventTransferLater},
}

// TransitionFor returns the allowed transition for a status and event.
func TransitionFor(from model.TransferStatus, ev Event) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}
