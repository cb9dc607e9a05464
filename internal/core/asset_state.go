package core

// assetTransition is one edge of the asset state machine.
type assetTransition struct {
	name string
	from []AssetStatus
	to   AssetStatus
}

var (
	transitionIssue               = assetTransition{name: "issue", from: []AssetStatus{StatusInStock}, to: StatusIssued}
	transitionReturn              = assetTransition{name: "return", from: []AssetStatus{StatusIssued}, to: StatusInStock}
	transitionSendToMaintenance   = assetTransition{name: "send to maintenance", from: []AssetStatus{StatusInStock}, to: StatusMaintenance}
	transitionCompleteMaintenance = assetTransition{name: "complete maintenance", from: []AssetStatus{StatusMaintenance}, to: StatusInStock}
	transitionWriteOff            = assetTransition{
		name: "write off",
		from: []AssetStatus{StatusInStock, StatusIssued, StatusMaintenance},
		to:   StatusWrittenOff,
	}
)

var assetTransitions = []assetTransition{
	transitionIssue,
	transitionReturn,
	transitionSendToMaintenance,
	transitionCompleteMaintenance,
	transitionWriteOff,
}

func (t assetTransition) allows(from AssetStatus) bool {
	for _, s := range t.from {
		if s == from {
			return true
		}
	}
	return false
}

// check returns a NotAvailable error naming the asset and its current status
// when the transition does not apply.
func (t assetTransition) check(a *Asset) error {
	if t.allows(a.Status) {
		return nil
	}
	return notAvailableErrorf("cannot %s asset %s: current status is %s", t.name, a.InventoryNumber, a.Status)
}

// CanTransition reports whether any operation moves an asset from one status to another.
// WRITTEN_OFF has no outgoing edges.
func CanTransition(from, to AssetStatus) bool {
	for _, t := range assetTransitions {
		if t.to == to && t.allows(from) {
			return true
		}
	}
	return false
}
