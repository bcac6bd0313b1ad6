package pixelpipe

// HistoryItem is one user edit record: the operator it targets and the
// parameter/blend-parameter/enabled snapshot to apply.
type HistoryItem struct {
	OperatorName    string
	ParamsBlob      []byte
	BlendParamsBlob []byte
	Enabled         bool
}

// HistorySource is an ordered, read-only sequence of history items. It
// carries no separate cursor: the driver replays every item up to Len().
// The driver never mutates a HistorySource.
type HistorySource interface {
	// Len returns the number of items in the source.
	Len() int
	// Item returns the i'th item (0-based).
	Item(i int) HistoryItem
}

// SliceHistory is the trivial in-memory HistorySource implementation used
// by tests and simple callers.
type SliceHistory []HistoryItem

func (s SliceHistory) Len() int            { return len(s) }
func (s SliceHistory) Item(i int) HistoryItem { return s[i] }

// ChangeClass identifies the cheapest applicable rebuild strategy for a
// history change.
type ChangeClass int

const (
	// ChangeTop means only the last history item differs: commit just its node.
	ChangeTop ChangeClass = iota
	// ChangeSynch means topology is unchanged but any params may have
	// changed: reset every node to defaults, then replay history.
	ChangeSynch
	// ChangeRemove means the node set itself must change: tear down and
	// rebuild from the operator registry.
	ChangeRemove
)

// classifyChange compares an old and new history to pick the cheapest
// rebuild class. The node set depends only on the registry (Build creates
// one node per registered operator, not per history item), so the
// registry never changing during a pipeline's life means ChangeRemove is
// only needed the very first time, or when a caller explicitly forces a
// full rebuild.
func classifyChange(old, new HistorySource, forceRemove bool) ChangeClass {
	if forceRemove || old == nil {
		return ChangeRemove
	}
	if new.Len() == old.Len() {
		if new.Len() == 0 {
			return ChangeTop
		}
		last := new.Len() - 1
		onlyLastDiffers := true
		for i := 0; i < last; i++ {
			if !sameItem(old.Item(i), new.Item(i)) {
				onlyLastDiffers = false
				break
			}
		}
		if onlyLastDiffers {
			return ChangeTop
		}
		return ChangeSynch
	}
	// History grew or shrank without the node set changing (operators are
	// keyed by name, not by history position): still a Synch, since the
	// chain's node list is unaffected.
	return ChangeSynch
}

func sameItem(a, b HistoryItem) bool {
	if a.OperatorName != b.OperatorName || a.Enabled != b.Enabled {
		return false
	}
	return bytesEqual(a.ParamsBlob, b.ParamsBlob) && bytesEqual(a.BlendParamsBlob, b.BlendParamsBlob)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
