package pixelpipe

// Node is a concrete per-run instance of an operator in the pipeline's
// linear chain. Nodes are created at pipeline-build, mutated by
// Build/Commit and by the Pipeline's DisableAfter and SetFocus, and
// destroyed at pipeline teardown; they borrow their
// Operator from the read-only global registry, whose lifetime outlives
// any pipeline.
type Node struct {
	Position int // index in the chain, 0 == source

	Operator   Operator
	descriptor OperatorDescriptor // cached copy of Operator.Descriptor()

	ParamsBlob      []byte
	BlendParamsBlob []byte
	Enabled         bool

	// CommittedHash is derived from ParamsBlob, BlendParamsBlob, and
	// Enabled. ChainHash additionally folds every predecessor's
	// CommittedHash, so it captures everything upstream that can affect
	// this node's output; it is what fingerprint() consumes.
	CommittedHash uint64
	ChainHash     uint64

	// Scratch is per-node state prepared by Operator.Commit from the
	// typed parameter blob (e.g. a decoded curve LUT). Opaque to the
	// driver.
	Scratch any

	DscIn, DscOut BufferDescriptor

	// HistogramRequest, when set, asks the driver to collect a histogram
	// of this node's output during execution.
	HistogramRequest bool

	// CLReady/TilingReady are computed once at Build time from whether
	// Operator implements DeviceOperator/TilingOperator, not stored
	// static metadata, since Go resolves interface satisfaction from the
	// concrete type.
	CLReady      bool
	TilingReady  bool

	// MaskDisplay requests the mask-display short-circuit the next time
	// this node executes.
	MaskDisplay bool

	// Focused marks the node whose input buffer should be reweighted in
	// the cache on every run; only meaningful for the preview pipeline
	// kind.
	Focused bool

	lastCommittedHash uint64
	everCommitted     bool
}

// newNode builds a node with default parameters and enabled flag, not yet
// committed.
func newNode(position int, op Operator) *Node {
	d := op.Descriptor()
	n := &Node{
		Position:        position,
		Operator:        op,
		descriptor:      d,
		ParamsBlob:      append([]byte(nil), d.DefaultParams...),
		BlendParamsBlob: append([]byte(nil), d.DefaultBlendParams...),
		Enabled:         d.DefaultEnabled,
	}
	if _, ok := op.(DeviceOperator); ok {
		n.CLReady = true
	}
	if _, ok := op.(TilingOperator); ok {
		n.TilingReady = true
	}
	return n
}

// Descriptor returns the node's operator's static metadata.
func (n *Node) Descriptor() OperatorDescriptor { return n.descriptor }

// Name returns the node's operator's canonical name, a convenience over
// Descriptor().Name.
func (n *Node) Name() string { return n.descriptor.Name }

// setHistory overwrites the node's params/blend params/enabled flag from a
// history item's snapshot.
func (n *Node) setHistory(item HistoryItem) {
	n.ParamsBlob = append([]byte(nil), item.ParamsBlob...)
	n.BlendParamsBlob = append([]byte(nil), item.BlendParamsBlob...)
	n.Enabled = item.Enabled
}

// resetToDefaults restores the node's params/blend params/enabled flag to
// its operator descriptor's defaults (used by the "Synch" rebuild class).
func (n *Node) resetToDefaults() {
	n.ParamsBlob = append([]byte(nil), n.descriptor.DefaultParams...)
	n.BlendParamsBlob = append([]byte(nil), n.descriptor.DefaultBlendParams...)
	n.Enabled = n.descriptor.DefaultEnabled
}

// commit recomputes CommittedHash from the node's current blobs/enabled
// flag and calls Operator.Commit exactly when that hash actually changed,
// making repeated commit calls with unchanged parameters a no-op past
// the first.
func (n *Node) commit(p *Pipeline) error {
	h := committedHash(n.ParamsBlob, n.BlendParamsBlob, n.Enabled)
	if n.everCommitted && h == n.lastCommittedHash {
		n.CommittedHash = h
		return nil
	}
	if err := n.Operator.Commit(n, p); err != nil {
		return err
	}
	n.CommittedHash = h
	n.lastCommittedHash = h
	n.everCommitted = true
	return nil
}
