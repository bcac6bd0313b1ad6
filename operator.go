package pixelpipe

import "github.com/rawforge/pixelpipe/internal/parallel"

// Colorspace is an operator's preferred input colorspace.
type Colorspace int

const (
	ColorspaceRGB Colorspace = iota
	ColorspaceLab
	ColorspaceRAW
)

func (c Colorspace) String() string {
	switch c {
	case ColorspaceRGB:
		return "rgb"
	case ColorspaceLab:
		return "lab"
	case ColorspaceRAW:
		return "raw"
	default:
		return "unknown"
	}
}

// OperationTag is a static bitset of operator capabilities/behaviors
// consulted by the driver (e.g. whether the mask-display short-circuit
// may apply).
type OperationTag uint32

const (
	// TagDistorts marks an operator that changes pixel geometry; the
	// mask-display short-circuit never applies to it.
	TagDistorts OperationTag = 1 << iota
	// TagPreviewOnlyCPU marks an operator that must never run on GPU in
	// the preview pipeline kind.
	TagPreviewOnlyCPU
	// TagDecoder marks the source-reading operator.
	TagDecoder
)

func (t OperationTag) Has(flag OperationTag) bool { return t&flag != 0 }

// OperatorFlags carries metadata orthogonal to OperationTag.
type OperatorFlags uint32

const FlagNone OperatorFlags = 0

const (
	FlagSupportsMask OperatorFlags = 1 << iota
	FlagAllowTiling16
)

// TilingEstimate is the memory estimate an operator reports for a given
// ROI pair, used both to choose between direct and tiled execution and to
// decide whether a device has room.
type TilingEstimate struct {
	// Factor is the working-set multiplier relative to in+out buffer size
	// (temporaries the operator allocates internally).
	Factor float64
	// Overhead is a fixed per-call byte overhead independent of ROI size.
	Overhead int64
	// MaxBuf is the largest single allocation the operator will make,
	// in bytes, for the given ROI pair.
	MaxBuf int64
}

// Fits reports whether the estimate's largest single allocation is
// within budget bytes, the test used for "device has room".
func (t TilingEstimate) Fits(budget int64) bool {
	return t.MaxBuf <= budget
}

// OperatorDescriptor is static per-kind metadata for an operator,
// independent of any particular run or node.
type OperatorDescriptor struct {
	Name                string
	PreferredColorspace Colorspace
	Tags                OperationTag
	DefaultParams       []byte
	DefaultBlendParams  []byte
	DefaultEnabled      bool
}

// Operator is the polymorphic capability set every IOP implements. A
// concrete operator is registered once under its canonical name and
// shared, read-only, by every Node that instantiates it.
type Operator interface {
	// Descriptor returns the operator's static metadata.
	Descriptor() OperatorDescriptor

	// OutputFormat is pure: given the node and its input descriptor,
	// returns the descriptor of the buffer this operator produces. May
	// change channel count or datatype (e.g. demosaic, colorout).
	OutputFormat(n *Node, in BufferDescriptor) BufferDescriptor

	// ModifyROIIn is pure and must be monotone: shrinking roiOut must
	// shrink or leave equal the returned roiIn.
	ModifyROIIn(n *Node, roiOut ROI) ROI

	// ModifyROIOut is the inverse of ModifyROIIn, used to compute total
	// processed dimensions from the source downstream.
	ModifyROIOut(n *Node, roiIn ROI) ROI

	// Commit prepares per-node scratch from n's typed parameter blob.
	// Idempotent: calling it twice with the same params is a no-op
	// after the first.
	Commit(n *Node, p *Pipeline) error

	// Process is the CPU path. Must not spoil in even on failure.
	Process(n *Node, in, out *HostBuffer, roiIn, roiOut ROI) error

	// TilingCallback estimates the memory cost of processing roiIn/roiOut.
	TilingCallback(n *Node, roiIn, roiOut ROI) TilingEstimate
}

// TilingOperator is implemented by operators whose node reports
// tiling_ready (present iff the operator supports the CPU tiled path).
// pool is the pipeline's shared worker pool, handed down so the
// operator's own row/tile loop can run as a parallel-for across pool
// workers instead of spinning up its own goroutines.
type TilingOperator interface {
	ProcessTiling(n *Node, in, out *HostBuffer, roiIn, roiOut ROI, inBPP int, pool *parallel.WorkerPool) error
}

// DeviceOperator is implemented by operators whose node reports
// cl_ready (present iff the operator supports the GPU path). ProcessCL
// reports ok=false, not an error, on anticipated device failure so the
// driver can fall back to CPU without treating it as fatal.
type DeviceOperator interface {
	ProcessCL(n *Node, in, out *DeviceBuffer, roiIn, roiOut ROI) (ok bool, err error)
}

// HostBuffer is a pixel buffer resident in host memory plus the
// descriptor of its contents. Host buffers are owned by the buffer cache;
// operators borrow them for the duration of a call and must not retain a
// reference past it.
type HostBuffer struct {
	Desc BufferDescriptor
	Data []byte
}
