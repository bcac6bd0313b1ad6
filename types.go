package pixelpipe

import "fmt"

// Datatype is the scalar storage type of a pixel channel.
type Datatype int

const (
	// Float32 channels, the default intermediate representation.
	Float32 Datatype = iota
	// Uint8 channels, used by the final "gamma" output buffer.
	Uint8
)

// Size returns sizeof(datatype) in bytes.
func (d Datatype) Size() int {
	switch d {
	case Float32:
		return 4
	case Uint8:
		return 1
	default:
		return 0
	}
}

func (d Datatype) String() string {
	switch d {
	case Float32:
		return "float32"
	case Uint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// CFAFilter identifies the color filter array layout of a single-channel
// raw buffer.
type CFAFilter int

const (
	// CFANone indicates the buffer is not raw/mosaiced (channels != 1).
	CFANone CFAFilter = iota
	// CFABayer is a 2x2 repeating Bayer pattern.
	CFABayer
	// CFAXTrans is a 6x6 repeating X-Trans pattern.
	CFAXTrans
)

// CFAColor is one of the three sensor filter colors a Bayer/X-Trans cell
// can report. Both green cells of a Bayer quad report CFAGreen; the two
// green positions are not kept apart as separate classes.
type CFAColor int

const (
	CFARed CFAColor = iota
	CFAGreen
	CFABlue
	CFAColorCount
)

// CFAPattern describes the repeating sensor filter layout for a
// single-channel buffer. Only the leading 4 bytes are meaningful for
// Bayer; all 36 are meaningful for X-Trans.
type CFAPattern struct {
	Filter  CFAFilter
	Pattern [36]byte // CFAColor values, row-major
}

// ColorAt returns the CFA color at sensor-space coordinates (x, y),
// wrapping into the pattern's repeat period.
func (p CFAPattern) ColorAt(x, y int) CFAColor {
	switch p.Filter {
	case CFABayer:
		return CFAColor(p.Pattern[(y%2)*2+(x%2)])
	case CFAXTrans:
		return CFAColor(p.Pattern[(y%6)*6+(x%6)])
	default:
		return CFAGreen
	}
}

// BayerPattern builds a 2x2 CFAPattern from its row-major color codes.
func BayerPattern(c00, c01, c10, c11 CFAColor) CFAPattern {
	p := CFAPattern{Filter: CFABayer}
	p.Pattern[0], p.Pattern[1] = byte(c00), byte(c01)
	p.Pattern[2], p.Pattern[3] = byte(c10), byte(c11)
	return p
}

// ProcessedMaximum is a per-channel normalization vector carried alongside
// a buffer descriptor (e.g. white-balance-scaled maxima).
type ProcessedMaximum [4]float32

// BufferDescriptor describes the pixel layout of an image buffer: its
// dimensions, channel count, datatype, and (for single-channel buffers)
// CFA layout.
//
// Invariant: BytesPerPixel() == Channels * Datatype.Size(); the CFA
// pattern is only meaningful when Channels == 1.
type BufferDescriptor struct {
	Width, Height int
	Channels      int
	Datatype      Datatype
	CFA           CFAPattern
	ProcessedMax  ProcessedMaximum
}

// BytesPerPixel returns channels * sizeof(datatype).
func (d BufferDescriptor) BytesPerPixel() int {
	return d.Channels * d.Datatype.Size()
}

// ByteSize returns the total buffer size in bytes for the descriptor's
// width and height.
func (d BufferDescriptor) ByteSize() int {
	return d.Width * d.Height * d.BytesPerPixel()
}

// IsRaw reports whether the descriptor names a mosaiced single-channel
// raw buffer (CFA is meaningful iff Channels == 1).
func (d BufferDescriptor) IsRaw() bool {
	return d.Channels == 1
}

// Validate checks the descriptor's invariants.
func (d BufferDescriptor) Validate() error {
	if d.Width < 1 || d.Height < 1 {
		return fmt.Errorf("%w: buffer dimensions must be >= 1, got %dx%d", ErrInvariant, d.Width, d.Height)
	}
	if d.Channels != 1 && d.Channels != 4 {
		return fmt.Errorf("%w: unsupported channel count %d", ErrInvariant, d.Channels)
	}
	if !d.IsRaw() && d.CFA.Filter != CFANone {
		return fmt.Errorf("%w: CFA pattern set on a %d-channel buffer", ErrInvariant, d.Channels)
	}
	return nil
}
