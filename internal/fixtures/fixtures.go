// Package fixtures provides minimal operators for tests in packages that
// sit downstream of the root package (device backends, the developer
// CLI): a decoder-shaped source, an identity pass, a crop, a gamma
// encoder, a tiled gamma encoder that dispatches across the pipeline's
// worker pool, an operator that reports a ROI change but produces
// identical pixels, and a GPU-only operator with no CPU path. The root
// package's own tests define their operators in-package instead, since
// this package imports the root package and so cannot be imported back
// by it.
package fixtures

import (
	"encoding/binary"
	"math"

	"github.com/rawforge/pixelpipe"
	"github.com/rawforge/pixelpipe/internal/parallel"
)

func readF32(b []byte) float32  { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }
func writeF32(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) }

// Source is the TagDecoder operator every chain starts with: it ignores
// its (nonexistent) input and returns the pipeline's configured input
// buffer, cropped/scaled to the requested ROI by the driver itself.
type Source struct{}

func (Source) Descriptor() pixelpipe.OperatorDescriptor {
	return pixelpipe.OperatorDescriptor{Name: "fixtures.0_source", Tags: pixelpipe.TagDecoder, DefaultEnabled: true}
}
func (Source) OutputFormat(n *pixelpipe.Node, in pixelpipe.BufferDescriptor) pixelpipe.BufferDescriptor {
	return in
}
func (Source) ModifyROIIn(n *pixelpipe.Node, roiOut pixelpipe.ROI) pixelpipe.ROI  { return roiOut }
func (Source) ModifyROIOut(n *pixelpipe.Node, roiIn pixelpipe.ROI) pixelpipe.ROI { return roiIn }
func (Source) Commit(n *pixelpipe.Node, p *pixelpipe.Pipeline) error             { return nil }
func (Source) Process(n *pixelpipe.Node, in, out *pixelpipe.HostBuffer, roiIn, roiOut pixelpipe.ROI) error {
	copy(out.Data, in.Data)
	return nil
}
func (Source) TilingCallback(n *pixelpipe.Node, roiIn, roiOut pixelpipe.ROI) pixelpipe.TilingEstimate {
	return pixelpipe.TilingEstimate{Factor: 1, MaxBuf: int64(roiOut.Area() * 16)}
}

// Identity passes its input through unchanged: ROI in == ROI out, format
// unchanged, pixels unchanged. Used to test that the driver's fingerprint
// chain and cache sharing behave correctly for a no-op node.
type Identity struct{}

func (Identity) Descriptor() pixelpipe.OperatorDescriptor {
	return pixelpipe.OperatorDescriptor{Name: "fixtures.1_identity", DefaultEnabled: true}
}
func (Identity) OutputFormat(n *pixelpipe.Node, in pixelpipe.BufferDescriptor) pixelpipe.BufferDescriptor {
	return in
}
func (Identity) ModifyROIIn(n *pixelpipe.Node, roiOut pixelpipe.ROI) pixelpipe.ROI  { return roiOut }
func (Identity) ModifyROIOut(n *pixelpipe.Node, roiIn pixelpipe.ROI) pixelpipe.ROI { return roiIn }
func (Identity) Commit(n *pixelpipe.Node, p *pixelpipe.Pipeline) error             { return nil }
func (Identity) Process(n *pixelpipe.Node, in, out *pixelpipe.HostBuffer, roiIn, roiOut pixelpipe.ROI) error {
	copy(out.Data, in.Data)
	return nil
}
func (Identity) TilingCallback(n *pixelpipe.Node, roiIn, roiOut pixelpipe.ROI) pixelpipe.TilingEstimate {
	return pixelpipe.TilingEstimate{Factor: 1, MaxBuf: int64(roiOut.Area() * 16)}
}

// Crop requests a strictly smaller input ROI than its output, exercising
// the driver's backward ROI propagation: ModifyROIIn must shrink
// monotonically as roiOut shrinks.
type Crop struct {
	Margin int
}

func (c Crop) Descriptor() pixelpipe.OperatorDescriptor {
	return pixelpipe.OperatorDescriptor{Name: "fixtures.2_crop", DefaultEnabled: true}
}
func (c Crop) OutputFormat(n *pixelpipe.Node, in pixelpipe.BufferDescriptor) pixelpipe.BufferDescriptor {
	return in
}
func (c Crop) ModifyROIIn(n *pixelpipe.Node, roiOut pixelpipe.ROI) pixelpipe.ROI {
	r := roiOut
	r.X += c.Margin
	r.Y += c.Margin
	r.Width -= 2 * c.Margin
	r.Height -= 2 * c.Margin
	if r.Width < 1 {
		r.Width = 1
	}
	if r.Height < 1 {
		r.Height = 1
	}
	return r
}
func (c Crop) ModifyROIOut(n *pixelpipe.Node, roiIn pixelpipe.ROI) pixelpipe.ROI {
	r := roiIn
	r.X -= c.Margin
	r.Y -= c.Margin
	r.Width += 2 * c.Margin
	r.Height += 2 * c.Margin
	return r
}
func (c Crop) Commit(n *pixelpipe.Node, p *pixelpipe.Pipeline) error { return nil }
func (c Crop) Process(n *pixelpipe.Node, in, out *pixelpipe.HostBuffer, roiIn, roiOut pixelpipe.ROI) error {
	copy(out.Data, in.Data)
	return nil
}
func (c Crop) TilingCallback(n *pixelpipe.Node, roiIn, roiOut pixelpipe.ROI) pixelpipe.TilingEstimate {
	return pixelpipe.TilingEstimate{Factor: 1, MaxBuf: int64(roiOut.Area() * 16)}
}

// Gamma encodes a float32 buffer to 8-bit, simulating the final output
// stage: OutputFormat changes Datatype, exercising cache descriptors that
// differ between a node's input and output.
type Gamma struct{}

func (Gamma) Descriptor() pixelpipe.OperatorDescriptor {
	return pixelpipe.OperatorDescriptor{Name: "fixtures.3_gamma", DefaultEnabled: true}
}
func (Gamma) OutputFormat(n *pixelpipe.Node, in pixelpipe.BufferDescriptor) pixelpipe.BufferDescriptor {
	out := in
	out.Datatype = pixelpipe.Uint8
	return out
}
func (Gamma) ModifyROIIn(n *pixelpipe.Node, roiOut pixelpipe.ROI) pixelpipe.ROI  { return roiOut }
func (Gamma) ModifyROIOut(n *pixelpipe.Node, roiIn pixelpipe.ROI) pixelpipe.ROI { return roiIn }
func (Gamma) Commit(n *pixelpipe.Node, p *pixelpipe.Pipeline) error             { return nil }
func (Gamma) Process(n *pixelpipe.Node, in, out *pixelpipe.HostBuffer, roiIn, roiOut pixelpipe.ROI) error {
	inBpp := in.Desc.BytesPerPixel()
	for px := 0; px < roiOut.Width*roiOut.Height; px++ {
		for c := 0; c < in.Desc.Channels; c++ {
			v := readF32(in.Data[px*inBpp+c*4 : px*inBpp+c*4+4])
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			out.Data[px*in.Desc.Channels+c] = byte(v * 255)
		}
	}
	return nil
}
func (Gamma) TilingCallback(n *pixelpipe.Node, roiIn, roiOut pixelpipe.ROI) pixelpipe.TilingEstimate {
	return pixelpipe.TilingEstimate{Factor: 1, MaxBuf: int64(roiOut.Area() * 16)}
}

// encodeGammaRange applies Gamma's float32-to-uint8 encode to output rows
// [y0, y1), shared by TiledGamma's direct Process and its per-band work
// items. It uses the same clamp-and-truncate encode as Gamma.Process, so
// all three paths produce identical pixels.
func encodeGammaRange(in, out *pixelpipe.HostBuffer, y0, y1, width int) {
	inBpp := in.Desc.BytesPerPixel()
	channels := in.Desc.Channels
	for y := y0; y < y1; y++ {
		for x := 0; x < width; x++ {
			px := y*width + x
			for c := 0; c < channels; c++ {
				v := readF32(in.Data[px*inBpp+c*4 : px*inBpp+c*4+4])
				if v < 0 {
					v = 0
				}
				if v > 1 {
					v = 1
				}
				out.Data[px*channels+c] = byte(v * 255)
			}
		}
	}
}

// TiledGamma is Gamma's tiled twin: it reports tiling_ready and splits its
// output into the shared tile grid, dispatching one work item per tile row
// band to the pipeline's worker pool instead of encoding the whole ROI on
// a single goroutine. Disabled by default since it and Gamma are
// alternative encoders for the same slot in the chain: enabling both
// would feed Gamma's uint8 output into TiledGamma's float32 decode.
// Callers that want the tiled path enable it explicitly through history
// and disable fixtures.3_gamma.
type TiledGamma struct{}

func (TiledGamma) Descriptor() pixelpipe.OperatorDescriptor {
	return pixelpipe.OperatorDescriptor{Name: "fixtures.3_tiled_gamma", DefaultEnabled: false}
}
func (TiledGamma) OutputFormat(n *pixelpipe.Node, in pixelpipe.BufferDescriptor) pixelpipe.BufferDescriptor {
	out := in
	out.Datatype = pixelpipe.Uint8
	return out
}
func (TiledGamma) ModifyROIIn(n *pixelpipe.Node, roiOut pixelpipe.ROI) pixelpipe.ROI  { return roiOut }
func (TiledGamma) ModifyROIOut(n *pixelpipe.Node, roiIn pixelpipe.ROI) pixelpipe.ROI { return roiIn }
func (TiledGamma) Commit(n *pixelpipe.Node, p *pixelpipe.Pipeline) error             { return nil }
func (TiledGamma) Process(n *pixelpipe.Node, in, out *pixelpipe.HostBuffer, roiIn, roiOut pixelpipe.ROI) error {
	encodeGammaRange(in, out, 0, roiOut.Height, roiOut.Width)
	return nil
}
func (TiledGamma) TilingCallback(n *pixelpipe.Node, roiIn, roiOut pixelpipe.ROI) pixelpipe.TilingEstimate {
	return pixelpipe.TilingEstimate{Factor: 1, MaxBuf: int64(roiOut.Area() * 16)}
}
func (TiledGamma) ProcessTiling(n *pixelpipe.Node, in, out *pixelpipe.HostBuffer, roiIn, roiOut pixelpipe.ROI, inBPP int, pool *parallel.WorkerPool) error {
	grid := parallel.NewGrid(roiOut.Width, roiOut.Height)
	if grid.Count() == 0 {
		return nil
	}

	work := make([]func(), 0, grid.Count())
	for row := 0; row < grid.Rows; row++ {
		_, y, _, h := grid.TileBounds(0, row)
		y0, y1 := y, y+h
		work = append(work, func() {
			encodeGammaRange(in, out, y0, y1, roiOut.Width)
		})
	}

	if pool == nil {
		for _, w := range work {
			w()
		}
		return nil
	}
	pool.ExecuteAll(work)
	return nil
}

// DistortIdentity reports a ModifyROIIn/Out pair that is not the identity
// transform (it pads by one pixel) but produces byte-identical output to
// its cropped input, so fingerprinting (which depends on ROI, not on
// whether pixels actually changed) can be exercised independently of
// visual correctness.
type DistortIdentity struct{}

func (DistortIdentity) Descriptor() pixelpipe.OperatorDescriptor {
	return pixelpipe.OperatorDescriptor{Name: "fixtures.2_distort_identity", Tags: pixelpipe.TagDistorts, DefaultEnabled: true}
}
func (DistortIdentity) OutputFormat(n *pixelpipe.Node, in pixelpipe.BufferDescriptor) pixelpipe.BufferDescriptor {
	return in
}
func (DistortIdentity) ModifyROIIn(n *pixelpipe.Node, roiOut pixelpipe.ROI) pixelpipe.ROI {
	r := roiOut
	r.Width++
	r.Height++
	return r
}
func (DistortIdentity) ModifyROIOut(n *pixelpipe.Node, roiIn pixelpipe.ROI) pixelpipe.ROI {
	r := roiIn
	r.Width--
	r.Height--
	return r
}
func (DistortIdentity) Commit(n *pixelpipe.Node, p *pixelpipe.Pipeline) error { return nil }
func (DistortIdentity) Process(n *pixelpipe.Node, in, out *pixelpipe.HostBuffer, roiIn, roiOut pixelpipe.ROI) error {
	copy(out.Data, in.Data[:len(out.Data)])
	return nil
}
func (DistortIdentity) TilingCallback(n *pixelpipe.Node, roiIn, roiOut pixelpipe.ROI) pixelpipe.TilingEstimate {
	return pixelpipe.TilingEstimate{Factor: 1, MaxBuf: int64(roiOut.Area() * 16)}
}

// HeavyCLOnly implements DeviceOperator but not TilingOperator and its
// Process always fails, simulating an operator the author only ever
// bothered to write a GPU kernel for. Exercises the driver's device path
// selection: when CLReady but the device is unavailable or over budget,
// the driver must not silently call this Process and must instead report
// a clear error rather than produce wrong pixels.
type HeavyCLOnly struct{}

func (HeavyCLOnly) Descriptor() pixelpipe.OperatorDescriptor {
	return pixelpipe.OperatorDescriptor{Name: "fixtures.1_heavy_cl_only", DefaultEnabled: true}
}
func (HeavyCLOnly) OutputFormat(n *pixelpipe.Node, in pixelpipe.BufferDescriptor) pixelpipe.BufferDescriptor {
	return in
}
func (HeavyCLOnly) ModifyROIIn(n *pixelpipe.Node, roiOut pixelpipe.ROI) pixelpipe.ROI  { return roiOut }
func (HeavyCLOnly) ModifyROIOut(n *pixelpipe.Node, roiIn pixelpipe.ROI) pixelpipe.ROI { return roiIn }
func (HeavyCLOnly) Commit(n *pixelpipe.Node, p *pixelpipe.Pipeline) error             { return nil }
func (HeavyCLOnly) Process(n *pixelpipe.Node, in, out *pixelpipe.HostBuffer, roiIn, roiOut pixelpipe.ROI) error {
	return pixelpipe.ErrInvariant
}
func (HeavyCLOnly) TilingCallback(n *pixelpipe.Node, roiIn, roiOut pixelpipe.ROI) pixelpipe.TilingEstimate {
	return pixelpipe.TilingEstimate{Factor: 4, MaxBuf: int64(roiOut.Area() * 64)}
}
func (HeavyCLOnly) ProcessCL(n *pixelpipe.Node, in, out *pixelpipe.DeviceBuffer, roiIn, roiOut pixelpipe.ROI) (bool, error) {
	return true, nil
}

// Register installs every fixture operator into the package registry.
// Tests call this once; it is not safe to call twice in the same process
// since RegisterOperator panics on a duplicate name.
func Register() {
	pixelpipe.RegisterOperator(Source{})
	pixelpipe.RegisterOperator(Identity{})
	pixelpipe.RegisterOperator(Crop{Margin: 1})
	pixelpipe.RegisterOperator(Gamma{})
	pixelpipe.RegisterOperator(TiledGamma{})
	pixelpipe.RegisterOperator(DistortIdentity{})
	pixelpipe.RegisterOperator(HeavyCLOnly{})
}
