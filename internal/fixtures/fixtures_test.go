package fixtures

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/rawforge/pixelpipe"
	"github.com/rawforge/pixelpipe/internal/parallel"
)

func float32Buffer(w, h, channels int, fill func(px, c int) float32) *pixelpipe.HostBuffer {
	desc := pixelpipe.BufferDescriptor{Width: w, Height: h, Channels: channels, Datatype: pixelpipe.Float32}
	buf := &pixelpipe.HostBuffer{Desc: desc, Data: make([]byte, desc.ByteSize())}
	bpp := desc.BytesPerPixel()
	for px := 0; px < w*h; px++ {
		for c := 0; c < channels; c++ {
			v := fill(px, c)
			binary.LittleEndian.PutUint32(buf.Data[px*bpp+c*4:px*bpp+c*4+4], math.Float32bits(v))
		}
	}
	return buf
}

// TestTiledGammaMatchesGamma checks that splitting the encode across the
// worker pool produces byte-identical output to the single-pass Process
// path, the invariant that lets a caller swap one encoder for the other.
func TestTiledGammaMatchesGamma(t *testing.T) {
	const w, h = 37, 21 // deliberately not a multiple of the tile height
	in := float32Buffer(w, h, 4, func(px, c int) float32 {
		return float32(px%256) / 255
	})

	outDirect := &pixelpipe.HostBuffer{
		Desc: Gamma{}.OutputFormat(nil, in.Desc),
		Data: make([]byte, w*h*4),
	}
	if err := Gamma{}.Process(nil, in, outDirect, pixelpipe.ROI{}, pixelpipe.ROI{Width: w, Height: h}); err != nil {
		t.Fatalf("Gamma.Process: %v", err)
	}

	pool := parallel.NewWorkerPool(4)
	defer pool.Close()

	outTiled := &pixelpipe.HostBuffer{
		Desc: TiledGamma{}.OutputFormat(nil, in.Desc),
		Data: make([]byte, w*h*4),
	}
	roiOut := pixelpipe.ROI{Width: w, Height: h}
	if err := (TiledGamma{}).ProcessTiling(nil, in, outTiled, roiOut, roiOut, in.Desc.BytesPerPixel(), pool); err != nil {
		t.Fatalf("TiledGamma.ProcessTiling: %v", err)
	}

	for i := range outDirect.Data {
		if outDirect.Data[i] != outTiled.Data[i] {
			t.Fatalf("byte %d: direct=%d tiled=%d", i, outDirect.Data[i], outTiled.Data[i])
		}
	}
}

// TestTiledGammaNilPool exercises the sequential fallback used when no
// pool is available (e.g. a caller driving the operator directly in a
// test, outside a Pipeline).
func TestTiledGammaNilPool(t *testing.T) {
	const w, h = 8, 8
	in := float32Buffer(w, h, 4, func(px, c int) float32 { return 0.5 })
	out := &pixelpipe.HostBuffer{
		Desc: TiledGamma{}.OutputFormat(nil, in.Desc),
		Data: make([]byte, w*h*4),
	}
	roiOut := pixelpipe.ROI{Width: w, Height: h}
	if err := (TiledGamma{}).ProcessTiling(nil, in, out, roiOut, roiOut, in.Desc.BytesPerPixel(), nil); err != nil {
		t.Fatalf("ProcessTiling with nil pool: %v", err)
	}
	for _, b := range out.Data {
		if b != 127 {
			t.Fatalf("want 127 (0.5*255 truncated), got %d", b)
		}
	}
}

// TestTiledGammaImplementsTilingOperator confirms TiledGamma satisfies
// pixelpipe.TilingOperator, the interface a node's tiling_ready flag is
// derived from and that dispatch.go's runCPU checks before handing it the
// pool.
func TestTiledGammaImplementsTilingOperator(t *testing.T) {
	var op pixelpipe.Operator = TiledGamma{}
	if _, ok := op.(pixelpipe.TilingOperator); !ok {
		t.Fatal("TiledGamma must implement pixelpipe.TilingOperator")
	}
}
