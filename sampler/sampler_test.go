package sampler

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/rawforge/pixelpipe"
)

func float32Buffer(w, h, channels int, fill func(x, y, c int) float32) *pixelpipe.HostBuffer {
	desc := pixelpipe.BufferDescriptor{Width: w, Height: h, Channels: channels, Datatype: pixelpipe.Float32}
	buf := &pixelpipe.HostBuffer{Desc: desc, Data: make([]byte, desc.ByteSize())}
	bpp := desc.BytesPerPixel()
	stride := w * bpp
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < channels; c++ {
				base := y*stride + x*bpp + c*4
				binary.LittleEndian.PutUint32(buf.Data[base:base+4], math.Float32bits(fill(x, y, c)))
			}
		}
	}
	return buf
}

func TestHistogramSumsToArea(t *testing.T) {
	buf := float32Buffer(4, 4, 4, func(x, y, c int) float32 { return 0.5 })
	h := NewHistogram(buf, 0, 0, 4, 4, 256)

	for c := 0; c < 4; c++ {
		var total uint32
		for _, count := range h.Bins[c] {
			total += count
		}
		if total != 16 {
			t.Errorf("channel %d: bin counts sum to %d, want 16", c, total)
		}
	}
}

func TestHistogramClampsOutOfRangeValues(t *testing.T) {
	buf := float32Buffer(2, 2, 4, func(x, y, c int) float32 { return 2.0 })
	h := NewHistogram(buf, 0, 0, 2, 2, 16)
	if h.Bins[0][15] != 4 {
		t.Errorf("expected all 4 pixels clamped into the last bin, got %d", h.Bins[0][15])
	}
}

func TestPickColorUniformSwatch(t *testing.T) {
	buf := float32Buffer(10, 10, 4, func(x, y, c int) float32 {
		return []float32{0.25, 0.5, 0.75, 1.0}[c]
	})
	picked := PickColor(buf, 0, 0, 2, 2, 6, 6)

	want := [3]float32{0.25, 0.5, 0.75}
	for c := 0; c < 3; c++ {
		if diff := picked.Mean[c] - want[c]; diff > 1e-4 || diff < -1e-4 {
			t.Errorf("channel %d mean = %v, want %v", c, picked.Mean[c], want[c])
		}
		if picked.Min[c] != want[c] || picked.Max[c] != want[c] {
			t.Errorf("channel %d min/max = %v/%v, want both %v", c, picked.Min[c], picked.Max[c], want[c])
		}
	}
}

func TestPickColorRawNormalizesPerColorClass(t *testing.T) {
	desc := pixelpipe.BufferDescriptor{
		Width: 4, Height: 4, Channels: 1, Datatype: pixelpipe.Float32,
		CFA: pixelpipe.BayerPattern(pixelpipe.CFARed, pixelpipe.CFAGreen, pixelpipe.CFAGreen, pixelpipe.CFABlue),
	}
	buf := &pixelpipe.HostBuffer{Desc: desc, Data: make([]byte, desc.ByteSize())}
	stride := desc.Width * desc.BytesPerPixel()
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			v := float32(0.1)
			switch desc.CFA.ColorAt(x, y) {
			case pixelpipe.CFARed:
				v = 0.9
			case pixelpipe.CFABlue:
				v = 0.1
			default:
				v = 0.5
			}
			base := y*stride + x*4
			binary.LittleEndian.PutUint32(buf.Data[base:base+4], math.Float32bits(v))
		}
	}

	picked := PickColor(buf, 0, 0, 0, 0, 4, 4)
	if picked.Mean[pixelpipe.CFARed] < 0.89 || picked.Mean[pixelpipe.CFARed] > 0.91 {
		t.Errorf("red class mean = %v, want ~0.9", picked.Mean[pixelpipe.CFARed])
	}
	if picked.Mean[pixelpipe.CFAGreen] < 0.49 || picked.Mean[pixelpipe.CFAGreen] > 0.51 {
		t.Errorf("green class mean = %v, want ~0.5", picked.Mean[pixelpipe.CFAGreen])
	}
}

func TestWaveformDimensions(t *testing.T) {
	buf := float32Buffer(8, 8, 4, func(x, y, c int) float32 { return 0 })
	w := NewWaveform(buf, 8, 8, 16, 16, 1, 1)
	if len(w.Cells) != 16*16 {
		t.Fatalf("expected %d cells, got %d", 16*16, len(w.Cells))
	}
	if w.Width != 16 || w.Height != 16 {
		t.Errorf("expected 16x16 waveform, got %dx%d", w.Width, w.Height)
	}
}
