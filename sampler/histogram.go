// Package sampler implements the pipeline's histogram and color-picker
// hooks: pure functions over a host buffer and a region of interest.
// The driver does not call them; callers invoke them on a node's output
// themselves. Kept as a separate package (rather than folded into the
// root package) because it is an optional consumer of a node's output,
// not part of the driver's own control flow.
package sampler

import (
	"encoding/binary"
	"math"

	"github.com/rawforge/pixelpipe"
)

// readChannel decodes the little-endian float32 channel c of the pixel
// whose first byte is at buf.Data[base].
func readChannel(buf *pixelpipe.HostBuffer, base, c int) float32 {
	i := base + c*4
	return math.Float32frombits(binary.LittleEndian.Uint32(buf.Data[i : i+4]))
}

// Histogram is a per-channel bin-count histogram with a fixed bin count,
// typically 256.
type Histogram struct {
	Bins [][]uint32 // Bins[channel][bin]
	Max  []uint32   // per-channel max bin count
}

// NewHistogram computes a per-channel bin-count histogram of buf
// restricted to (roiX, roiY, roiW, roiH), assuming channel values already
// lie in [0,1]. Invariant: sum(Bins[c]) == roiW*roiH for every channel c.
func NewHistogram(buf *pixelpipe.HostBuffer, roiX, roiY, roiW, roiH, binCount int) Histogram {
	channels := buf.Desc.Channels
	h := Histogram{
		Bins: make([][]uint32, channels),
		Max:  make([]uint32, channels),
	}
	for c := range h.Bins {
		h.Bins[c] = make([]uint32, binCount)
	}

	bpp := buf.Desc.BytesPerPixel()
	stride := buf.Desc.Width * bpp

	for y := roiY; y < roiY+roiH; y++ {
		for x := roiX; x < roiX+roiW; x++ {
			base := y*stride + x*bpp
			for c := 0; c < channels; c++ {
				v := readChannel(buf, base, c)
				if math.IsNaN(float64(v)) {
					v = 0
				}
				bin := clampBin(int(v*float32(binCount)), binCount)
				h.Bins[c][bin]++
				if h.Bins[c][bin] > h.Max[c] {
					h.Max[c] = h.Bins[c][bin]
				}
			}
		}
	}
	return h
}

func clampBin(bin, binCount int) int {
	if bin < 0 {
		return 0
	}
	if bin >= binCount {
		return binCount - 1
	}
	return bin
}

// Waveform is a fixed-size column histogram of the final node's output,
// one of three (R,G,B) counts per (x, y) cell, scaled for display the way
// a preview pipe scales its waveform against the full image's dimensions.
type Waveform struct {
	Width, Height int
	// Cells holds a scaled 0-255 intensity per channel per cell; zero
	// means "no pixels landed here".
	Cells [][3]uint8
}

// NewWaveform bins buf's RGB channels (assumed channels 0,1,2 of a 4-
// channel buffer) into a width x height grid: each image column maps
// proportionally to one output column; within a column, a pixel's
// luma-quantized value selects the output row ("1.0 is at 8/9 of the
// height"). previewArea/imageArea is the scale factor that keeps a
// downsampled preview's waveform reading at roughly the same visual
// density as the full image would.
func NewWaveform(buf *pixelpipe.HostBuffer, roiW, roiH, width, height int, previewArea, imageArea float64) Waveform {
	w := Waveform{Width: width, Height: height, Cells: make([][3]uint8, width*height)}
	if width == 0 || roiW == 0 {
		return w
	}

	bpp := buf.Desc.BytesPerPixel()
	stride := buf.Desc.Width * bpp

	counts := make([][3]uint32, width*height)
	binWidth := float64(roiW) / float64(width)
	rowHeight := float64(height - 1)

	for y := 0; y < roiH; y++ {
		for x := 0; x < roiW; x++ {
			outX := int(float64(x) / binWidth)
			if outX >= width {
				outX = width - 1
			}
			base := y*stride + x*bpp
			for k := 0; k < 3; k++ {
				v := readChannel(buf, base, k)
				if math.IsNaN(float64(v)) {
					v = 0
				}
				frac := clamp01(1.0 - (8.0/9.0)*float64(v))
				outY := int(frac * rowHeight)
				counts[outY*width+outX][k]++
			}
		}
	}

	scale := float32(0.5 * 1e6 / (float64(roiH) * float64(roiW)) * (float64(width*height) / (350.0 * 233.0)))
	if imageArea > 0 {
		scale *= float32(previewArea / imageArea)
	}
	for i, c := range counts {
		for k := 0; k < 3; k++ {
			if c[k] == 0 {
				continue
			}
			w.Cells[i][k] = clampU8(float32(c[k])*scale, 5, 255)
		}
	}
	return w
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampU8(v, lo, hi float32) uint8 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return uint8(v)
}
