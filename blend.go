package pixelpipe

import (
	"encoding/binary"
	"math"
)

// blendLerp linearly interpolates between the node's input and its
// freshly computed output under a per-pixel mask weight in [0,1]: the
// blend step that merges an operator's output with its input under a
// mask. Unlike a premultiplied-uint8 Porter-Duff blend, this operates
// directly on the pipeline's native float32 channel data and a separate
// single-channel mask, matching a float-domain blend model rather than
// 2D-compositing's alpha-over model.
func blendLerp(in, out, weight float32) float32 {
	return in + (out-in)*clamp01(weight)
}

// clamp01 clamps x to [0, 1].
func clamp01(x float32) float32 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

// blendBuffers blends src (the node's freshly computed output) over base
// (its input) into dst, per channel, weighted by a single-channel mask
// the same pixel count as the ROI. A nil mask is treated as a uniform
// weight of 1 (no blending: dst == src).
//
// dst, src, and base must all describe the same channel count, pixel
// count, and Float32 datatype; callers are expected to have already
// matched descriptors via Operator.OutputFormat.
func blendBuffers(dst, src, base *HostBuffer, mask []float32) {
	channels := dst.Desc.Channels
	pixels := dst.Desc.Width * dst.Desc.Height

	for px := 0; px < pixels; px++ {
		w := float32(1)
		if mask != nil {
			w = mask[px]
		}
		for c := 0; c < channels; c++ {
			i := (px*channels + c) * 4
			b := readFloat32(base.Data[i : i+4])
			s := readFloat32(src.Data[i : i+4])
			writeFloat32(dst.Data[i:i+4], blendLerp(b, s, w))
		}
	}
}

// readFloat32 decodes a little-endian packed float32 from b.
func readFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// writeFloat32 encodes v as a little-endian packed float32 into b.
func writeFloat32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}
