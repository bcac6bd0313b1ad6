package pixelpipe

import (
	"fmt"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// ToImage converts a "gamma" (8-bit, 4-channel) host buffer into a
// standard image.NRGBA, for control-surface callers that want a plain
// Go image rather than a raw byte buffer (display widgets, PNG/JPEG
// encoders).
func ToImage(buf *HostBuffer) (*image.NRGBA, error) {
	if buf.Desc.Datatype != Uint8 {
		return nil, fmt.Errorf("%w: ToImage requires an 8-bit buffer, got %s", ErrInvariant, buf.Desc.Datatype)
	}
	if buf.Desc.Channels != 4 {
		return nil, fmt.Errorf("%w: ToImage requires a 4-channel buffer, got %d channels", ErrInvariant, buf.Desc.Channels)
	}

	img := image.NewNRGBA(image.Rect(0, 0, buf.Desc.Width, buf.Desc.Height))
	stride := buf.Desc.Width * 4
	for y := 0; y < buf.Desc.Height; y++ {
		src := buf.Data[y*stride : y*stride+stride]
		dst := img.Pix[y*img.Stride : y*img.Stride+stride]
		copy(dst, src)
	}
	return img, nil
}

// FromImage converts a standard Go image into an 8-bit, 4-channel
// "gamma"-format host buffer (non-premultiplied RGBA, with no
// linearization or other colorspace conversion), resampling to (width, height) with a high-quality
// resampler when the source size differs. Used both at pipeline input
// boundaries (loading a non-raw preview source) and by test fixtures
// that build synthetic images.
func FromImage(src image.Image, width, height int) *HostBuffer {
	desc := BufferDescriptor{Width: width, Height: height, Channels: 4, Datatype: Uint8}
	out := &HostBuffer{Desc: desc, Data: make([]byte, desc.ByteSize())}

	dst := &image.NRGBA{
		Pix:    out.Data,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}

	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		xdraw.Draw(dst, dst.Rect, src, src.Bounds().Min, xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Rect, src, src.Bounds(), xdraw.Src, nil)
	}
	return out
}

// CheckerboardFixture builds a synthetic checkerboard test image:
// alternating cells of black and white sized cell pixels square, useful
// for exercising ROI cropping/scaling and distortion operators whose
// correctness is easiest to eyeball on a regular grid.
func CheckerboardFixture(width, height, cell int) *HostBuffer {
	desc := BufferDescriptor{Width: width, Height: height, Channels: 4, Datatype: Uint8}
	out := &HostBuffer{Desc: desc, Data: make([]byte, desc.ByteSize())}
	stride := width * 4
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			on := ((x/cell)+(y/cell))%2 == 0
			v := byte(0)
			if on {
				v = 255
			}
			i := y*stride + x*4
			out.Data[i], out.Data[i+1], out.Data[i+2], out.Data[i+3] = v, v, v, 255
		}
	}
	return out
}

// SwatchFixture builds a uniform solid-color test image, useful for
// color-picker and histogram tests where the expected statistics are
// trivially known in advance.
func SwatchFixture(width, height int, c color.NRGBA) *HostBuffer {
	desc := BufferDescriptor{Width: width, Height: height, Channels: 4, Datatype: Uint8}
	out := &HostBuffer{Desc: desc, Data: make([]byte, desc.ByteSize())}
	stride := width * 4
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*stride + x*4
			out.Data[i], out.Data[i+1], out.Data[i+2], out.Data[i+3] = c.R, c.G, c.B, c.A
		}
	}
	return out
}
