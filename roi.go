package pixelpipe

import "fmt"

// ROI is a rectangle in integer pixels plus the scale factor relating it
// to the un-scaled input canvas.
//
// Invariants: Width, Height >= 1; X+Width <= SourceWidth/Scale up to
// clamping performed by operators (see Clamp).
type ROI struct {
	X, Y          int
	Width, Height int
	Scale         float64 // (0, 1]
}

// Validate checks ROI's own invariants (not against a source size).
func (r ROI) Validate() error {
	if r.Width < 1 || r.Height < 1 {
		return fmt.Errorf("%w: roi dimensions must be >= 1, got %dx%d", ErrInvariant, r.Width, r.Height)
	}
	if r.Scale <= 0 || r.Scale > 1 {
		return fmt.Errorf("%w: roi scale must be in (0,1], got %v", ErrInvariant, r.Scale)
	}
	return nil
}

// Clamp restricts r to lie within a source canvas of sourceW x sourceH
// (in unscaled pixels), accounting for r.Scale.
func (r ROI) Clamp(sourceW, sourceH int) ROI {
	maxW := int(float64(sourceW) * r.Scale)
	maxH := int(float64(sourceH) * r.Scale)

	out := r
	if out.X < 0 {
		out.Width += out.X
		out.X = 0
	}
	if out.Y < 0 {
		out.Height += out.Y
		out.Y = 0
	}
	if out.X+out.Width > maxW {
		out.Width = maxW - out.X
	}
	if out.Y+out.Height > maxH {
		out.Height = maxH - out.Y
	}
	if out.Width < 1 {
		out.Width = 1
	}
	if out.Height < 1 {
		out.Height = 1
	}
	return out
}

// Identity reports whether r covers (0,0,w,h) at scale 1 exactly — the
// fast path that lets the source node copy its input into the cache
// without cropping or resampling.
func (r ROI) Identity(w, h int) bool {
	return r.X == 0 && r.Y == 0 && r.Width == w && r.Height == h && r.Scale == 1
}

// Contains reports whether r fully contains other (same scale assumed).
func (r ROI) Contains(other ROI) bool {
	return other.X >= r.X && other.Y >= r.Y &&
		other.X+other.Width <= r.X+r.Width &&
		other.Y+other.Height <= r.Y+r.Height
}

// Area returns Width*Height.
func (r ROI) Area() int {
	return r.Width * r.Height
}

// quantized rounds scale to a grid fine enough to suppress floating-point
// reformatting noise, so two ROIs that differ by less than one ulp of
// practical significance still hash identically.
func (r ROI) quantized() ROI {
	const grid = 1 << 16 // ~15 micro-units of scale resolution
	q := r
	q.Scale = float64(int(r.Scale*grid+0.5)) / grid
	return q
}
