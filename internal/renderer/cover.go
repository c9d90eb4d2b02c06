package renderer

import (
	"image"
	"math"
)

// Rect is a destination rectangle in surface coordinates. X and Y may be
// negative when the image overflows the surface.
type Rect struct {
	X, Y float64
	W, H float64
}

// Image rounds r to pixel coordinates.
func (r Rect) Image() image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.W)),
		int(math.Round(r.Y+r.H)),
	)
}

// CoverFit scales an iw x ih image to cover a cw x ch surface, preserving the
// aspect ratio and centering the overflow on the cropped axis.
func CoverFit(iw, ih, cw, ch float64) Rect {
	if iw <= 0 || ih <= 0 || cw <= 0 || ch <= 0 {
		return Rect{W: math.Max(cw, 0), H: math.Max(ch, 0)}
	}

	imageAspect := iw / ih
	surfaceAspect := cw / ch

	if imageAspect > surfaceAspect {
		// Wider than the surface: fill the height, crop the sides.
		dh := ch
		dw := iw * (ch / ih)
		return Rect{X: (cw - dw) / 2, Y: 0, W: dw, H: dh}
	}
	// Taller (or equal): fill the width, crop top and bottom.
	dw := cw
	dh := ih * (cw / iw)
	return Rect{X: 0, Y: (ch - dh) / 2, W: dw, H: dh}
}
