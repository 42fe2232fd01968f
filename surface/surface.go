// Package surface defines the 2D drawing target the renderer issues commands
// against, with a raster implementation and a recording one.
package surface

import (
	"image"
	"image/color"
)

// Surface is the subset of a canvas 2D context the renderer needs.
// Implementations are not required to be safe for concurrent use.
type Surface interface {
	Width() int
	Height() int

	// Clear wipes every pixel regardless of the current transform.
	Clear()

	// Push saves the transform state; Pop restores the last saved one.
	Push()
	Pop()
	Translate(x, y float64)
	Rotate(angle float64)

	// DrawImage draws img with its top-left corner at (x, y) in the
	// current coordinate system.
	DrawImage(img image.Image, x, y float64)

	MoveTo(x, y float64)
	LineTo(x, y float64)
	Stroke()

	SetStrokeColor(c color.Color)
	SetLineWidth(w float64)
}
