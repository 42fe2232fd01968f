package surface

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"sync"

	"github.com/fogleman/gg"
)

// Canvas is an offscreen raster Surface backed by a gg context. Its methods
// are safe to call concurrently, so a snapshot can be taken during a pass.
type Canvas struct {
	mu         sync.Mutex
	dc         *gg.Context
	background color.Color
	stroke     color.Color
}

// CanvasOption configures a Canvas.
type CanvasOption func(*Canvas)

// WithBackground sets the color Clear fills with. Default is transparent.
func WithBackground(c color.Color) CanvasOption {
	return func(cv *Canvas) {
		cv.background = c
	}
}

// NewCanvas returns a w x h canvas, cleared to the background color.
func NewCanvas(w, h int, opts ...CanvasOption) *Canvas {
	cv := &Canvas{
		dc:         gg.NewContext(w, h),
		background: color.Transparent,
		stroke:     color.Black,
	}
	for _, opt := range opts {
		opt(cv)
	}
	cv.dc.SetLineWidth(1)
	cv.Clear()
	return cv
}

func (c *Canvas) Width() int  { return c.dc.Width() }
func (c *Canvas) Height() int { return c.dc.Height() }

func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dc.SetColor(c.background)
	c.dc.Clear()
	c.dc.ClearPath()
	c.dc.SetColor(c.stroke)
}

func (c *Canvas) Push() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dc.Push()
}

func (c *Canvas) Pop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dc.Pop()
}

func (c *Canvas) Translate(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dc.Translate(x, y)
}

func (c *Canvas) Rotate(angle float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dc.Rotate(angle)
}

// DrawImage honors fractional offsets by folding them into the transform,
// since gg only places images on integer coordinates.
func (c *Canvas) DrawImage(img image.Image, x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dc.Push()
	c.dc.Translate(x, y)
	c.dc.DrawImage(img, 0, 0)
	c.dc.Pop()
}

func (c *Canvas) MoveTo(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dc.MoveTo(x, y)
}

func (c *Canvas) LineTo(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dc.LineTo(x, y)
}

func (c *Canvas) Stroke() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dc.SetColor(c.stroke)
	c.dc.Stroke()
}

func (c *Canvas) SetStrokeColor(col color.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stroke = col
	c.dc.SetColor(col)
}

func (c *Canvas) SetLineWidth(w float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dc.SetLineWidth(w)
}

// Image returns the backing image. It is not a copy and is only safe to
// read while nothing draws.
func (c *Canvas) Image() image.Image {
	return c.dc.Image()
}

// Snapshot returns a copy of the current pixels.
func (c *Canvas) Snapshot() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	src := c.dc.Image()
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

// EncodePNG writes the current pixels as PNG.
func (c *Canvas) EncodePNG(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// SavePNG writes the current pixels to path.
func (c *Canvas) SavePNG(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.dc.SavePNG(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
