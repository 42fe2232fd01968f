// Package ebitensurface implements surface.Surface on an offscreen ebiten
// image, for showing render passes in a window.
package ebitensurface

import (
	"image"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	lru "github.com/hashicorp/golang-lru/v2"
)

const textureCacheSize = 64

type point struct {
	x, y float32
}

// Surface draws onto an offscreen ebiten image. Call Present from the
// game's Draw to copy it to the screen.
type Surface struct {
	// mu guards target against Present running during a pass.
	mu     sync.Mutex
	target *ebiten.Image

	geom  ebiten.GeoM
	stack []ebiten.GeoM

	// path holds subpaths in device coordinates, transformed when the
	// point was added like a canvas 2D context does.
	path [][]point

	stroke    color.Color
	lineWidth float32

	textures *lru.Cache[image.Image, *ebiten.Image]
}

// New returns a w x h surface.
func New(w, h int) *Surface {
	textures, _ := lru.New[image.Image, *ebiten.Image](textureCacheSize)
	return &Surface{
		target:    ebiten.NewImage(w, h),
		stroke:    color.Black,
		lineWidth: 1,
		textures:  textures,
	}
}

func (s *Surface) Width() int  { return s.target.Bounds().Dx() }
func (s *Surface) Height() int { return s.target.Bounds().Dy() }

func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target.Clear()
	s.path = nil
}

func (s *Surface) Push() {
	s.stack = append(s.stack, s.geom)
}

func (s *Surface) Pop() {
	if len(s.stack) == 0 {
		return
	}
	s.geom = s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
}

// Translate and Rotate post-multiply the current matrix, so later calls
// apply first to drawn geometry.
func (s *Surface) Translate(x, y float64) {
	var t ebiten.GeoM
	t.Translate(x, y)
	t.Concat(s.geom)
	s.geom = t
}

func (s *Surface) Rotate(angle float64) {
	var r ebiten.GeoM
	r.Rotate(angle)
	r.Concat(s.geom)
	s.geom = r
}

func (s *Surface) DrawImage(img image.Image, x, y float64) {
	tex, ok := s.textures.Get(img)
	if !ok {
		tex = ebiten.NewImageFromImage(img)
		s.textures.Add(img, tex)
	}

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(x, y)
	op.GeoM.Concat(s.geom)
	op.Filter = ebiten.FilterLinear

	s.mu.Lock()
	defer s.mu.Unlock()
	s.target.DrawImage(tex, op)
}

func (s *Surface) apply(x, y float64) point {
	px, py := s.geom.Apply(x, y)
	return point{float32(px), float32(py)}
}

func (s *Surface) MoveTo(x, y float64) {
	s.path = append(s.path, []point{s.apply(x, y)})
}

func (s *Surface) LineTo(x, y float64) {
	if len(s.path) == 0 {
		s.MoveTo(x, y)
		return
	}
	last := len(s.path) - 1
	s.path[last] = append(s.path[last], s.apply(x, y))
}

// Stroke draws the accumulated path and then discards it.
func (s *Surface) Stroke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.path {
		for i := 1; i < len(sub); i++ {
			vector.StrokeLine(s.target, sub[i-1].x, sub[i-1].y, sub[i].x, sub[i].y, s.lineWidth, s.stroke, true)
		}
	}
	s.path = nil
}

func (s *Surface) SetStrokeColor(c color.Color) { s.stroke = c }
func (s *Surface) SetLineWidth(w float64)       { s.lineWidth = float32(w) }

// Present copies the offscreen image to screen, scaled to fit.
func (s *Surface) Present(screen *ebiten.Image) {
	op := &ebiten.DrawImageOptions{}
	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	if sw != s.Width() || sh != s.Height() {
		op.GeoM.Scale(float64(sw)/float64(s.Width()), float64(sh)/float64(s.Height()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	screen.DrawImage(s.target, op)
}
