package render

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log"
	"os"
	"sync"

	"github.com/caffeineduck/kame/asset"
	"github.com/caffeineduck/kame/surface"
	"github.com/caffeineduck/kame/visual"
	"golang.org/x/sync/errgroup"
)

// Renderer draws frames onto surfaces. Surface calls are serialized by the
// Renderer, so one Renderer should own all drawing on a surface.
type Renderer struct {
	loader    asset.Loader
	limit     int
	logger    *log.Logger
	debug     bool
	stroke    color.Color
	lineWidth float64

	mu sync.Mutex
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLoader sets the asset loader. The default reads from the working
// directory and caches decoded images.
func WithLoader(l asset.Loader) Option {
	return func(r *Renderer) {
		r.loader = l
	}
}

// WithConcurrency bounds how many image loads run at once. 0 is unbounded.
func WithConcurrency(n int) Option {
	return func(r *Renderer) {
		r.limit = n
	}
}

// WithLogger sets the logger for debug output.
func WithLogger(l *log.Logger) Option {
	return func(r *Renderer) {
		r.logger = l
	}
}

// WithDebug enables per-pass debug lines.
func WithDebug(enabled bool) Option {
	return func(r *Renderer) {
		r.debug = enabled
	}
}

// WithStrokeColor sets the line color applied at the start of each pass.
func WithStrokeColor(c color.Color) Option {
	return func(r *Renderer) {
		r.stroke = c
	}
}

// WithLineWidth sets the line width applied at the start of each pass.
func WithLineWidth(w float64) Option {
	return func(r *Renderer) {
		r.lineWidth = w
	}
}

// New returns a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		stroke:    color.Black,
		lineWidth: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.loader == nil {
		r.loader = asset.NewCachedLoader(asset.NewFSLoader(os.DirFS(".")), 0)
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard, "", 0)
	}
	return r
}

// Render runs one pass of objs over s. See the package documentation for
// ordering and failure semantics.
func (r *Renderer) Render(ctx context.Context, s surface.Surface, objs []visual.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	s.Clear()
	s.SetStrokeColor(r.stroke)
	s.SetLineWidth(r.lineWidth)
	r.mu.Unlock()

	cx, cy := float64(s.Width())/2, float64(s.Height())/2

	var (
		g     errgroup.Group
		errMu sync.Mutex
		errs  []error
	)
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}

	images := 0
	for _, obj := range objs {
		switch o := obj.(type) {
		case visual.Line:
			r.drawLine(s, cx, cy, o)
		case visual.Image:
			images++
			g.Go(func() error {
				if err := r.drawImage(ctx, s, cx, cy, o); err != nil {
					errMu.Lock()
					errs = append(errs, err)
					errMu.Unlock()
				}
				return nil
			})
		}
	}
	g.Wait()

	if r.debug {
		r.logger.Printf("[DEBUG] render pass: %d objects, %d images, %d failed", len(objs), images, len(errs))
	}

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Renderer) drawLine(s surface.Surface, cx, cy float64, l visual.Line) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.Push()
	s.Translate(cx, cy)
	s.MoveTo(l.X1, l.Y1)
	s.LineTo(l.X2, l.Y2)
	s.Stroke()
	s.Pop()
}

func (r *Renderer) drawImage(ctx context.Context, s surface.Surface, cx, cy float64, o visual.Image) error {
	p, err := asset.Path(o.Image)
	if err != nil {
		return &asset.LoadError{Path: o.Image, Err: err}
	}

	img, err := r.loader.Load(ctx, p)
	if err != nil {
		var loadErr *asset.LoadError
		if errors.As(err, &loadErr) {
			return err
		}
		return &asset.LoadError{Path: p, Err: err}
	}
	if img == nil {
		return &asset.LoadError{Path: p, Err: fmt.Errorf("loader returned no image")}
	}

	b := img.Bounds()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Checked under the lock: a newer pass may have cleared the surface
	// while this one waited.
	if ctx.Err() != nil {
		return nil
	}

	s.Push()
	s.Translate(cx, cy)
	s.Translate(o.X, o.Y)
	s.Rotate(-o.Rotation)
	s.DrawImage(img, -float64(b.Dx())/2, -float64(b.Dy())/2)
	s.Pop()
	return nil
}
