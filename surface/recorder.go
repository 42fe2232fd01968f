package surface

import (
	"image"
	"image/color"
	"sync"
)

// Op is one recorded Surface call.
type Op struct {
	Name string
	Args []float64
	// Image is set for DrawImage calls.
	Image image.Image
}

// Recorder is a Surface that records calls instead of drawing. It is safe
// for concurrent use so tests can inspect it while a render is running.
type Recorder struct {
	width  int
	height int

	mu  sync.Mutex
	ops []Op
}

// NewRecorder returns a Recorder reporting the given size.
func NewRecorder(width, height int) *Recorder {
	return &Recorder{width: width, height: height}
}

func (r *Recorder) record(op Op) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

func (r *Recorder) Width() int  { return r.width }
func (r *Recorder) Height() int { return r.height }

func (r *Recorder) Clear() { r.record(Op{Name: "clear"}) }
func (r *Recorder) Push()  { r.record(Op{Name: "push"}) }
func (r *Recorder) Pop()   { r.record(Op{Name: "pop"}) }

func (r *Recorder) Translate(x, y float64) {
	r.record(Op{Name: "translate", Args: []float64{x, y}})
}

func (r *Recorder) Rotate(angle float64) {
	r.record(Op{Name: "rotate", Args: []float64{angle}})
}

func (r *Recorder) DrawImage(img image.Image, x, y float64) {
	r.record(Op{Name: "drawImage", Args: []float64{x, y}, Image: img})
}

func (r *Recorder) MoveTo(x, y float64) {
	r.record(Op{Name: "moveTo", Args: []float64{x, y}})
}

func (r *Recorder) LineTo(x, y float64) {
	r.record(Op{Name: "lineTo", Args: []float64{x, y}})
}

func (r *Recorder) Stroke() { r.record(Op{Name: "stroke"}) }

func (r *Recorder) SetStrokeColor(c color.Color) {
	cr, cg, cb, ca := c.RGBA()
	r.record(Op{Name: "strokeColor", Args: []float64{float64(cr), float64(cg), float64(cb), float64(ca)}})
}

func (r *Recorder) SetLineWidth(w float64) {
	r.record(Op{Name: "lineWidth", Args: []float64{w}})
}

// Ops returns a copy of the recorded calls.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Op, len(r.ops))
	copy(out, r.ops)
	return out
}

// Names returns just the call names, in order.
func (r *Recorder) Names() []string {
	ops := r.Ops()
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	return names
}

// Count returns how many calls named name were recorded.
func (r *Recorder) Count(name string) int {
	n := 0
	for _, op := range r.Ops() {
		if op.Name == name {
			n++
		}
	}
	return n
}

// Reset drops all recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.ops = nil
	r.mu.Unlock()
}
