// Package lua implements module.Module as an in-process turtle-graphics
// interpreter on gopher-lua.
//
// Scripts create turtles and move them; every move with the pen down leaves
// a line behind:
//
//	local t = turtle.new()
//	for i = 1, 4 do
//	    t:forward(100):left(90)
//	end
//
// Each frame holds one image per visible turtle and one line per segment
// drawn, in reverse creation order.
package lua

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caffeineduck/kame/module"
	"github.com/caffeineduck/kame/visual"
	glua "github.com/yuin/gopher-lua"
)

const (
	DefaultInterval = time.Second
	DefaultImage    = "turtle.png"

	turtleTypeName = "turtle"
)

type turtle struct {
	x, y      float64
	direction float64 // degrees
	visible   bool
	penDown   bool
}

// Module is a Lua turtle interpreter. State persists across Exec calls.
type Module struct {
	interval time.Duration
	image    string
	output   io.Writer

	mu      sync.Mutex
	L       *glua.LState
	turtles []*turtle
	lines   []visual.Line
	closed  bool

	running atomic.Bool
	changed chan struct{}
	done    chan struct{}
}

// Option configures a Module.
type Option func(*Module)

// WithInterval sets how often Run pushes a frame. Default is one second.
func WithInterval(d time.Duration) Option {
	return func(m *Module) {
		m.interval = d
	}
}

// WithImage sets the asset name used for turtles.
func WithImage(name string) Option {
	return func(m *Module) {
		m.image = name
	}
}

// WithOutput sets where Lua print writes. Default is stdout.
func WithOutput(w io.Writer) Option {
	return func(m *Module) {
		m.output = w
	}
}

// New returns a Module with a fresh Lua state.
func New(opts ...Option) *Module {
	m := &Module{
		interval: DefaultInterval,
		image:    DefaultImage,
		output:   os.Stdout,
		changed:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.L = newState()
	m.registerAPI()
	return m
}

func newState() *glua.LState {
	L := glua.NewState(glua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open glua.LGFunction
	}{
		{glua.BaseLibName, glua.OpenBase},
		{glua.TabLibName, glua.OpenTable},
		{glua.StringLibName, glua.OpenString},
		{glua.MathLibName, glua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(glua.LString(lib.name))
		L.Call(1, 0)
	}
	// Scripts get no filesystem access.
	for _, name := range []string{"dofile", "loadfile", "require", "module"} {
		L.SetGlobal(name, glua.LNil)
	}
	return L
}

// Exec runs code in the module's Lua state. Lua errors are returned as
// *module.CallError; changes made before the error are kept.
func (m *Module) Exec(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return module.ErrClosed
	}

	m.L.SetContext(ctx)
	defer m.L.RemoveContext()

	fn, err := m.L.LoadString(code)
	if err != nil {
		return &module.CallError{Op: "exec", Err: err}
	}
	m.L.Push(fn)
	if err := m.L.PCall(0, 0, nil); err != nil {
		m.signal()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &module.CallError{Op: "exec", Err: ctxErr}
		}
		return &module.CallError{Op: "exec", Err: err}
	}
	m.signal()
	return nil
}

func (m *Module) signal() {
	select {
	case m.changed <- struct{}{}:
	default:
	}
}

// Run pushes a frame immediately, then on every tick and after every Exec,
// until ctx is done or the module is closed.
func (m *Module) Run(ctx context.Context, fn module.RenderFunc) error {
	if !m.running.CompareAndSwap(false, true) {
		return module.ErrAlreadyRunning
	}
	defer m.running.Store(false)

	if m.isClosed() {
		return module.ErrClosed
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	fn(m.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.done:
			return nil
		case <-ticker.C:
		case <-m.changed:
		}
		fn(m.Snapshot())
	}
}

func (m *Module) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Snapshot returns the current frame: visible turtles, then lines, with
// the whole list reversed.
func (m *Module) Snapshot() []visual.Object {
	m.mu.Lock()
	defer m.mu.Unlock()

	objs := make([]visual.Object, 0, len(m.turtles)+len(m.lines))
	for _, t := range m.turtles {
		if !t.visible {
			continue
		}
		objs = append(objs, visual.Image{
			X:        t.x,
			Y:        t.y,
			Rotation: t.direction * math.Pi / 180,
			Image:    m.image,
		})
	}
	for _, l := range m.lines {
		objs = append(objs, l)
	}
	for i, j := 0, len(objs)-1; i < j; i, j = i+1, j-1 {
		objs[i], objs[j] = objs[j], objs[i]
	}
	return objs
}

// Close releases the Lua state and stops Run.
func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.L.Close()
	return nil
}

func (m *Module) registerAPI() {
	L := m.L

	mt := L.NewTypeMetatable(turtleTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]glua.LGFunction{
		"forward":   m.luaMove(1),
		"back":      m.luaMove(-1),
		"left":      luaTurn(1),
		"right":     luaTurn(-1),
		"hide":      luaSetVisible(false),
		"show":      luaSetVisible(true),
		"pen_up":    luaSetPen(false),
		"pen_down":  luaSetPen(true),
		"x":         luaGetter(func(t *turtle) float64 { return t.x }),
		"y":         luaGetter(func(t *turtle) float64 { return t.y }),
		"direction": luaGetter(func(t *turtle) float64 { return t.direction }),
	}))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *glua.LState) int {
		t := checkTurtle(L)
		L.Push(glua.LString(fmt.Sprintf("turtle(%g, %g, %g)", t.x, t.y, t.direction)))
		return 1
	}))

	api := L.NewTable()
	L.SetField(api, "new", L.NewFunction(func(L *glua.LState) int {
		t := &turtle{visible: true, penDown: true}
		m.turtles = append(m.turtles, t)
		ud := L.NewUserData()
		ud.Value = t
		L.SetMetatable(ud, L.GetTypeMetatable(turtleTypeName))
		L.Push(ud)
		return 1
	}))
	L.SetGlobal(turtleTypeName, api)

	L.SetGlobal("clear", L.NewFunction(func(L *glua.LState) int {
		m.turtles = nil
		m.lines = nil
		return 0
	}))

	L.SetGlobal("print", L.NewFunction(func(L *glua.LState) int {
		n := L.GetTop()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		fmt.Fprintln(m.output, strings.Join(parts, "\t"))
		return 0
	}))
}

func checkTurtle(L *glua.LState) *turtle {
	ud := L.CheckUserData(1)
	t, ok := ud.Value.(*turtle)
	if !ok {
		L.ArgError(1, "turtle expected")
		return nil
	}
	return t
}

// luaMove walks the turtle along its heading, recording a line when the
// pen is down. The heading vector is (cos d, sin d).
func (m *Module) luaMove(sign float64) glua.LGFunction {
	return func(L *glua.LState) int {
		t := checkTurtle(L)
		amount := sign * float64(L.CheckNumber(2))

		rad := t.direction * math.Pi / 180
		x2 := t.x + amount*math.Cos(rad)
		y2 := t.y + amount*math.Sin(rad)
		if t.penDown {
			m.lines = append(m.lines, visual.Line{X1: t.x, Y1: t.y, X2: x2, Y2: y2})
		}
		t.x, t.y = x2, y2

		L.Push(L.Get(1))
		return 1
	}
}

func luaTurn(sign float64) glua.LGFunction {
	return func(L *glua.LState) int {
		t := checkTurtle(L)
		t.direction += sign * float64(L.CheckNumber(2))
		L.Push(L.Get(1))
		return 1
	}
}

func luaSetVisible(v bool) glua.LGFunction {
	return func(L *glua.LState) int {
		checkTurtle(L).visible = v
		L.Push(L.Get(1))
		return 1
	}
}

func luaSetPen(down bool) glua.LGFunction {
	return func(L *glua.LState) int {
		checkTurtle(L).penDown = down
		L.Push(L.Get(1))
		return 1
	}
}

func luaGetter(get func(*turtle) float64) glua.LGFunction {
	return func(L *glua.LState) int {
		L.Push(glua.LNumber(get(checkTurtle(L))))
		return 1
	}
}
