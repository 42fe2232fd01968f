// Package bridge connects a loaded module to a renderer and a surface.
//
// The bridge starts the module's run loop with a callback that renders each
// frame, and exposes Submit as the exec trigger for whatever front end is in
// use (REPL line, HTTP request, window prompt). Module and render failures
// are logged, never re-raised.
package bridge

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/caffeineduck/kame/module"
	"github.com/caffeineduck/kame/render"
	"github.com/caffeineduck/kame/surface"
	"github.com/caffeineduck/kame/visual"
)

// Roles of the host elements a front end provides.
const (
	DisplayID = "display"
	CodeID    = "code"
	ExecID    = "exec"
)

var (
	ErrAlreadyStarted = errors.New("bridge already started")
	ErrClosed         = errors.New("bridge closed")
)

// Bridge owns the module handle for its lifetime.
type Bridge struct {
	mod      module.Module
	renderer *render.Renderer
	surface  surface.Surface

	logger     *log.Logger
	debug      bool
	onRendered func(objs []visual.Object, err error)

	mu         sync.Mutex
	runCancel  context.CancelFunc
	passCtx    context.Context
	stopPasses context.CancelFunc
	runDone    chan struct{}
	closed     bool
	pass       int64
	passCancel context.CancelFunc
	current    chan struct{}
	submits    int64
	settledGen int64
	notify     chan struct{}

	passes sync.WaitGroup
	frames atomic.Int64
}

type Option func(*Bridge)

// WithLogger sets the logger failures are reported to.
func WithLogger(l *log.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// WithDebug logs superseded passes and frame arrivals.
func WithDebug(enabled bool) Option {
	return func(b *Bridge) {
		b.debug = enabled
	}
}

// OnRendered registers fn to run after every pass that was not superseded,
// with the pass's render error.
func OnRendered(fn func(objs []visual.Object, err error)) Option {
	return func(b *Bridge) {
		b.onRendered = fn
	}
}

// New returns a Bridge for an already loaded module.
func New(mod module.Module, r *render.Renderer, s surface.Surface, opts ...Option) *Bridge {
	b := &Bridge{
		mod:      mod,
		renderer: r,
		surface:  s,
		notify:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = log.New(io.Discard, "", 0)
	}
	b.runCancel = func() {}
	b.passCtx, b.stopPasses = context.WithCancel(context.Background())
	return b
}

// Start runs the module's run loop on its own goroutine with the bridge's
// render callback. The loop stops when ctx is done or Close is called.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.runDone != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.runCancel = cancel
	b.runDone = make(chan struct{})

	go func() {
		defer close(b.runDone)
		if err := b.mod.Run(runCtx, b.onFrame); err != nil {
			b.logger.Printf("run failed: %v", err)
		}
	}()
	return nil
}

// Submit forwards code to the module's exec entry point. A failure is
// logged and also returned for the caller to display.
func (b *Bridge) Submit(ctx context.Context, code string) error {
	b.mu.Lock()
	b.submits++
	b.mu.Unlock()

	if err := b.mod.Exec(ctx, code); err != nil {
		b.logger.Printf("exec failed: %v", err)
		return err
	}
	return nil
}

// onFrame cancels the in-flight pass, if any, and starts a new one.
func (b *Bridge) onFrame(objs []visual.Object) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.passCancel != nil {
		b.passCancel()
	}
	ctx, cancel := context.WithCancel(b.passCtx)
	b.pass++
	id := b.pass
	gen := b.submits
	done := make(chan struct{})
	b.passCancel = cancel
	b.current = done
	b.passes.Add(1)
	b.mu.Unlock()

	if b.debug {
		b.logger.Printf("[DEBUG] bridge: pass %d: %d objects", id, len(objs))
	}

	go func() {
		defer b.passes.Done()
		defer close(done)
		defer cancel()

		err := b.renderer.Render(ctx, b.surface, objs)
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			if b.debug {
				b.logger.Printf("[DEBUG] bridge: pass %d superseded", id)
			}
			return
		}
		if err != nil {
			b.logger.Printf("render: %v", err)
		}
		b.frames.Add(1)

		// Run the hook before WaitRendered callers are released.
		if b.onRendered != nil {
			b.onRendered(objs, err)
		}

		b.mu.Lock()
		if id == b.pass {
			b.passCancel = nil
		}
		if gen > b.settledGen {
			b.settledGen = gen
		}
		close(b.notify)
		b.notify = make(chan struct{})
		b.mu.Unlock()
	}()
}

// Frames returns the number of completed passes. Superseded passes are not
// counted.
func (b *Bridge) Frames() int64 {
	return b.frames.Load()
}

// Wait blocks until the latest render pass has settled.
func (b *Bridge) Wait() {
	for {
		b.mu.Lock()
		ch := b.current
		b.mu.Unlock()
		if ch == nil {
			return
		}
		<-ch

		b.mu.Lock()
		same := b.current == ch
		b.mu.Unlock()
		if same {
			return
		}
	}
}

// WaitRendered blocks until a pass has completed for a frame that arrived
// after the most recent Submit began.
func (b *Bridge) WaitRendered(ctx context.Context) error {
	b.mu.Lock()
	want := b.submits
	b.mu.Unlock()

	for {
		b.mu.Lock()
		if b.frames.Load() > 0 && b.settledGen >= want {
			b.mu.Unlock()
			return nil
		}
		ch := b.notify
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Close stops the module run loop and waits for outstanding passes to
// finish. The module itself is left open; its owner closes it.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.runCancel()
	done := b.runDone
	b.mu.Unlock()

	if done != nil {
		<-done
	}
	b.passes.Wait()
	b.stopPasses()
	return nil
}
