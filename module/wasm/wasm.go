package wasm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caffeineduck/kame/hostfunc"
	"github.com/caffeineduck/kame/module"
	"github.com/caffeineduck/kame/visual"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"
)

var ErrStartTimeout = errors.New("module start timeout")

// Module is a running guest. It implements module.Module.
type Module struct {
	cfg      moduleConfig
	registry *hostfunc.Registry

	stdin       *io.PipeWriter
	stdinReader *io.PipeReader
	protocol    *guestProtocol
	runCtx      context.Context
	cancel      context.CancelFunc

	frames  chan []visual.Object
	exited  chan struct{}
	exitErr error
	done    chan struct{}

	release func() // set once a Runtime tracks the module

	running atomic.Bool
	mu      sync.Mutex
	execMu  sync.Mutex
	closed  bool
}

var _ module.Module = (*Module)(nil)

// Load instantiates guest and waits for its ready signal.
func (r *Runtime) Load(ctx context.Context, guest Guest, opts ...ModuleOption) (*Module, error) {
	cfg := defaultModuleConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.env["KAME_GUEST"] = "1"

	compiled, err := r.compile(ctx, guest)
	if err != nil {
		return nil, err
	}

	registry := hostfunc.NewRegistry()
	registry.Merge(hostfunc.Builtins(cfg.logger))
	registry.Merge(r.registry)
	registry.Merge(cfg.registry)

	m := newModule(cfg, registry)

	modConfig := wazero.NewModuleConfig().
		WithStdout(cfg.output).
		WithStderr(m.protocol).
		WithStdin(m.stdinReader).
		WithArgs(guest.Args()...).
		WithName("")

	for k, v := range cfg.env {
		modConfig = modConfig.WithEnv(k, v)
	}

	go func() {
		defer close(m.exited)
		mod, err := r.wz.InstantiateModule(m.runCtx, compiled, modConfig)
		if mod != nil {
			mod.Close(context.Background())
		}
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
			err = nil
		}
		m.exitErr = err
	}()

	startCtx := ctx
	if cfg.startTimeout > 0 {
		var startCancel context.CancelFunc
		startCtx, startCancel = context.WithTimeout(ctx, cfg.startTimeout)
		defer startCancel()
	}

	select {
	case <-m.protocol.Ready():
		if err := r.track(m); err != nil {
			m.Close()
			return nil, err
		}
		m.protocol.debugf("%s ready", guest.Name())
		return m, nil
	case <-m.exited:
		m.Close()
		if m.exitErr != nil {
			return nil, fmt.Errorf("start module: %w", m.exitErr)
		}
		return nil, errors.New("start module: exited before ready")
	case <-startCtx.Done():
		m.Close()
		if errors.Is(startCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrStartTimeout
		}
		return nil, startCtx.Err()
	}
}

func newModule(cfg moduleConfig, registry *hostfunc.Registry) *Module {
	runCtx, cancel := context.WithCancel(context.Background())
	m := &Module{
		cfg:      cfg,
		registry: registry,
		runCtx:   runCtx,
		cancel:   cancel,
		frames:   make(chan []visual.Object, 1),
		exited:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.stdinReader, m.stdin = io.Pipe()
	var debug *log.Logger
	if cfg.debug {
		debug = cfg.logger
	}
	m.protocol = newGuestProtocol(runCtx, registry, m.stdin, cfg.output, debug, m.deliver)
	return m
}

// deliver keeps only the newest undelivered frame.
func (m *Module) deliver(objs []visual.Object) {
	for {
		select {
		case m.frames <- objs:
			return
		default:
		}
		select {
		case <-m.frames:
		default:
		}
	}
}

// Run forwards frames from the guest to fn until ctx is done, the module is
// closed, or the guest exits. A frame produced before Run is delivered
// first.
func (m *Module) Run(ctx context.Context, fn module.RenderFunc) error {
	if !m.running.CompareAndSwap(false, true) {
		return module.ErrAlreadyRunning
	}
	defer m.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.done:
			return nil
		case objs := <-m.frames:
			fn(objs)
		case <-m.exited:
			if m.exitErr != nil {
				return &module.CallError{Op: "run", Err: m.exitErr}
			}
			return nil
		}
	}
}

// Exec sends code to the guest and waits for it to finish.
func (m *Module) Exec(ctx context.Context, code string) error {
	m.execMu.Lock()
	defer m.execMu.Unlock()

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return module.ErrClosed
	}

	if m.cfg.execTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.execTimeout)
		defer cancel()
	}

	m.protocol.ResetExec()

	cmd, err := json.Marshal(execCommand{Type: "exec", Code: code})
	if err != nil {
		return &module.CallError{Op: "exec", Err: err}
	}
	if err := m.protocol.send(append(cmd, '\n')); err != nil {
		return &module.CallError{Op: "exec", Err: fmt.Errorf("write command: %w", err)}
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &module.CallError{Op: "exec", Err: fmt.Errorf("timeout after %v: %w", m.cfg.execTimeout, ctx.Err())}
		}
		return &module.CallError{Op: "exec", Err: ctx.Err()}
	case execErr := <-m.protocol.Done():
		if execErr != nil {
			return &module.CallError{Op: "exec", Err: execErr}
		}
		return nil
	case <-m.exited:
		if m.exitErr != nil {
			return &module.CallError{Op: "exec", Err: m.exitErr}
		}
		return &module.CallError{Op: "exec", Err: errors.New("module exited")}
	}
}

// Close stops the guest. Safe to call more than once.
func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	if m.release != nil {
		m.release()
	}

	// Closing stdin gives the guest EOF; cancelling stops it if it is busy.
	m.stdinReader.Close()
	m.stdin.Close()
	m.cancel()

	select {
	case <-m.exited:
	case <-time.After(time.Second):
	}
	return nil
}
