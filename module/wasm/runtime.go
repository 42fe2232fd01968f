package wasm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/caffeineduck/kame/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"golang.org/x/sync/singleflight"
)

var ErrRuntimeClosed = errors.New("runtime closed")

// Runtime hosts guests on one wazero runtime. Compiled guests are shared by
// content, so loading the same binary twice compiles it once, and a binary
// rebuilt under the same name is compiled again.
type Runtime struct {
	wz       wazero.Runtime
	cache    wazero.CompilationCache
	registry *hostfunc.Registry

	compiles singleflight.Group

	mu       sync.Mutex
	closed   bool
	compiled map[string]wazero.CompiledModule // by binary digest
	modules  map[*Module]struct{}
}

// NewRuntime creates a Runtime. Functions in registry are available to
// every guest it loads; a nil registry means no extra functions.
func NewRuntime(registry *hostfunc.Registry, opts ...RuntimeOption) (*Runtime, error) {
	cfg := defaultRuntimeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if registry == nil {
		registry = hostfunc.NewRegistry()
	}

	ctx := context.Background()
	wzConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)

	var cache wazero.CompilationCache
	if cfg.cacheDir != "" {
		var err error
		if cache, err = wazero.NewCompilationCacheWithDir(cfg.cacheDir); err != nil {
			return nil, fmt.Errorf("open compilation cache %s: %w", cfg.cacheDir, err)
		}
		wzConfig = wzConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		wzConfig = wzConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	r := &Runtime{
		wz:       wazero.NewRuntimeWithConfig(ctx, wzConfig),
		cache:    cache,
		registry: registry,
		compiled: make(map[string]wazero.CompiledModule),
		modules:  make(map[*Module]struct{}),
	}
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.wz); err != nil {
		r.Close()
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	for _, guest := range cfg.precompile {
		if _, err := r.compile(ctx, guest); err != nil {
			r.Close()
			return nil, fmt.Errorf("precompile %s: %w", guest.Name(), err)
		}
	}
	return r, nil
}

// compile returns the compiled form of guest's current binary.
func (r *Runtime) compile(ctx context.Context, guest Guest) (wazero.CompiledModule, error) {
	if r.isClosed() {
		return nil, ErrRuntimeClosed
	}

	bin, err := guest.Binary()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", guest.Name(), err)
	}
	sum := sha256.Sum256(bin)
	digest := hex.EncodeToString(sum[:])

	v, err, _ := r.compiles.Do(digest, func() (any, error) {
		r.mu.Lock()
		cm, ok := r.compiled[digest]
		r.mu.Unlock()
		if ok {
			return cm, nil
		}

		cm, err := r.wz.CompileModule(ctx, bin)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", guest.Name(), err)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			cm.Close(context.Background())
			return nil, ErrRuntimeClosed
		}
		r.compiled[digest] = cm
		return cm, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(wazero.CompiledModule), nil
}

func (r *Runtime) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// track registers m so Close can stop it. m forgets itself on Close.
func (r *Runtime) track(m *Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRuntimeClosed
	}
	r.modules[m] = struct{}{}
	m.release = func() {
		r.mu.Lock()
		delete(r.modules, m)
		r.mu.Unlock()
	}
	return nil
}

// Loaded returns how many modules are running on r.
func (r *Runtime) Loaded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.modules)
}

// Close stops every module loaded from r, then releases the wazero runtime
// and the compilation cache.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	mods := make([]*Module, 0, len(r.modules))
	for m := range r.modules {
		mods = append(mods, m)
	}
	r.mu.Unlock()

	var errs []error
	for _, m := range mods {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	ctx := context.Background()
	if err := r.wz.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close runtime: %w", err))
	}
	if r.cache != nil {
		if err := r.cache.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close compilation cache: %w", err))
		}
	}
	return errors.Join(errs...)
}
