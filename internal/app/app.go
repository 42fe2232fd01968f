// Package app assembles a module, renderer and bridge from a config.Config
// for the kame commands.
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/kame/asset"
	"github.com/caffeineduck/kame/bridge"
	"github.com/caffeineduck/kame/hostfunc"
	"github.com/caffeineduck/kame/internal/config"
	"github.com/caffeineduck/kame/module"
	"github.com/caffeineduck/kame/module/lua"
	"github.com/caffeineduck/kame/module/wasm"
	"github.com/caffeineduck/kame/render"
	"github.com/caffeineduck/kame/surface"
)

// Options selects how the module is loaded.
type Options struct {
	Config  config.Config
	NoCache bool      // disable the wasm disk compilation cache
	Memory  string    // wasm memory limit, e.g. "64mb"
	Output  io.Writer // module output; default os.Stdout
	Logger  *log.Logger
}

// NewLogger returns the logger kame commands write to.
func NewLogger(w io.Writer) *log.Logger {
	return log.New(w, "kame: ", log.LstdFlags)
}

// NewLoader returns a cached loader for base, a directory or an http(s)
// URL that contains assets/.
func NewLoader(base string) asset.Loader {
	var l asset.Loader
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		l = asset.NewHTTPLoader(base)
	} else {
		l = asset.NewFSLoader(os.DirFS(base))
	}
	return asset.NewCachedLoader(l, asset.DefaultCacheSize)
}

func ParseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "16mb":
		return wasm.MemoryLimit16MB
	case "64mb":
		return wasm.MemoryLimit64MB
	case "256mb":
		return wasm.MemoryLimit256MB
	case "1gb":
		return wasm.MemoryLimit1GB
	default:
		return 0 // use default
	}
}

// OpenModule loads the module selected by opts.Config.Module: the Lua
// turtle when empty, otherwise a .wasm guest. The returned closers release
// what the module depends on and run after the module is closed.
func OpenModule(ctx context.Context, opts Options) (module.Module, []func() error, error) {
	cfg := opts.Config
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	if cfg.Module == "" {
		return lua.New(lua.WithInterval(cfg.Interval), lua.WithOutput(opts.Output)), nil, nil
	}
	if filepath.Ext(cfg.Module) != ".wasm" {
		return nil, nil, fmt.Errorf("unsupported module %q: want a .wasm file", cfg.Module)
	}

	var rtOpts []wasm.RuntimeOption
	if !opts.NoCache {
		rtOpts = append(rtOpts, wasm.WithDiskCache(config.CacheDir()))
	}
	if pages := ParseMemoryLimit(opts.Memory); pages > 0 {
		rtOpts = append(rtOpts, wasm.WithMemoryLimit(pages))
	}

	rt, err := wasm.NewRuntime(hostfunc.NewRegistry(), rtOpts...)
	if err != nil {
		return nil, nil, err
	}

	mod, err := rt.Load(ctx, wasm.FileGuest(cfg.Module),
		wasm.WithExecTimeout(cfg.Timeout),
		wasm.WithOutput(opts.Output),
		wasm.WithLogger(opts.Logger),
		wasm.WithDebug(cfg.Verbose),
	)
	if err != nil {
		rt.Close()
		return nil, nil, err
	}
	return mod, []func() error{rt.Close}, nil
}

// Host is one loaded module wired to a renderer and a surface.
type Host struct {
	Config config.Config
	Logger *log.Logger
	Module module.Module
	Bridge *bridge.Bridge

	closers []func() error
}

// Open loads the module, builds the renderer and starts the bridge on s.
func Open(ctx context.Context, opts Options, s surface.Surface, bopts ...bridge.Option) (*Host, error) {
	if opts.Logger == nil {
		opts.Logger = NewLogger(os.Stderr)
	}
	cfg := opts.Config

	mod, closers, err := OpenModule(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("load module: %w", err)
	}

	r := render.New(
		render.WithLoader(NewLoader(cfg.Assets)),
		render.WithLogger(opts.Logger),
		render.WithDebug(cfg.Verbose),
	)

	bopts = append([]bridge.Option{bridge.WithLogger(opts.Logger), bridge.WithDebug(cfg.Verbose)}, bopts...)
	b := bridge.New(mod, r, s, bopts...)

	h := &Host{
		Config:  cfg,
		Logger:  opts.Logger,
		Module:  mod,
		Bridge:  b,
		closers: closers,
	}
	if err := b.Start(ctx); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// Submit runs code with the configured exec timeout.
func (h *Host) Submit(ctx context.Context, code string) error {
	if h.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Config.Timeout)
		defer cancel()
	}
	return h.Bridge.Submit(ctx, code)
}

// SubmitInitFile runs the user's init script for the Lua module, if there
// is one.
func (h *Host) SubmitInitFile(ctx context.Context) {
	if h.Config.Module != "" {
		return
	}
	data, err := os.ReadFile(config.InitFile())
	if err != nil {
		return
	}
	h.Submit(ctx, string(data))
}

func (h *Host) Close() error {
	h.Bridge.Close()
	err := h.Module.Close()
	for _, c := range h.closers {
		c()
	}
	return err
}
