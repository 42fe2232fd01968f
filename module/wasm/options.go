package wasm

import (
	"io"
	"log"
	"time"

	"github.com/caffeineduck/kame/hostfunc"
)

// RuntimeOption configures a Runtime.
type RuntimeOption func(*runtimeConfig)

type runtimeConfig struct {
	cacheDir         string
	precompile       []Guest
	memoryLimitPages uint32
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{}
}

// WithDiskCache keeps compiled guests in dir across processes, so a guest
// that has not changed starts without recompiling.
func WithDiskCache(dir string) RuntimeOption {
	return func(c *runtimeConfig) {
		c.cacheDir = dir
	}
}

// WithPrecompile compiles guests while the Runtime is created, so a bad
// binary fails NewRuntime instead of the first Load.
func WithPrecompile(guests ...Guest) RuntimeOption {
	return func(c *runtimeConfig) {
		c.precompile = guests
	}
}

// WithMemoryLimit caps each guest's linear memory at pages (64 KiB each).
// 0 leaves wazero's 4 GiB ceiling.
func WithMemoryLimit(pages uint32) RuntimeOption {
	return func(c *runtimeConfig) {
		c.memoryLimitPages = pages
	}
}

// Memory limits in pages, as accepted by --memory.
const (
	MemoryLimit16MB  uint32 = 16 << 20 / pageSize
	MemoryLimit64MB  uint32 = 64 << 20 / pageSize
	MemoryLimit256MB uint32 = 256 << 20 / pageSize
	MemoryLimit1GB   uint32 = 1 << 30 / pageSize

	pageSize = 64 << 10
)

// ModuleOption configures a loaded Module.
type ModuleOption func(*moduleConfig)

type moduleConfig struct {
	startTimeout time.Duration
	execTimeout  time.Duration
	output       io.Writer
	logger       *log.Logger
	debug        bool
	env          map[string]string
	registry     *hostfunc.Registry
}

func defaultModuleConfig() moduleConfig {
	return moduleConfig{
		startTimeout: 30 * time.Second,
		execTimeout:  30 * time.Second,
		output:       io.Discard,
		logger:       log.New(io.Discard, "", 0),
		env:          make(map[string]string),
		registry:     hostfunc.NewRegistry(),
	}
}

// WithStartTimeout bounds how long Load waits for the guest's ready signal.
func WithStartTimeout(d time.Duration) ModuleOption {
	return func(c *moduleConfig) {
		c.startTimeout = d
	}
}

// WithExecTimeout bounds each Exec call. 0 disables the limit.
func WithExecTimeout(d time.Duration) ModuleOption {
	return func(c *moduleConfig) {
		c.execTimeout = d
	}
}

// WithOutput receives the guest's stdout and non-protocol stderr.
func WithOutput(w io.Writer) ModuleOption {
	return func(c *moduleConfig) {
		c.output = w
	}
}

// WithLogger sets the logger for the guest's log host function and, with
// WithDebug, for protocol events.
func WithLogger(l *log.Logger) ModuleOption {
	return func(c *moduleConfig) {
		c.logger = l
	}
}

// WithDebug logs protocol events (ready, dropped frames) to the logger.
func WithDebug(enabled bool) ModuleOption {
	return func(c *moduleConfig) {
		c.debug = enabled
	}
}

// WithEnv sets an environment variable visible to the guest.
func WithEnv(key, value string) ModuleOption {
	return func(c *moduleConfig) {
		c.env[key] = value
	}
}

// WithHostFunc registers a host function for this module only.
func WithHostFunc(name string, fn hostfunc.Func) ModuleOption {
	return func(c *moduleConfig) {
		c.registry.Register(name, fn)
	}
}
