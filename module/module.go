// Package module defines the contract between the host and the external
// computation module that produces visual objects.
//
// A module exposes two entry points. Run registers a callback the module
// invokes whenever it has a new frame of objects; Exec submits source text
// for the module to evaluate. Implementations live in module/wasm (a
// WebAssembly guest) and module/lua (an in-process turtle interpreter).
package module

import (
	"context"
	"errors"
	"fmt"

	"github.com/caffeineduck/kame/visual"
)

var (
	ErrClosed         = errors.New("module closed")
	ErrAlreadyRunning = errors.New("module already running")
)

// RenderFunc receives each frame a module produces. It must not block for
// long; the module's tick waits for it to return.
type RenderFunc func(objs []visual.Object)

// Module is an external computation engine. Run and Exec may be called
// concurrently.
type Module interface {
	// Run delivers frames to fn until ctx is done or the module stops.
	Run(ctx context.Context, fn RenderFunc) error

	// Exec evaluates code and returns once the module has processed it.
	Exec(ctx context.Context, code string) error

	Close() error
}

// CallError reports a failure raised by the module during Run or Exec.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }
