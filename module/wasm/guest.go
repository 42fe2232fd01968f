package wasm

import (
	"fmt"
	"os"
	"path/filepath"
)

// Guest describes a WebAssembly binary to run as a module.
type Guest interface {
	// Name identifies the guest. Used as the compile cache key.
	Name() string

	// Binary returns the WASM bytes.
	Binary() ([]byte, error)

	// Args returns the guest's command-line arguments, program name first.
	Args() []string
}

type fileGuest struct {
	path string
}

// FileGuest returns a Guest read from a .wasm file.
func FileGuest(path string) Guest {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &fileGuest{path: path}
}

func (g *fileGuest) Name() string { return g.path }

func (g *fileGuest) Binary() ([]byte, error) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return nil, fmt.Errorf("read guest: %w", err)
	}
	return data, nil
}

func (g *fileGuest) Args() []string {
	return []string{filepath.Base(g.path)}
}

type bytesGuest struct {
	name   string
	binary []byte
	args   []string
}

// BytesGuest returns a Guest from an in-memory binary, e.g. one embedded
// with go:embed.
func BytesGuest(name string, binary []byte, args ...string) Guest {
	if len(args) == 0 {
		args = []string{name}
	}
	return &bytesGuest{name: name, binary: binary, args: args}
}

func (g *bytesGuest) Name() string            { return g.name }
func (g *bytesGuest) Binary() ([]byte, error) { return g.binary, nil }
func (g *bytesGuest) Args() []string          { return g.args }
