// Package config holds kame's defaults, the KAME_* environment overrides
// and the per-user directories it reads and writes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// Config is the settings shared by every kame command. Flags override it.
type Config struct {
	Module   string        // path to a .wasm module; empty selects Lua
	Assets   string        // asset directory or http(s) base URL
	Width    int           // surface width in pixels
	Height   int           // surface height in pixels
	Timeout  time.Duration // exec timeout
	Interval time.Duration // Lua module tick
	Verbose  bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Assets:   ".",
		Width:    600,
		Height:   400,
		Timeout:  30 * time.Second,
		Interval: time.Second,
	}
}

// Load returns Default overlaid with the KAME_* environment variables.
func Load() (Config, error) {
	return FromEnv(os.Getenv)
}

// FromEnv overlays variables looked up with getenv onto Default.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()

	if v := getenv("KAME_MODULE"); v != "" {
		c.Module = v
	}
	if v := getenv("KAME_ASSETS"); v != "" {
		c.Assets = v
	}

	var err error
	if c.Width, err = envInt(getenv, "KAME_WIDTH", c.Width); err != nil {
		return c, err
	}
	if c.Height, err = envInt(getenv, "KAME_HEIGHT", c.Height); err != nil {
		return c, err
	}
	if c.Timeout, err = envDuration(getenv, "KAME_TIMEOUT", c.Timeout); err != nil {
		return c, err
	}
	if c.Interval, err = envDuration(getenv, "KAME_INTERVAL", c.Interval); err != nil {
		return c, err
	}
	if v := getenv("KAME_DEBUG"); v == "1" {
		c.Verbose = true
	}
	return c, nil
}

func envInt(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def, fmt.Errorf("%s: invalid size %q", key, v)
	}
	return n, nil
}

func envDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Dir returns the kame configuration directory.
// Respects XDG_CONFIG_HOME on Unix, APPDATA on Windows.
func Dir() string {
	var base string

	if runtime.GOOS == "windows" {
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	} else {
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(base, "kame")
}

// InitFile is a script submitted once when an interactive session starts.
func InitFile() string {
	return filepath.Join(Dir(), "init.lua")
}

// CacheDir is where compiled WebAssembly guests are kept between runs.
func CacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "kame-cache")
	}
	return filepath.Join(base, "kame")
}

// HistoryFile is where the REPL keeps its line history.
func HistoryFile() string {
	return filepath.Join(Dir(), "history")
}
