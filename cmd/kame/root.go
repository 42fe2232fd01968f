package main

import (
	"context"
	"fmt"
	"os"

	"github.com/caffeineduck/kame/bridge"
	"github.com/caffeineduck/kame/internal/app"
	"github.com/caffeineduck/kame/internal/config"
	"github.com/caffeineduck/kame/surface"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kame",
	Short: "Turtle graphics host for Lua and WebAssembly modules",
	Long: `kame - Draw turtle graphics produced by an external module.

A module (the built-in Lua turtle, or a WebAssembly guest given with
--module) evaluates the code you submit and pushes frames of images and
lines. kame renders each frame onto a canvas and saves it as PNG.

Environment: KAME_MODULE, KAME_ASSETS, KAME_WIDTH, KAME_HEIGHT,
KAME_TIMEOUT, KAME_INTERVAL and KAME_DEBUG=1 set the defaults.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	def := config.Default()
	rootCmd.PersistentFlags().StringP("module", "m", def.Module, "WebAssembly module (.wasm); empty uses the Lua turtle")
	rootCmd.PersistentFlags().String("assets", def.Assets, "Directory or http(s) URL containing assets/")
	rootCmd.PersistentFlags().Int("width", def.Width, "Canvas width")
	rootCmd.PersistentFlags().Int("height", def.Height, "Canvas height")
	rootCmd.PersistentFlags().Duration("timeout", def.Timeout, "Exec timeout")
	rootCmd.PersistentFlags().Duration("interval", def.Interval, "Lua module frame interval")
	rootCmd.PersistentFlags().String("memory", "256mb", "WebAssembly memory limit: 16mb, 64mb, 256mb, 1gb")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable WebAssembly compilation cache")
	rootCmd.PersistentFlags().BoolP("verbose", "v", def.Verbose, "Log debug output")
}

// loadConfig applies explicitly set flags on top of the environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("module") {
		cfg.Module, _ = flags.GetString("module")
	}
	if flags.Changed("assets") {
		cfg.Assets, _ = flags.GetString("assets")
	}
	if flags.Changed("width") {
		cfg.Width, _ = flags.GetInt("width")
	}
	if flags.Changed("height") {
		cfg.Height, _ = flags.GetInt("height")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("interval") {
		cfg.Interval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return cfg, fmt.Errorf("invalid canvas size %dx%d", cfg.Width, cfg.Height)
	}
	return cfg, nil
}

func openHost(ctx context.Context, cmd *cobra.Command, cfg config.Config, s surface.Surface, opts ...bridge.Option) (*app.Host, error) {
	noCache, _ := cmd.Flags().GetBool("no-cache")
	memory, _ := cmd.Flags().GetString("memory")

	return app.Open(ctx, app.Options{
		Config:  cfg,
		NoCache: noCache,
		Memory:  memory,
		Output:  cmd.OutOrStdout(),
		Logger:  app.NewLogger(cmd.ErrOrStderr()),
	}, s, opts...)
}
