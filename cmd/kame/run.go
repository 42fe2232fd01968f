package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/caffeineduck/kame/bridge"
	"github.com/caffeineduck/kame/surface"
	"github.com/caffeineduck/kame/visual"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run code and save the rendered frame",
	Long: `Submit code to the module once, wait for the frame it renders and
save the canvas as PNG.

Code can be provided via:
  - File argument: kame run square.lua
  - Inline flag: kame run -c 't = turtle.new() t:forward(100)'
  - Stdin: echo 't = turtle.new() t:forward(100)' | kame run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("code", "c", "", "Code to execute")
	runCmd.Flags().StringP("out", "o", "display.png", "Output PNG path")
	runCmd.Flags().Bool("dry-run", false, "Print surface operations instead of writing a PNG")
	rootCmd.AddCommand(runCmd)
}

func readSource(cmd *cobra.Command, args []string) (string, error) {
	code, _ := cmd.Flags().GetString("code")

	switch {
	case code != "":
		return code, nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		// No piped input
		stat, err := f.Stat()
		if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func runRun(cmd *cobra.Command, args []string) error {
	source, err := readSource(cmd, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(source) == "" {
		return cmd.Help()
	}

	out, _ := cmd.Flags().GetString("out")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var (
		s        surface.Surface
		canvas   *surface.Canvas
		recorder *surface.Recorder
	)
	if dryRun {
		recorder = surface.NewRecorder(cfg.Width, cfg.Height)
		s = recorder
	} else {
		canvas = surface.NewCanvas(cfg.Width, cfg.Height)
		s = canvas
	}

	var (
		mu        sync.Mutex
		renderErr error
	)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	h, err := openHost(ctx, cmd, cfg, s, bridge.OnRendered(func(_ []visual.Object, err error) {
		mu.Lock()
		renderErr = err
		mu.Unlock()
	}))
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.Submit(ctx, source); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := h.Bridge.WaitRendered(waitCtx); err != nil {
		return fmt.Errorf("no frame rendered: %w", err)
	}
	// Stop further frames; the pass in flight finishes first.
	h.Bridge.Close()

	if dryRun {
		printOps(cmd.OutOrStdout(), recorder.Ops())
	} else {
		if err := canvas.SavePNG(out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
	}

	mu.Lock()
	defer mu.Unlock()
	if renderErr != nil {
		return fmt.Errorf("render: %w", renderErr)
	}
	return nil
}

func printOps(w io.Writer, ops []surface.Op) {
	for _, op := range ops {
		parts := []string{op.Name}
		for _, a := range op.Args {
			parts = append(parts, strconv.FormatFloat(a, 'g', 6, 64))
		}
		fmt.Fprintln(w, strings.Join(parts, " "))
	}
}
