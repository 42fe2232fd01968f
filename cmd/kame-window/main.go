// Command kame-window shows the module's frames in a window and reads code
// from a terminal prompt.
package main

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/caffeineduck/kame/internal/app"
	"github.com/caffeineduck/kame/internal/config"
	"github.com/caffeineduck/kame/surface/ebitensurface"
	"github.com/chzyer/readline"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/spf13/cobra"
)

var background = color.RGBA{R: 0xfa, G: 0xfa, B: 0xf5, A: 0xff}

type window struct {
	surface *ebitensurface.Surface
	width   int
	height  int
	quit    chan struct{}
}

func (w *window) Update() error {
	select {
	case <-w.quit:
		return ebiten.Termination
	default:
		return nil
	}
}

func (w *window) Draw(screen *ebiten.Image) {
	screen.Fill(background)
	w.surface.Present(screen)
}

func (w *window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return w.width, w.height
}

var rootCmd = &cobra.Command{
	Use:   "kame-window",
	Short: "Draw module frames in a window",
	Long: `kame-window opens a window showing the canvas and reads code from a
prompt in the terminal. Each line is submitted to the module.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runWindow,
}

func init() {
	def := config.Default()
	rootCmd.Flags().StringP("module", "m", def.Module, "WebAssembly module (.wasm); empty uses the Lua turtle")
	rootCmd.Flags().String("assets", def.Assets, "Directory or http(s) URL containing assets/")
	rootCmd.Flags().Int("width", def.Width, "Canvas width")
	rootCmd.Flags().Int("height", def.Height, "Canvas height")
	rootCmd.Flags().BoolP("verbose", "v", def.Verbose, "Log debug output")
}

func runWindow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
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
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	surf := ebitensurface.New(cfg.Width, cfg.Height)
	h, err := app.Open(ctx, app.Options{Config: cfg}, surf)
	if err != nil {
		return err
	}
	defer h.Close()

	w := &window{surface: surf, width: cfg.Width, height: cfg.Height, quit: make(chan struct{})}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "kame> ",
		HistoryFile:     config.HistoryFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	h.SubmitInitFile(ctx)

	go func() {
		defer close(w.quit)
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			if line == "exit" || line == "quit" {
				return
			}
			if line != "" {
				h.Submit(ctx, line)
			}
		}
	}()

	ebiten.SetWindowSize(cfg.Width, cfg.Height)
	ebiten.SetWindowTitle("kame")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(w); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
