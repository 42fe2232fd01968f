package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/kame/bridge"
	"github.com/caffeineduck/kame/internal/config"
	"github.com/caffeineduck/kame/surface"
	"github.com/caffeineduck/kame/visual"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive REPL that saves every frame",
	Long: `Start an interactive REPL (Read-Eval-Print Loop) session.

Each line is submitted to the module. Every frame the module renders is
written to --out, so an image viewer that reloads on change shows the
drawing live.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().StringP("out", "o", "display.png", "PNG path updated after every frame")
	replCmd.Flags().String("history", "", "History file path (default: "+config.HistoryFile()+")")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	historyFile, _ := cmd.Flags().GetString("history")

	if historyFile == "" {
		historyFile = config.HistoryFile()
		os.MkdirAll(filepath.Dir(historyFile), 0o755)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	canvas := surface.NewCanvas(cfg.Width, cfg.Height)
	ctx := context.Background()

	h, err := openHost(ctx, cmd, cfg, canvas, bridge.OnRendered(func(_ []visual.Object, _ error) {
		if err := canvas.SavePNG(out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: save frame: %v\n", err)
		}
	}))
	if err != nil {
		return err
	}
	defer h.Close()

	h.SubmitInitFile(ctx)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "kame> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	moduleName := "lua"
	if cfg.Module != "" {
		moduleName = filepath.Base(cfg.Module)
	}
	fmt.Fprintf(os.Stderr, "kame %s REPL, frames saved to %s (type 'exit' to quit, Ctrl+D to exit)\n", moduleName, out)

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt("kame> ")
				}
				continue
			}
			if err == io.EOF {
				fmt.Println()
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			break
		}

		// Handle multi-line input
		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt("  ... ")
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt("kame> ")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		// Failures are already logged by the bridge.
		h.Submit(ctx, line)
	}
	return nil
}
