//go:build wasip1

// Command guest is a minimal turtle module for the wasm host.
//
//	GOOS=wasip1 GOARCH=wasm go build -o turtle.wasm ./module/wasm/testdata/guest
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

type command struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

type object struct {
	Type    string         `json:"type"`
	Content map[string]any `json:"content"`
}

type turtle struct {
	x, y, dir float64
	lines     []object
}

func (t *turtle) frame() []object {
	objs := []object{{Type: "ImageObject", Content: map[string]any{
		"x": t.x, "y": t.y, "rotation": t.dir, "image": "turtle.png",
	}}}
	for i := len(t.lines) - 1; i >= 0; i-- {
		objs = append(objs, t.lines[i])
	}
	return objs
}

func (t *turtle) exec(code string) error {
	fields := strings.Fields(code)
	for i := 0; i < len(fields); i++ {
		word := fields[i]
		if word == "clear" {
			t.lines = nil
			continue
		}
		if i+1 >= len(fields) {
			return fmt.Errorf("%s: missing argument", word)
		}
		n, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return fmt.Errorf("%s: %v", word, err)
		}
		i++
		switch word {
		case "forward", "fd":
			x, y := t.x+n*math.Cos(t.dir), t.y+n*math.Sin(t.dir)
			t.lines = append(t.lines, object{Type: "Line", Content: map[string]any{
				"x1": t.x, "y1": t.y, "x2": x, "y2": y,
			}})
			t.x, t.y = x, y
		case "left", "lt":
			t.dir -= n * math.Pi / 180
		case "right", "rt":
			t.dir += n * math.Pi / 180
		default:
			return fmt.Errorf("unknown word: %s", word)
		}
	}
	return nil
}

func emit(prefix, payload string) {
	fmt.Fprintf(os.Stderr, "\x00%s%s\x00", prefix, payload)
}

func sendFrame(t *turtle) {
	data, _ := json.Marshal(t.frame())
	emit("KAME_FRAME:", string(data))
}

func main() {
	t := &turtle{}
	sendFrame(t)
	emit("KAME_READY", "")

	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var cmd command
		if err := json.Unmarshal(sc.Bytes(), &cmd); err != nil || cmd.Type != "exec" {
			continue
		}
		if err := t.exec(cmd.Code); err != nil {
			emit("KAME_ERROR:", err.Error())
			continue
		}
		sendFrame(t)
		emit("KAME_DONE", "")
	}
}
