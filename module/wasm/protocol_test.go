package wasm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caffeineduck/kame/hostfunc"
	"github.com/caffeineduck/kame/visual"
)

func TestFindNextMessage(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantIdx     int
		wantMsgType messageType
	}{
		{"no message", "hello world", -1, messageNone},
		{"call message", "prefix\x00KAME:{}\x00suffix", 6, messageCall},
		{"frame message", "prefix\x00KAME_FRAME:[]\x00suffix", 6, messageFrame},
		{"ready", "\x00KAME_READY\x00", 0, messageReady},
		{"done", "out\x00KAME_DONE\x00", 3, messageDone},
		{"error", "\x00KAME_ERROR:boom\x00", 0, messageError},
		{"call before frame", "\x00KAME:{}\x00\x00KAME_FRAME:[]\x00", 0, messageCall},
		{"frame before call", "\x00KAME_FRAME:[]\x00\x00KAME:{}\x00", 0, messageFrame},
		{"empty content", "", -1, messageNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, msgType := findNextMessage(tt.content)
			if idx != tt.wantIdx {
				t.Errorf("idx = %d, want %d", idx, tt.wantIdx)
			}
			if msgType != tt.wantMsgType {
				t.Errorf("msgType = %d, want %d", msgType, tt.wantMsgType)
			}
		})
	}
}

func TestExtractMessage(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		idx           int
		prefix        string
		wantPayload   string
		wantRemaining string
		wantOK        bool
	}{
		{
			name:          "valid call",
			content:       "prefix\x00KAME:{\"fn\":\"test\"}\x00suffix",
			idx:           6,
			prefix:        protocolPrefix,
			wantPayload:   `{"fn":"test"}`,
			wantRemaining: "suffix",
			wantOK:        true,
		},
		{
			name:          "incomplete message",
			content:       "prefix\x00KAME:{partial",
			idx:           6,
			prefix:        protocolPrefix,
			wantPayload:   "",
			wantRemaining: "\x00KAME:{partial",
			wantOK:        false,
		},
		{
			name:          "signal without payload",
			content:       "\x00KAME_DONE\x00rest",
			idx:           0,
			prefix:        donePrefix,
			wantPayload:   "",
			wantRemaining: "rest",
			wantOK:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, remaining, ok := extractMessage(tt.content, tt.idx, tt.prefix)
			if payload != tt.wantPayload {
				t.Errorf("payload = %q, want %q", payload, tt.wantPayload)
			}
			if remaining != tt.wantRemaining {
				t.Errorf("remaining = %q, want %q", remaining, tt.wantRemaining)
			}
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

func TestPartialPrefix(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"plain", -1},
		{"text\x00", 4},
		{"text\x00KA", 4},
		{"text\x00KAME_FR", 4},
		{"text\x00other", -1},
	}

	for _, tt := range tests {
		if got := partialPrefix(tt.content); got != tt.want {
			t.Errorf("partialPrefix(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestProtocol(t *testing.T, registry *hostfunc.Registry, onFrame func([]visual.Object)) (*guestProtocol, *syncBuffer, *bufio.Reader) {
	t.Helper()
	r, w := io.Pipe()
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	out := &syncBuffer{}
	if registry == nil {
		registry = hostfunc.NewRegistry()
	}
	p := newGuestProtocol(context.Background(), registry, w, out, log.New(io.Discard, "", 0), onFrame)
	return p, out, bufio.NewReader(r)
}

func TestProtocolPassthrough(t *testing.T) {
	p, out, _ := newTestProtocol(t, nil, nil)

	p.Write([]byte("hello "))
	p.Write([]byte("world\n"))

	if got := out.String(); got != "hello world\n" {
		t.Fatalf("output = %q, want %q", got, "hello world\n")
	}
}

func TestProtocolReady(t *testing.T) {
	p, out, _ := newTestProtocol(t, nil, nil)

	p.Write([]byte("booting\x00KAME_READY\x00"))

	select {
	case <-p.Ready():
	default:
		t.Fatal("ready not signalled")
	}
	if got := out.String(); got != "booting" {
		t.Fatalf("output = %q, want %q", got, "booting")
	}

	// A second ready must not panic on a closed channel.
	p.Write([]byte("\x00KAME_READY\x00"))
}

func TestProtocolDoneAndError(t *testing.T) {
	p, _, _ := newTestProtocol(t, nil, nil)

	p.Write([]byte("\x00KAME_DONE\x00"))
	if err := <-p.Done(); err != nil {
		t.Fatalf("done error = %v, want nil", err)
	}

	p.ResetExec()
	p.Write([]byte("\x00KAME_ERROR:unknown word\x00"))
	err := <-p.Done()
	if err == nil || err.Error() != "unknown word" {
		t.Fatalf("done error = %v, want %q", err, "unknown word")
	}
}

func TestProtocolResetDropsStaleDone(t *testing.T) {
	p, _, _ := newTestProtocol(t, nil, nil)

	p.Write([]byte("\x00KAME_DONE\x00"))
	p.ResetExec()

	select {
	case err := <-p.Done():
		t.Fatalf("stale done delivered: %v", err)
	default:
	}
}

func TestProtocolFrame(t *testing.T) {
	var got [][]visual.Object
	p, _, _ := newTestProtocol(t, nil, func(objs []visual.Object) {
		got = append(got, objs)
	})

	payload, err := visual.EncodeList([]visual.Object{
		visual.Line{X1: 0, Y1: 0, X2: 10, Y2: 0},
		visual.Image{X: 10, Y: 0, Image: "turtle.png"},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	p.Write([]byte(framePrefix + string(payload) + protocolSuffix))

	if len(got) != 1 {
		t.Fatalf("frames = %d, want 1", len(got))
	}
	if len(got[0]) != 2 {
		t.Fatalf("objects = %d, want 2", len(got[0]))
	}
	if line, ok := got[0][0].(visual.Line); !ok || line.X2 != 10 {
		t.Fatalf("first object = %#v, want line to x2=10", got[0][0])
	}
	if img, ok := got[0][1].(visual.Image); !ok || img.Image != "turtle.png" {
		t.Fatalf("second object = %#v, want turtle image", got[0][1])
	}
}

func TestProtocolBadFrameDropped(t *testing.T) {
	calls := 0
	p, out, _ := newTestProtocol(t, nil, func([]visual.Object) { calls++ })

	p.Write([]byte("\x00KAME_FRAME:[{\"type\":\"Circle\",\"content\":{}}]\x00after"))

	if calls != 0 {
		t.Fatalf("onFrame called %d times, want 0", calls)
	}
	if got := out.String(); got != "after" {
		t.Fatalf("output = %q, want %q", got, "after")
	}
}

func TestProtocolSplitWrites(t *testing.T) {
	var frames int
	p, out, _ := newTestProtocol(t, nil, func([]visual.Object) { frames++ })

	msg := "text\x00KAME_FRAME:[]\x00tail"
	for i := 0; i < len(msg); i++ {
		p.Write([]byte{msg[i]})
	}

	if frames != 1 {
		t.Fatalf("frames = %d, want 1", frames)
	}
	if got := out.String(); got != "texttail" {
		t.Fatalf("output = %q, want %q", got, "texttail")
	}
}

func TestProtocolHostCall(t *testing.T) {
	registry := hostfunc.NewRegistry()
	registry.Register("add", func(ctx context.Context, args map[string]any) (any, error) {
		a, _ := args["a"].(float64)
		b, _ := args["b"].(float64)
		return a + b, nil
	})
	p, _, stdin := newTestProtocol(t, registry, nil)

	p.Write([]byte("\x00KAME:{\"fn\":\"add\",\"args\":{\"a\":1,\"b\":2}}\x00"))

	resp := readResponse(t, stdin)
	if resp.Error != "" {
		t.Fatalf("error = %q", resp.Error)
	}
	if resp.Data != float64(3) {
		t.Fatalf("data = %v, want 3", resp.Data)
	}
}

func TestProtocolUnknownFunction(t *testing.T) {
	p, _, stdin := newTestProtocol(t, nil, nil)

	p.Write([]byte("\x00KAME:{\"fn\":\"missing\"}\x00"))

	resp := readResponse(t, stdin)
	if !strings.Contains(resp.Error, "unknown function") {
		t.Fatalf("error = %q, want unknown function", resp.Error)
	}
}

func TestProtocolInvalidCall(t *testing.T) {
	p, _, stdin := newTestProtocol(t, nil, nil)

	p.Write([]byte("\x00KAME:not json\x00"))

	resp := readResponse(t, stdin)
	if resp.Error != "invalid call format" {
		t.Fatalf("error = %q, want invalid call format", resp.Error)
	}
}

func readResponse(t *testing.T, r *bufio.Reader) callResponse {
	t.Helper()
	lines := make(chan string, 1)
	go func() {
		line, _ := r.ReadString('\n')
		lines <- line
	}()

	select {
	case line := <-lines:
		var resp callResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("no response written")
		return callResponse{}
	}
}
