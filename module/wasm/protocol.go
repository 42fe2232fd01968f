package wasm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/caffeineduck/kame/hostfunc"
	"github.com/caffeineduck/kame/visual"
)

// Protocol frames written by the guest on stderr. Each is the prefix, an
// optional payload, then protocolSuffix.
const (
	readyPrefix    = "\x00KAME_READY"
	donePrefix     = "\x00KAME_DONE"
	errorPrefix    = "\x00KAME_ERROR:"
	framePrefix    = "\x00KAME_FRAME:"
	protocolPrefix = "\x00KAME:"
	protocolSuffix = "\x00"
)

type messageType int

const (
	messageNone messageType = iota
	messageReady
	messageDone
	messageError
	messageFrame
	messageCall
)

var messagePrefixes = []struct {
	typ    messageType
	prefix string
}{
	{messageReady, readyPrefix},
	{messageDone, donePrefix},
	{messageError, errorPrefix},
	{messageFrame, framePrefix},
	{messageCall, protocolPrefix},
}

// findNextMessage returns the index and type of the earliest protocol frame
// in content, or -1 and messageNone.
func findNextMessage(content string) (int, messageType) {
	best, typ := -1, messageNone
	for _, m := range messagePrefixes {
		idx := strings.Index(content, m.prefix)
		if idx == -1 {
			continue
		}
		if best == -1 || idx < best {
			best, typ = idx, m.typ
		}
	}
	return best, typ
}

// extractMessage splits the frame starting at idx into its payload and the
// content after it. ok is false if the frame is not terminated yet.
func extractMessage(content string, idx int, prefix string) (payload, remaining string, ok bool) {
	start := idx + len(prefix)
	end := strings.Index(content[start:], protocolSuffix)
	if end == -1 {
		return "", content[idx:], false
	}
	return content[start : start+end], content[start+end+len(protocolSuffix):], true
}

// partialPrefix reports the index of a trailing fragment of content that
// could grow into a protocol frame, or -1.
func partialPrefix(content string) int {
	idx := strings.LastIndexByte(content, 0)
	if idx == -1 {
		return -1
	}
	tail := content[idx:]
	for _, m := range messagePrefixes {
		if strings.HasPrefix(m.prefix, tail) {
			return idx
		}
	}
	return -1
}

type callRequest struct {
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type execCommand struct {
	Type string `json:"type"`
	Code string `json:"code,omitempty"`
}

// guestProtocol intercepts the guest's stderr. Protocol frames drive the
// module; everything else passes through to output.
type guestProtocol struct {
	ctx      context.Context
	registry *hostfunc.Registry
	stdin    io.Writer
	output   io.Writer
	debug    *log.Logger // nil unless debug output is on
	onFrame  func([]visual.Object)

	buf bytes.Buffer

	readyCh chan struct{}
	doneCh  chan error
	ready   bool

	mu      sync.Mutex
	writeMu sync.Mutex
}

func newGuestProtocol(ctx context.Context, registry *hostfunc.Registry, stdin, output io.Writer, debug *log.Logger, onFrame func([]visual.Object)) *guestProtocol {
	return &guestProtocol{
		ctx:      ctx,
		registry: registry,
		stdin:    stdin,
		output:   output,
		debug:    debug,
		onFrame:  onFrame,
		readyCh:  make(chan struct{}),
		doneCh:   make(chan error, 1),
	}
}

func (p *guestProtocol) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)

	for {
		content := p.buf.String()
		idx, typ := findNextMessage(content)
		if typ == messageNone {
			keep := partialPrefix(content)
			if keep == -1 {
				p.passthrough(content)
				p.buf.Reset()
			} else {
				p.passthrough(content[:keep])
				p.buf.Reset()
				p.buf.WriteString(content[keep:])
			}
			break
		}

		p.passthrough(content[:idx])

		payload, remaining, ok := extractMessage(content, idx, prefixFor(typ))
		p.buf.Reset()
		p.buf.WriteString(remaining)
		if !ok {
			break
		}
		p.handle(typ, payload)
	}

	return len(data), nil
}

func prefixFor(typ messageType) string {
	for _, m := range messagePrefixes {
		if m.typ == typ {
			return m.prefix
		}
	}
	return ""
}

func (p *guestProtocol) passthrough(s string) {
	if s == "" {
		return
	}
	io.WriteString(p.output, s)
}

func (p *guestProtocol) handle(typ messageType, payload string) {
	switch typ {
	case messageReady:
		if !p.ready {
			p.ready = true
			close(p.readyCh)
		}
	case messageDone:
		p.finish(nil)
	case messageError:
		p.finish(errors.New(payload))
	case messageFrame:
		objs, err := visual.DecodeList([]byte(payload))
		if err != nil {
			p.debugf("dropping frame: %v", err)
			return
		}
		if p.onFrame != nil {
			p.onFrame(objs)
		}
	case messageCall:
		var req callRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			go p.respond(callResponse{Error: "invalid call format"})
			return
		}
		// Respond off the Write path; the guest may still be writing.
		go func() {
			p.respond(p.executeCall(req))
		}()
	}
}

func (p *guestProtocol) debugf(format string, args ...any) {
	if p.debug != nil {
		p.debug.Printf("[DEBUG] wasm: "+format, args...)
	}
}

func (p *guestProtocol) finish(err error) {
	select {
	case p.doneCh <- err:
	default:
	}
}

func (p *guestProtocol) executeCall(req callRequest) callResponse {
	fn, ok := p.registry.Get(req.Fn)
	if !ok {
		return callResponse{Error: "unknown function: " + req.Fn}
	}

	result, err := fn(p.ctx, req.Args)
	if err != nil {
		return callResponse{Error: err.Error()}
	}
	return callResponse{Data: result}
}

func (p *guestProtocol) respond(resp callResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte(`{"error":"internal: failed to marshal response"}`)
	}
	p.send(append(data, '\n'))
}

func (p *guestProtocol) send(line []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := p.stdin.Write(line)
	return err
}

func (p *guestProtocol) Ready() <-chan struct{} {
	return p.readyCh
}

func (p *guestProtocol) Done() <-chan error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doneCh
}

// ResetExec drops any stale completion before a new exec.
func (p *guestProtocol) ResetExec() {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.doneCh:
	default:
	}
}
