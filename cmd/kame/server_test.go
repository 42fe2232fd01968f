package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caffeineduck/kame/asset"
	"github.com/caffeineduck/kame/bridge"
	"github.com/caffeineduck/kame/module/lua"
	"github.com/caffeineduck/kame/render"
	"github.com/caffeineduck/kame/surface"
	"github.com/caffeineduck/kame/visual"
)

type fakeSubmitter struct {
	mu     sync.Mutex
	codes  []string
	err    error
	frames int64
}

func (f *fakeSubmitter) Submit(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	return f.err
}

func (f *fakeSubmitter) WaitRendered(ctx context.Context) error { return nil }

func (f *fakeSubmitter) Frames() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

func setupTestServer(t *testing.T) (*server, *fakeSubmitter) {
	t.Helper()
	srv := newServer(surface.NewCanvas(40, 30), time.Second)
	sub := &fakeSubmitter{}
	srv.bridge = sub
	return srv, sub
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected 'ok', got %q", w.Body.String())
	}
}

func TestExecEndpoint(t *testing.T) {
	srv, sub := setupTestServer(t)

	body := bytes.NewBufferString(`{"code": "t = turtle.new()"}`)
	req := httptest.NewRequest(http.MethodPost, "/exec", body)
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp execResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "" {
		t.Errorf("unexpected error: %s", resp.Error)
	}
	if len(sub.codes) != 1 || sub.codes[0] != "t = turtle.new()" {
		t.Errorf("submitted %v, want the request code", sub.codes)
	}
}

func TestExecEndpointReportsError(t *testing.T) {
	srv, sub := setupTestServer(t)
	sub.err = errors.New("module exec: syntax error")

	req := httptest.NewRequest(http.MethodPost, "/exec", bytes.NewBufferString(`{"code": "x +"}`))
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	var resp execResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.Contains(resp.Error, "syntax error") {
		t.Errorf("expected syntax error, got %q", resp.Error)
	}
}

func TestExecEndpointBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"invalid json", http.MethodPost, `{bad`, http.StatusBadRequest},
		{"missing code", http.MethodPost, `{}`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, ``, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, sub := setupTestServer(t)

			req := httptest.NewRequest(tt.method, "/exec", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			srv.routes().ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}
			if len(sub.codes) != 0 {
				t.Errorf("nothing should be submitted, got %v", sub.codes)
			}
		})
	}
}

func TestDisplayEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/display.png", nil)
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}

	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Errorf("size = %dx%d, want 40x30", b.Dx(), b.Dy())
	}
}

func TestFrameEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)
	srv.onRendered([]visual.Object{visual.Line{X2: 5}}, errors.New("load assets/x.png: not found"))

	req := httptest.NewRequest(http.MethodGet, "/frame", nil)
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	var resp struct {
		Objects []struct {
			Type string `json:"type"`
		} `json:"objects"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Objects) != 1 || resp.Objects[0].Type != visual.TypeLine {
		t.Errorf("objects = %+v, want one Line", resp.Objects)
	}
	if !strings.Contains(resp.Error, "not found") {
		t.Errorf("error = %q, want the render failure", resp.Error)
	}
}

func TestIndexEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	body := w.Body.String()
	for _, id := range []string{bridge.DisplayID, bridge.CodeID, bridge.ExecID} {
		if !strings.Contains(body, `id="`+id+`"`) {
			t.Errorf("index should contain element %q", id)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/missing", nil)
	w = httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", w.Code)
	}
}

func TestServerWithLuaModule(t *testing.T) {
	mod := lua.New(lua.WithInterval(time.Hour))
	defer mod.Close()

	loader := asset.LoaderFunc(func(ctx context.Context, p string) (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
	})

	canvas := surface.NewCanvas(60, 40)
	srv := newServer(canvas, 5*time.Second)
	b := bridge.New(mod, render.New(render.WithLoader(loader)), canvas, bridge.OnRendered(srv.onRendered))
	srv.bridge = b
	if err := b.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Close()

	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/exec", "application/json",
		bytes.NewBufferString(`{"code": "t = turtle.new() t:forward(10)", "wait": true}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var execResp execResponse
	json.NewDecoder(resp.Body).Decode(&execResp)
	resp.Body.Close()
	if execResp.Error != "" {
		t.Fatalf("exec error: %s", execResp.Error)
	}
	if execResp.Frames < 1 {
		t.Fatalf("frames = %d, want at least 1", execResp.Frames)
	}

	resp, err = http.Get(ts.URL + "/frame")
	if err != nil {
		t.Fatalf("get frame: %v", err)
	}
	defer resp.Body.Close()

	var frame struct {
		Objects visual.Frame `json:"objects"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}

	var lines, images int
	for _, obj := range frame.Objects {
		switch obj.(type) {
		case visual.Line:
			lines++
		case visual.Image:
			images++
		}
	}
	if lines != 1 || images != 1 {
		t.Fatalf("frame has %d lines and %d images, want 1 and 1", lines, images)
	}
}
