package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/caffeineduck/kame/bridge"
	"github.com/caffeineduck/kame/surface"
	"github.com/caffeineduck/kame/visual"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server with a drawing page",
	Long: `Start an HTTP server that accepts code and serves the rendered canvas.

Endpoints:
  GET    /               Page with display, code box and exec button
  POST   /exec           Submit code {"code":"...","wait":true}
  GET    /display.png    Latest rendered frame
  GET    /frame          Latest frame objects as JSON
  GET    /health         Health check`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

type execRequest struct {
	Code    string `json:"code"`
	Timeout string `json:"timeout,omitempty"`
	Wait    bool   `json:"wait,omitempty"`
}

type execResponse struct {
	DurationMs int64  `json:"duration_ms"`
	Frames     int64  `json:"frames"`
	Error      string `json:"error,omitempty"`
}

type frameResponse struct {
	Frames  int64        `json:"frames"`
	Objects visual.Frame `json:"objects"`
	Error   string       `json:"error,omitempty"`
}

type submitter interface {
	Submit(ctx context.Context, code string) error
	WaitRendered(ctx context.Context) error
	Frames() int64
}

// server publishes the canvas after every pass so readers never see a
// half-drawn frame.
type server struct {
	bridge  submitter
	canvas  *surface.Canvas
	timeout time.Duration

	mu      sync.RWMutex
	png     []byte
	objects []visual.Object
	lastErr string
}

func newServer(canvas *surface.Canvas, timeout time.Duration) *server {
	return &server{canvas: canvas, timeout: timeout, objects: []visual.Object{}}
}

func (s *server) onRendered(objs []visual.Object, err error) {
	var buf bytes.Buffer
	encErr := s.canvas.EncodePNG(&buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	if encErr == nil {
		s.png = buf.Bytes()
	}
	s.objects = objs
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /exec", s.handleExec)
	mux.HandleFunc("GET /display.png", s.handleDisplay)
	mux.HandleFunc("GET /frame", s.handleFrame)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func (s *server) handleExec(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "code required", http.StatusBadRequest)
		return
	}

	timeout := s.timeout
	if req.Timeout != "" {
		if d, err := time.ParseDuration(req.Timeout); err == nil {
			timeout = d
		}
	}

	ctx := r.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.bridge.Submit(ctx, req.Code)
	if err == nil && req.Wait {
		err = s.bridge.WaitRendered(ctx)
	}

	resp := execResponse{
		DurationMs: time.Since(start).Milliseconds(),
		Frames:     s.bridge.Frames(),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	data := s.png
	s.mu.RUnlock()

	if data == nil {
		var buf bytes.Buffer
		if err := s.canvas.EncodePNG(&buf); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data = buf.Bytes()
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func (s *server) handleFrame(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := frameResponse{
		Frames:  s.bridge.Frames(),
		Objects: visual.Frame(s.objects),
		Error:   s.lastErr,
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>kame</title></head>
<body>
<img id="{{.Display}}" src="/display.png" width="{{.Width}}" height="{{.Height}}" style="border:1px solid #ccc">
<br>
<textarea id="{{.Code}}" rows="8" cols="60"></textarea>
<br>
<button id="{{.Exec}}">exec</button>
<pre id="status"></pre>
<script>
const display = document.getElementById("{{.Display}}");
const status = document.getElementById("status");
const refresh = () => { display.src = "/display.png?t=" + Date.now(); };
document.getElementById("{{.Exec}}").onclick = async () => {
  const code = document.getElementById("{{.Code}}").value;
  const resp = await fetch("/exec", {method: "POST", body: JSON.stringify({code: code, wait: true})});
  const body = await resp.json();
  status.textContent = body.error || "";
  refresh();
};
setInterval(refresh, 1000);
</script>
</body>
</html>
`))

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	indexTemplate.Execute(w, struct {
		Display, Code, Exec string
		Width, Height       int
	}{bridge.DisplayID, bridge.CodeID, bridge.ExecID, s.canvas.Width(), s.canvas.Height()})
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	canvas := surface.NewCanvas(cfg.Width, cfg.Height)
	srv := newServer(canvas, cfg.Timeout)

	h, err := openHost(ctx, cmd, cfg, canvas, bridge.OnRendered(srv.onRendered))
	if err != nil {
		return err
	}
	defer h.Close()
	srv.bridge = h.Bridge

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: srv.routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(os.Stderr, "kame server listening on %s\n", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
