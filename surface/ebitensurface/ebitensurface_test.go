package ebitensurface

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"runtime"
	"testing"

	"github.com/caffeineduck/kame/surface"
	"github.com/hajimehoshi/ebiten/v2"
)

var _ surface.Surface = (*Surface)(nil)

// testGame runs the tests from inside the game loop, where image pixels
// can be read back.
type testGame struct {
	m    *testing.M
	code int
}

func (g *testGame) Update() error {
	g.code = g.m.Run()
	return ebiten.Termination
}

func (*testGame) Draw(*ebiten.Image) {}

func (*testGame) Layout(int, int) (int, int) { return 64, 64 }

func TestMain(m *testing.M) {
	if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		fmt.Println("ebitensurface: no display, skipping")
		os.Exit(0)
	}
	g := &testGame{m: m}
	if err := ebiten.RunGameWithOptions(g, &ebiten.RunGameOptions{InitUnfocused: true}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(g.code)
}

func alphaAt(img *ebiten.Image, x, y int) uint32 {
	_, _, _, a := img.At(x, y).RGBA()
	return a
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestTransformStack(t *testing.T) {
	s := New(40, 40)

	s.Pop() // empty stack is a no-op

	s.Push()
	s.Translate(20, 20)
	s.Rotate(math.Pi / 2)

	// The rotation applies first, then the translation.
	x, y := s.geom.Apply(10, 0)
	if math.Abs(x-20) > 1e-9 || math.Abs(y-30) > 1e-9 {
		t.Errorf("Apply(10, 0) = (%g, %g), want (20, 30)", x, y)
	}

	s.Push()
	s.Translate(5, 0)
	s.Pop()
	if x2, y2 := s.geom.Apply(10, 0); x2 != x || y2 != y {
		t.Errorf("inner Pop did not restore: (%g, %g)", x2, y2)
	}

	s.Pop()
	if x, y := s.geom.Apply(10, 0); x != 10 || y != 0 {
		t.Errorf("after Pop Apply(10, 0) = (%g, %g), want identity", x, y)
	}
	if len(s.stack) != 0 {
		t.Errorf("stack depth = %d, want 0", len(s.stack))
	}
}

func TestPathUsesTransformAtAddTime(t *testing.T) {
	s := New(40, 40)

	s.Push()
	s.Translate(20, 20)
	s.MoveTo(0, 0)
	s.Pop()
	s.LineTo(0, 0)

	if len(s.path) != 1 || len(s.path[0]) != 2 {
		t.Fatalf("path = %v, want one subpath of two points", s.path)
	}
	if got := s.path[0][0]; got != (point{20, 20}) {
		t.Errorf("first point = %v, want {20 20}", got)
	}
	if got := s.path[0][1]; got != (point{0, 0}) {
		t.Errorf("second point = %v, want {0 0}", got)
	}
}

func TestStrokeResetsPath(t *testing.T) {
	s := New(40, 40)
	s.SetStrokeColor(color.White)
	s.SetLineWidth(2)

	s.MoveTo(0, 10)
	s.LineTo(40, 10)
	s.Stroke()
	if len(s.path) != 0 {
		t.Fatalf("path after Stroke = %v, want empty", s.path)
	}
	if alphaAt(s.target, 20, 10) == 0 {
		t.Fatal("expected stroked pixel at (20,10)")
	}

	s.Clear()
	s.MoveTo(0, 30)
	s.LineTo(40, 30)
	s.Stroke()

	if alphaAt(s.target, 20, 10) != 0 {
		t.Error("first line was stroked again after Clear")
	}
	if alphaAt(s.target, 20, 30) == 0 {
		t.Error("expected second line at (20,30)")
	}
}

func TestDrawImageCentered(t *testing.T) {
	s := New(40, 40)
	src := solid(4, 4, color.RGBA{255, 0, 0, 255})

	for i := 0; i < 2; i++ {
		s.Push()
		s.Translate(20, 20)
		s.DrawImage(src, -2, -2)
		s.Pop()
	}

	r, _, _, a := s.target.At(20, 20).RGBA()
	if r == 0 || a == 0 {
		t.Errorf("expected red at center, got r=%d a=%d", r, a)
	}
	if alphaAt(s.target, 5, 5) != 0 {
		t.Error("expected (5,5) untouched")
	}
	if n := s.textures.Len(); n != 1 {
		t.Errorf("textures = %d, want 1 for one source image", n)
	}
}

func TestPresentScales(t *testing.T) {
	s := New(20, 20)
	s.DrawImage(solid(20, 20, color.RGBA{0, 0, 255, 255}), 0, 0)

	screen := ebiten.NewImage(40, 40)
	s.Present(screen)

	_, _, b, a := screen.At(35, 35).RGBA()
	if b == 0 || a == 0 {
		t.Errorf("expected scaled image to cover (35,35), got b=%d a=%d", b, a)
	}
}
