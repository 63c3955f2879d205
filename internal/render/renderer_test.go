package render

import (
	"testing"

	"github.com/smazurov/asciinode/internal/settings"
)

func testSettings(theme string) settings.Settings {
	s := settings.Defaults()
	s.Theme = theme
	s.Definition = 3
	return s
}

func uniformFrame(w, h int, r, g, b byte) []byte {
	buf := make([]byte, w*h*3)
	for i := 0; i < len(buf); i += 3 {
		buf[i] = r
		buf[i+1] = g
		buf[i+2] = b
	}
	return buf
}

func TestRendererGeometry(t *testing.T) {
	r, err := New(testSettings("green"))
	if err != nil {
		t.Fatal(err)
	}

	cols, rows := r.Grid()
	cellW, cellH := r.CellSize()
	w, h := r.OutputSize()
	if cols <= 0 || rows <= 0 {
		t.Fatalf("grid = %dx%d", cols, rows)
	}
	if w != cols*cellW || h != rows*cellH {
		t.Errorf("output %dx%d, want %dx%d", w, h, cols*cellW, rows*cellH)
	}
	if w > canvasWidth || h > canvasHeight {
		t.Errorf("output %dx%d exceeds canvas %dx%d", w, h, canvasWidth, canvasHeight)
	}
}

func TestRenderDarkFrameIsBackground(t *testing.T) {
	r, err := New(testSettings("green"))
	if err != nil {
		t.Fatal(err)
	}
	w, h := r.OutputSize()

	out := r.Render(uniformFrame(64, 48, 0, 0, 0), 64, 48)
	if len(out) != w*h*3 {
		t.Fatalf("frame len = %d, want %d", len(out), w*h*3)
	}
	for i := 0; i < len(out); i += 3 {
		if out[i] != r.bg.R || out[i+1] != r.bg.G || out[i+2] != r.bg.B {
			t.Fatalf("pixel %d = %d,%d,%d, want background", i/3, out[i], out[i+1], out[i+2])
		}
	}
}

func TestRenderBrightFrameDrawsGlyphs(t *testing.T) {
	r, err := New(testSettings("green"))
	if err != nil {
		t.Fatal(err)
	}

	out := r.Render(uniformFrame(64, 48, 255, 255, 255), 64, 48)
	lit := 0
	for i := 0; i < len(out); i += 3 {
		if out[i] != r.bg.R || out[i+1] != r.bg.G || out[i+2] != r.bg.B {
			lit++
		}
	}
	if lit == 0 {
		t.Error("bright frame rendered no glyph pixels")
	}
}

func TestRenderShortFrame(t *testing.T) {
	r, err := New(testSettings("green"))
	if err != nil {
		t.Fatal(err)
	}
	w, h := r.OutputSize()

	// Truncated source buffer must not panic; output is plain background.
	out := r.Render(make([]byte, 10), 64, 48)
	if len(out) != w*h*3 {
		t.Fatalf("frame len = %d", len(out))
	}
	for i := 0; i < len(out); i += 3 {
		if out[i] != r.bg.R {
			t.Fatal("short frame produced non-background pixels")
		}
	}
}

func TestRenderInvert(t *testing.T) {
	s := testSettings("green")
	s.Invert = true
	r, err := New(s)
	if err != nil {
		t.Fatal(err)
	}

	// Inverted, a black frame maps to the densest character.
	out := r.Render(uniformFrame(64, 48, 0, 0, 0), 64, 48)
	lit := 0
	for i := 0; i < len(out); i += 3 {
		if out[i] != r.bg.R || out[i+1] != r.bg.G || out[i+2] != r.bg.B {
			lit++
		}
	}
	if lit == 0 {
		t.Error("inverted black frame rendered nothing")
	}
}

func TestSetStyleKeepsGeometry(t *testing.T) {
	r, err := New(testSettings("green"))
	if err != nil {
		t.Fatal(err)
	}
	w0, h0 := r.OutputSize()

	r.SetStyle(settings.RGB{R: 255}, settings.RGB{B: 20}, settings.CurveSigmoid, true)
	w1, h1 := r.OutputSize()
	if w0 != w1 || h0 != h1 {
		t.Errorf("style change moved geometry %dx%d -> %dx%d", w0, h0, w1, h1)
	}
	if r.fg != (settings.RGB{R: 255}) || r.bg != (settings.RGB{B: 20}) {
		t.Error("colors not applied")
	}
	if r.curve != settings.CurveSigmoid || !r.invert {
		t.Error("curve/invert not applied")
	}
}

func TestMapToChars(t *testing.T) {
	r, err := New(testSettings("green"))
	if err != nil {
		t.Fatal(err)
	}

	chars := r.mapToChars([]float32{0, 1})
	n := len(r.charset)
	if chars[0] != r.charset[0] {
		t.Errorf("brightness 0 -> %q, want %q", chars[0], r.charset[0])
	}
	if chars[1] != r.charset[n-1] {
		t.Errorf("brightness 1 -> %q, want %q", chars[1], r.charset[n-1])
	}
}

func TestDownsampleBounds(t *testing.T) {
	r, err := New(testSettings("green"))
	if err != nil {
		t.Fatal(err)
	}

	// Source much smaller than the grid; must not index out of bounds and
	// every cell stays normalized.
	gray := make([]uint8, 8*6)
	for i := range gray {
		gray[i] = 128
	}
	grid := r.downsample(gray, 8, 6)
	if len(grid) != r.cols*r.rows {
		t.Fatalf("grid len = %d, want %d", len(grid), r.cols*r.rows)
	}
	for i, v := range grid {
		if v < 0 || v > 1 {
			t.Fatalf("cell %d = %v out of range", i, v)
		}
	}
}

func TestUniformFrameMapsUniformly(t *testing.T) {
	src := uniformFrame(640, 480, 128, 128, 128)

	for definition := 1; definition <= 10; definition++ {
		s := settings.Defaults()
		s.Theme = "green"
		s.Definition = definition
		r, err := New(s)
		if err != nil {
			t.Fatalf("definition %d: %v", definition, err)
		}

		gray := grayscale(src, 640, 480)
		grid := r.downsample(gray, 640, 480)
		chars := r.mapToChars(grid)
		for i, ch := range chars {
			if ch != chars[0] {
				t.Fatalf("definition %d: cell %d = %q, want %q everywhere",
					definition, i, ch, chars[0])
			}
		}
	}
}

func TestColorModePicksSourceColors(t *testing.T) {
	r, err := New(testSettings("color"))
	if err != nil {
		t.Fatal(err)
	}
	if !r.colorMode {
		t.Fatal("color theme did not enable color mode")
	}

	// Pure red frame: any lit pixel must be red-dominant.
	out := r.Render(uniformFrame(64, 48, 255, 0, 0), 64, 48)
	lit := 0
	for i := 0; i < len(out); i += 3 {
		if out[i] == r.bg.R && out[i+1] == r.bg.G && out[i+2] == r.bg.B {
			continue
		}
		lit++
		if out[i] < out[i+1] || out[i] < out[i+2] {
			t.Fatalf("pixel %d = %d,%d,%d not red-dominant", i/3, out[i], out[i+1], out[i+2])
		}
	}
	if lit == 0 {
		t.Error("color mode rendered nothing for a red frame")
	}
}

func TestMatrixThemeRenders(t *testing.T) {
	s := testSettings("matrix")
	r, err := New(s)
	if err != nil {
		t.Fatal(err)
	}
	if r.rain == nil {
		t.Fatal("matrix theme did not start the rain simulation")
	}
	w, h := r.OutputSize()

	out := r.Render(uniformFrame(64, 48, 128, 128, 128), 64, 48)
	if len(out) != w*h*3 {
		t.Fatalf("frame len = %d", len(out))
	}
	lit := 0
	for i := 0; i < len(out); i += 3 {
		if out[i] != r.bg.R || out[i+1] != r.bg.G || out[i+2] != r.bg.B {
			lit++
		}
	}
	if lit == 0 {
		t.Error("matrix frame rendered nothing")
	}
}
