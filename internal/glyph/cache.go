// Package glyph pre-rasterizes a character set into coverage bitmaps with
// uniform cell geometry. The renderer composites these bitmaps per grid
// cell; nothing rasterizes on the hot path.
package glyph

import (
	"fmt"
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/smazurov/asciinode/internal/logging"
)

// Glow is a pre-dilated glyph variant with an expanded bounding box, used
// for intensity-driven thickening in the rain theme.
type Glow struct {
	Coverage []uint8
	Width    int
	Height   int
	XMin     int
	YMin     int
}

// Bitmap is one rasterized glyph. Coverage is row-major alpha (0-255).
// XMin is the horizontal bearing from the cell origin; YMin is the offset
// of the bitmap's bottom edge above the baseline (negative below).
type Bitmap struct {
	Coverage []uint8
	Width    int
	Height   int
	XMin     int
	YMin     int
	Glow     *Glow
}

// Cache holds the rasterized charset. Immutable after construction; the
// renderer swaps whole caches when geometry-affecting settings change.
type Cache struct {
	glyphs map[rune]*Bitmap

	// CellWidth and CellHeight are uniform across the charset.
	CellWidth  int
	CellHeight int
	// Ascent is the baseline offset from the cell top, in pixels.
	Ascent float32
}

var parsedFont *opentype.Font

func loadFont() (*opentype.Font, error) {
	if parsedFont != nil {
		return parsedFont, nil
	}
	f, err := opentype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse embedded font: %w", err)
	}
	parsedFont = f
	return f, nil
}

type rawGlyph struct {
	ch       rune
	coverage []uint8
	width    int
	height   int
	xmin     int
	ymin     int
	advance  fixed.Int26_6
}

func rasterize(face font.Face, ch rune) (rawGlyph, bool) {
	dot := fixed.Point26_6{}
	dr, mask, maskp, advance, ok := face.Glyph(dot, ch)
	if !ok {
		return rawGlyph{}, false
	}

	w, h := dr.Dx(), dr.Dy()
	coverage := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			coverage[y*w+x] = alphaAt(mask, maskp.X+x, maskp.Y+y)
		}
	}

	return rawGlyph{
		ch:       ch,
		coverage: coverage,
		width:    w,
		height:   h,
		xmin:     dr.Min.X,
		ymin:     -dr.Max.Y, // bottom edge relative to baseline, y-up
		advance:  advance,
	}, true
}

func alphaAt(mask image.Image, x, y int) uint8 {
	if a, ok := mask.(*image.Alpha); ok {
		return a.AlphaAt(x, y).A
	}
	_, _, _, a := mask.At(x, y).RGBA()
	return uint8(a >> 8)
}

// NewCache rasterizes charset at the given pixel size. mirror flips every
// glyph horizontally (the rain look); bold thickens strokes and attaches
// pre-dilated glow variants.
func NewCache(charset []rune, size float64, mirror, bold bool) (*Cache, error) {
	if len(charset) == 0 {
		return nil, fmt.Errorf("empty charset")
	}

	f, err := loadFont()
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("create face: %w", err)
	}
	defer face.Close()

	metrics := face.Metrics()
	ascent := float32(metrics.Ascent) / 64
	metricHeight := (metrics.Ascent + metrics.Descent).Ceil()

	log := logging.GetLogger("glyph")

	raws := make([]rawGlyph, 0, len(charset))
	maxW, maxH := 0, 0
	for _, ch := range charset {
		raw, ok := rasterize(face, ch)
		if !ok {
			if ch != ' ' {
				log.Warn("glyph missing from font", "char", string(ch), "codepoint", fmt.Sprintf("U+%04X", ch))
			}
			raw = rawGlyph{ch: ch}
		}
		if raw.width > maxW {
			maxW = raw.width
		}
		if raw.height > maxH {
			maxH = raw.height
		}
		raws = append(raws, raw)
	}

	cellHeight := metricHeight
	if maxH > cellHeight {
		cellHeight = maxH
	}
	if cellHeight < 1 {
		cellHeight = 1
	}

	// Monospace face: first glyph's advance is the cell width.
	cellWidth := raws[0].advance.Ceil()
	if maxW > cellWidth {
		cellWidth = maxW
	}
	if cellWidth < 1 {
		cellWidth = 1
	}

	glyphs := make(map[rune]*Bitmap, len(raws))
	for _, raw := range raws {
		b := &Bitmap{
			Coverage: raw.coverage,
			Width:    raw.width,
			Height:   raw.height,
			XMin:     raw.xmin,
			YMin:     raw.ymin,
		}
		if mirror && b.Width > 0 && b.Height > 0 {
			b.Coverage = mirrorBitmap(b.Coverage, b.Width, b.Height)
			b.XMin = cellWidth - raw.xmin - raw.width
		}
		if bold && b.Width > 0 && b.Height > 0 {
			bolden(b.Coverage, b.Width, b.Height)
			d1, w1, h1 := dilateExpand(b.Coverage, b.Width, b.Height)
			d2, w2, h2 := dilateExpand(d1, w1, h1)
			b.Glow = &Glow{
				Coverage: d2,
				Width:    w2,
				Height:   h2,
				XMin:     b.XMin - 2,
				YMin:     b.YMin - 2,
			}
		}
		glyphs[raw.ch] = b
	}

	return &Cache{
		glyphs:     glyphs,
		CellWidth:  cellWidth,
		CellHeight: cellHeight,
		Ascent:     ascent,
	}, nil
}

// Get returns the bitmap for ch.
func (c *Cache) Get(ch rune) (*Bitmap, bool) {
	b, ok := c.glyphs[ch]
	return b, ok
}

// mirrorBitmap flips coverage horizontally, row by row.
func mirrorBitmap(coverage []uint8, w, h int) []uint8 {
	out := make([]uint8, len(coverage))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+(w-1-x)] = coverage[y*w+x]
		}
	}
	return out
}

// dilateExpand applies a 3x3 max kernel, growing the bitmap by one pixel on
// each side. The caller adjusts XMin/YMin by -1 per call.
func dilateExpand(src []uint8, w, h int) ([]uint8, int, int) {
	nw, nh := w+2, h+2
	dst := make([]uint8, nw*nh)
	for dy := 0; dy < nh; dy++ {
		for dx := 0; dx < nw; dx++ {
			cx, cy := dx-1, dy-1
			var max uint8
			for ky := -1; ky <= 1; ky++ {
				sy := cy + ky
				if sy < 0 || sy >= h {
					continue
				}
				for kx := -1; kx <= 1; kx++ {
					sx := cx + kx
					if sx < 0 || sx >= w {
						continue
					}
					if v := src[sy*w+sx]; v > max {
						max = v
					}
				}
			}
			dst[dy*nw+dx] = max
		}
	}
	return dst, nw, nh
}

// bolden thickens strokes by ~0.5px in place: each pixel becomes the max of
// itself and half its strongest 4-neighbor, preserving anti-aliased edges.
func bolden(coverage []uint8, w, h int) {
	if w == 0 || h == 0 {
		return
	}
	src := make([]uint8, len(coverage))
	copy(src, coverage)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			orig := uint16(src[y*w+x])
			var nmax uint16
			if x > 0 && uint16(src[y*w+x-1]) > nmax {
				nmax = uint16(src[y*w+x-1])
			}
			if x+1 < w && uint16(src[y*w+x+1]) > nmax {
				nmax = uint16(src[y*w+x+1])
			}
			if y > 0 && uint16(src[(y-1)*w+x]) > nmax {
				nmax = uint16(src[(y-1)*w+x])
			}
			if y+1 < h && uint16(src[(y+1)*w+x]) > nmax {
				nmax = uint16(src[(y+1)*w+x])
			}
			v := orig
			if nmax/2 > v {
				v = nmax / 2
			}
			if v > 255 {
				v = 255
			}
			coverage[y*w+x] = uint8(v)
		}
	}
}
