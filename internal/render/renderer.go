// Package render turns RGB camera frames into glyph-composited frames: a
// brightness grid is sampled from the source, mapped through the active
// curve and charset, and drawn from the pre-rasterized glyph cache. The
// matrix theme adds a rain simulation and bloom pass on top.
package render

import (
	"fmt"
	"math"
	"time"

	"github.com/smazurov/asciinode/internal/glyph"
	"github.com/smazurov/asciinode/internal/settings"
)

// Reference canvas for deriving the font size: the glyph grid is scaled so
// the configured column count fills this width, independent of the camera
// resolution. The actual output frame is exactly grid x cell pixels.
const (
	canvasWidth  = 1280
	canvasHeight = 720
)

const minFontSize = 6.0

// Renderer converts camera frames into composited glyph frames. Not safe
// for concurrent use; the render stage owns it.
type Renderer struct {
	cache   *glyph.Cache
	charset []rune
	fg      settings.RGB
	bg      settings.RGB
	curve   settings.Curve
	invert  bool

	cols int
	rows int
	outW int
	outH int

	rain       *rainState
	lastRender time.Time
	bloomBuf   []uint16
	bloomTmp   []uint16
	colorMode  bool
}

// New builds a renderer for the given settings, probing the font so the
// configured definition's column count fills the reference canvas.
func New(s settings.Settings) (*Renderer, error) {
	columns, charset := settings.DefinitionParams(s.Definition, s.Theme)
	fg, bg := s.EffectiveColors()

	mirror := s.Theme == "matrix"
	bold := s.Theme == "matrix"

	// Probe at a reference size to learn the width-per-point ratio, then
	// solve for the size that makes `columns` cells span the canvas.
	const probeSize = 100.0
	probe, err := glyph.NewCache(charset, probeSize, mirror, false)
	if err != nil {
		return nil, err
	}
	advancePerUnit := float64(probe.CellWidth) / probeSize
	desiredCellW := float64(canvasWidth) / float64(columns)
	fontSize := desiredCellW / advancePerUnit
	if fontSize < minFontSize {
		fontSize = minFontSize
	}

	cache, err := glyph.NewCache(charset, fontSize, mirror, bold)
	if err != nil {
		return nil, err
	}

	cellW, cellH := cache.CellWidth, cache.CellHeight
	cols := columns
	if max := canvasWidth / cellW; cols > max {
		cols = max
	}
	rows := canvasHeight / cellH
	if cols == 0 || rows == 0 {
		return nil, fmt.Errorf("font size %.1f yields cell %dx%d, too large for %dx%d canvas",
			fontSize, cellW, cellH, canvasWidth, canvasHeight)
	}

	r := &Renderer{
		cache:      cache,
		charset:    charset,
		fg:         fg,
		bg:         bg,
		curve:      s.Curve,
		invert:     s.Invert,
		cols:       cols,
		rows:       rows,
		outW:       cols * cellW,
		outH:       rows * cellH,
		lastRender: time.Now(),
		colorMode:  s.Theme == "color",
	}

	if s.Theme == "matrix" {
		r.rain = newRainState(cols, rows, len(charset), true)
		dsW := r.outW / bloomDownsample
		dsH := r.outH / bloomDownsample
		r.bloomBuf = make([]uint16, dsW*dsH*3)
		r.bloomTmp = make([]uint16, dsW*dsH*3)
	}

	return r, nil
}

// OutputSize returns the composited frame dimensions in pixels.
func (r *Renderer) OutputSize() (width, height int) {
	return r.outW, r.outH
}

// Grid returns the character grid dimensions.
func (r *Renderer) Grid() (cols, rows int) {
	return r.cols, r.rows
}

// CellSize returns the glyph cell dimensions in pixels.
func (r *Renderer) CellSize() (w, h int) {
	return r.cache.CellWidth, r.cache.CellHeight
}

// SetStyle updates colors, curve and invert without touching the glyph
// cache. Geometry-affecting changes (definition, theme) need a new
// Renderer.
func (r *Renderer) SetStyle(fg, bg settings.RGB, curve settings.Curve, invert bool) {
	r.fg = fg
	r.bg = bg
	r.curve = curve
	r.invert = invert
}

// Render composites one frame. The returned buffer is freshly allocated
// RGB24 of OutputSize; src is never retained.
func (r *Renderer) Render(src []byte, srcW, srcH int) []byte {
	out := make([]byte, r.outW*r.outH*3)
	for i := 0; i < len(out); i += 3 {
		out[i] = r.bg.R
		out[i+1] = r.bg.G
		out[i+2] = r.bg.B
	}

	// Short frames from a glitching camera produce a plain background.
	if srcW <= 0 || srcH <= 0 || len(src) < srcW*srcH*3 {
		return out
	}

	gray := grayscale(src, srcW, srcH)
	grid := r.downsample(gray, srcW, srcH)
	for i, b := range grid {
		grid[i] = float32(math.Sqrt(float64(b))) // lift midtones
	}

	switch {
	case r.rain != nil:
		now := time.Now()
		dt := float32(now.Sub(r.lastRender).Seconds())
		r.lastRender = now

		r.rain.advance(dt)
		cells := r.rain.computeCells(grid, r.charset, r.curve, r.invert, r.fg)
		r.compositeCells(cells, out)
		applyBloom(out, r.bloomBuf, r.bloomTmp, r.outW, r.outH)

	case r.colorMode:
		colors := r.downsampleColor(src, srcW, srcH)
		chars := r.mapToChars(grid)
		cells := make([]cellRender, len(grid))
		for i := range grid {
			t := r.curve.Apply(grid[i])
			if r.invert {
				t = 1 - t
			}
			cells[i] = cellRender{ch: chars[i], color: colors[i], intensity: t}
		}
		r.compositeCells(cells, out)

	default:
		chars := r.mapToChars(grid)
		r.compositeChars(chars, out)
	}

	return out
}

// grayscale converts RGB24 to Rec.709 luminance.
func grayscale(rgb []byte, w, h int) []uint8 {
	n := w * h
	gray := make([]uint8, n)
	for i := 0; i < n; i++ {
		r := float32(rgb[i*3])
		g := float32(rgb[i*3+1])
		b := float32(rgb[i*3+2])
		gray[i] = uint8(0.2126*r + 0.7152*g + 0.0722*b + 0.5)
	}
	return gray
}

// downsample block-averages the luminance image onto the character grid,
// returning normalized brightness per cell.
func (r *Renderer) downsample(gray []uint8, srcW, srcH int) []float32 {
	grid := make([]float32, r.cols*r.rows)
	cellW := float32(srcW) / float32(r.cols)
	cellH := float32(srcH) / float32(r.rows)

	for row := 0; row < r.rows; row++ {
		for col := 0; col < r.cols; col++ {
			x0 := int(float32(col) * cellW)
			y0 := int(float32(row) * cellH)
			x1 := int(float32(col+1) * cellW)
			y1 := int(float32(row+1) * cellH)
			if x1 > srcW {
				x1 = srcW
			}
			if y1 > srcH {
				y1 = srcH
			}

			var sum, count uint32
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					sum += uint32(gray[y*srcW+x])
					count++
				}
			}
			if count > 0 {
				grid[row*r.cols+col] = float32(sum) / float32(count) / 255
			}
		}
	}
	return grid
}

// downsampleColor block-averages the source colors onto the grid.
func (r *Renderer) downsampleColor(rgb []byte, srcW, srcH int) []settings.RGB {
	grid := make([]settings.RGB, 0, r.cols*r.rows)
	cellW := float32(srcW) / float32(r.cols)
	cellH := float32(srcH) / float32(r.rows)

	for row := 0; row < r.rows; row++ {
		for col := 0; col < r.cols; col++ {
			x0 := int(float32(col) * cellW)
			y0 := int(float32(row) * cellH)
			x1 := int(float32(col+1) * cellW)
			y1 := int(float32(row+1) * cellH)
			if x1 > srcW {
				x1 = srcW
			}
			if y1 > srcH {
				y1 = srcH
			}

			var sumR, sumG, sumB, count uint32
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					idx := (y*srcW + x) * 3
					sumR += uint32(rgb[idx])
					sumG += uint32(rgb[idx+1])
					sumB += uint32(rgb[idx+2])
					count++
				}
			}
			if count > 0 {
				grid = append(grid, settings.RGB{
					R: uint8(sumR / count),
					G: uint8(sumG / count),
					B: uint8(sumB / count),
				})
			} else {
				grid = append(grid, settings.RGB{})
			}
		}
	}
	return grid
}

// mapToChars picks one charset rune per cell: curve, optional invert, then
// an evenly spaced bucket per rune.
func (r *Renderer) mapToChars(grid []float32) []rune {
	n := len(r.charset)
	chars := make([]rune, len(grid))
	for i, brightness := range grid {
		t := r.curve.Apply(brightness)
		if r.invert {
			t = 1 - t
		}
		idx := int(t*float32(n-1) + 0.5)
		if idx > n-1 {
			idx = n - 1
		}
		if idx < 0 {
			idx = 0
		}
		chars[i] = r.charset[idx]
	}
	return chars
}

// compositeChars blits plain foreground-colored glyphs.
func (r *Renderer) compositeChars(chars []rune, out []byte) {
	cellW, cellH := r.cache.CellWidth, r.cache.CellHeight
	ascent := int(r.cache.Ascent)

	for row := 0; row < r.rows; row++ {
		for col := 0; col < r.cols; col++ {
			ch := chars[row*r.cols+col]
			if ch == ' ' {
				continue
			}
			g, ok := r.cache.Get(ch)
			if !ok || g.Width == 0 || g.Height == 0 {
				continue
			}

			gx := col*cellW + g.XMin
			gy := row*cellH + ascent - g.YMin - g.Height
			r.blit(g.Coverage, g.Width, g.Height, gx, gy, r.fg, out)
		}
	}
}

// blit alpha-blends a coverage bitmap at (gx,gy) with the given color.
func (r *Renderer) blit(coverage []uint8, w, h, gx, gy int, color settings.RGB, out []byte) {
	for y := 0; y < h; y++ {
		oy := gy + y
		if oy < 0 || oy >= r.outH {
			continue
		}
		for x := 0; x < w; x++ {
			ox := gx + x
			if ox < 0 || ox >= r.outW {
				continue
			}
			a := uint16(coverage[y*w+x])
			if a == 0 {
				continue
			}
			idx := (oy*r.outW + ox) * 3
			if a == 255 {
				out[idx] = color.R
				out[idx+1] = color.G
				out[idx+2] = color.B
				continue
			}
			inv := 255 - a
			out[idx] = uint8((uint16(color.R)*a + uint16(out[idx])*inv) / 255)
			out[idx+1] = uint8((uint16(color.G)*a + uint16(out[idx+1])*inv) / 255)
			out[idx+2] = uint8((uint16(color.B)*a + uint16(out[idx+2])*inv) / 255)
		}
	}
}

// compositeCells blits per-cell colored glyphs at the cell's intensity,
// blending toward the pre-dilated glow variant for bright rain cells.
func (r *Renderer) compositeCells(cells []cellRender, out []byte) {
	cellW, cellH := r.cache.CellWidth, r.cache.CellHeight
	ascent := int(r.cache.Ascent)

	for row := 0; row < r.rows; row++ {
		for col := 0; col < r.cols; col++ {
			cell := cells[row*r.cols+col]
			if cell.ch == ' ' || cell.intensity < 0.005 {
				continue
			}
			g, ok := r.cache.Get(cell.ch)
			if !ok || g.Width == 0 || g.Height == 0 {
				continue
			}

			effR := uint16(float32(cell.color.R) * cell.intensity)
			effG := uint16(float32(cell.color.G) * cell.intensity)
			effB := uint16(float32(cell.color.B) * cell.intensity)

			cellX := col * cellW
			cellY := row * cellH

			if g.Glow != nil && cell.intensity > 0.2 {
				blend := (cell.intensity - 0.2) / 0.8
				if blend > 1 {
					blend = 1
				}
				blend *= blend

				glowX := cellX + g.Glow.XMin
				glowY := cellY + ascent - g.Glow.YMin - g.Glow.Height
				expand := g.XMin - g.Glow.XMin

				for gy := 0; gy < g.Glow.Height; gy++ {
					oy := glowY + gy
					if oy < 0 || oy >= r.outH {
						continue
					}
					for gx := 0; gx < g.Glow.Width; gx++ {
						ox := glowX + gx
						if ox < 0 || ox >= r.outW {
							continue
						}

						glowA := float32(g.Glow.Coverage[gy*g.Glow.Width+gx])
						var baseA float32
						bx, by := gx-expand, gy-expand
						if bx >= 0 && bx < g.Width && by >= 0 && by < g.Height {
							baseA = float32(g.Coverage[by*g.Width+bx])
						}

						a := uint16(baseA + (glowA-baseA)*blend)
						if a == 0 {
							continue
						}
						idx := (oy*r.outW + ox) * 3
						inv := 255 - a
						out[idx] = uint8((effR*a + uint16(out[idx])*inv) / 255)
						out[idx+1] = uint8((effG*a + uint16(out[idx+1])*inv) / 255)
						out[idx+2] = uint8((effB*a + uint16(out[idx+2])*inv) / 255)
					}
				}
				continue
			}

			gx := cellX + g.XMin
			gy := cellY + ascent - g.YMin - g.Height
			for y := 0; y < g.Height; y++ {
				oy := gy + y
				if oy < 0 || oy >= r.outH {
					continue
				}
				for x := 0; x < g.Width; x++ {
					ox := gx + x
					if ox < 0 || ox >= r.outW {
						continue
					}
					a := uint16(g.Coverage[y*g.Width+x])
					if a == 0 {
						continue
					}
					idx := (oy*r.outW + ox) * 3
					inv := 255 - a
					out[idx] = uint8((effR*a + uint16(out[idx])*inv) / 255)
					out[idx+1] = uint8((effG*a + uint16(out[idx+1])*inv) / 255)
					out[idx+2] = uint8((effB*a + uint16(out[idx+2])*inv) / 255)
				}
			}
		}
	}
}
