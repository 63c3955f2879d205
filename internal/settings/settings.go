// Package settings defines the runtime settings model shared by the
// pipeline, the control endpoint, and the CLI: themes, brightness curves,
// definition levels, and validated patches against the current state.
package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalid marks a rejected settings value. A patch containing any invalid
// field is rejected as a whole.
var ErrInvalid = errors.New("invalid settings")

// Resolution is a capture resolution in pixels.
type Resolution struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ParseResolution parses "WxH". Trailing annotations after the digits are
// ignored, so "1920x1080 (60fps)" parses as 1920x1080.
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		w, h, ok = strings.Cut(s, "X")
	}
	if !ok {
		return Resolution{}, fmt.Errorf("%w: resolution %q must be WxH (e.g. 1920x1080)", ErrInvalid, s)
	}
	width, err := parseDimension(w)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: bad width in %q", ErrInvalid, s)
	}
	height, err := parseDimension(h)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: bad height in %q", ErrInvalid, s)
	}
	return Resolution{Width: width, Height: height}, nil
}

func parseDimension(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	end := len(s)
	for i, c := range s {
		if c < '0' || c > '9' {
			end = i
			break
		}
	}
	n, err := strconv.ParseUint(s[:end], 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("not a positive integer: %q", s)
	}
	return uint32(n), nil
}

// Settings is the complete runtime state of the daemon. A nil Resolution
// means auto-select (highest the camera offers); nil FG/BG means the theme
// colors apply.
type Settings struct {
	CameraIndex  int         `json:"camera_index"`
	Resolution   *Resolution `json:"resolution,omitempty"`
	FPS          int         `json:"fps"`
	OutputDevice string      `json:"output_device"`
	Definition   int         `json:"definition"`
	Theme        string      `json:"theme"`
	FGColor      *RGB        `json:"fg_color,omitempty"`
	BGColor      *RGB        `json:"bg_color,omitempty"`
	Curve        Curve       `json:"brightness_curve"`
	Invert       bool        `json:"invert"`
}

// Defaults returns the factory settings.
func Defaults() Settings {
	return Settings{
		CameraIndex:  -1, // auto-detect
		FPS:          30,
		OutputDevice: "/dev/video20",
		Definition:   5,
		Theme:        "matrix",
		Curve:        CurveLinear,
	}
}

// EffectiveColors resolves the foreground and background, with explicit
// overrides winning over the theme.
func (s Settings) EffectiveColors() (fg, bg RGB) {
	t, ok := ThemeByName(s.Theme)
	if !ok {
		t = themes["mono"]
	}
	fg, bg = t.FG, t.BG
	if s.FGColor != nil {
		fg = *s.FGColor
	}
	if s.BGColor != nil {
		bg = *s.BGColor
	}
	return fg, bg
}

// Validate checks every field, returning the first violation wrapped in
// ErrInvalid.
func (s Settings) Validate() error {
	if s.Definition < 1 || s.Definition > 10 {
		return fmt.Errorf("%w: definition %d out of range 1-10", ErrInvalid, s.Definition)
	}
	if s.FPS < 1 || s.FPS > 240 {
		return fmt.Errorf("%w: fps %d out of range 1-240", ErrInvalid, s.FPS)
	}
	if _, ok := ThemeByName(s.Theme); !ok {
		return fmt.Errorf("%w: unknown theme %q (available: %s)", ErrInvalid, s.Theme, strings.Join(ThemeNames(), ", "))
	}
	if _, err := ParseCurve(string(s.Curve)); err != nil {
		return err
	}
	if s.OutputDevice == "" {
		return fmt.Errorf("%w: output device path is empty", ErrInvalid)
	}
	if s.CameraIndex < -1 {
		return fmt.Errorf("%w: camera index %d", ErrInvalid, s.CameraIndex)
	}
	return nil
}

// Patch is a partial update. Nil fields are untouched. ClearResolution,
// ClearFGColor and ClearBGColor reset the corresponding optional back to
// automatic/theme behavior.
type Patch struct {
	CameraIndex     *int        `json:"camera_index,omitempty"`
	Resolution      *Resolution `json:"resolution,omitempty"`
	ClearResolution bool        `json:"clear_resolution,omitempty"`
	FPS             *int        `json:"fps,omitempty"`
	OutputDevice    *string     `json:"output_device,omitempty"`
	Definition      *int        `json:"definition,omitempty"`
	Theme           *string     `json:"theme,omitempty"`
	FGColor         *RGB        `json:"fg_color,omitempty"`
	ClearFGColor    bool        `json:"clear_fg_color,omitempty"`
	BGColor         *RGB        `json:"bg_color,omitempty"`
	ClearBGColor    bool        `json:"clear_bg_color,omitempty"`
	Curve           *Curve      `json:"brightness_curve,omitempty"`
	Invert          *bool       `json:"invert,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.CameraIndex == nil && p.Resolution == nil && !p.ClearResolution &&
		p.FPS == nil && p.OutputDevice == nil && p.Definition == nil &&
		p.Theme == nil && p.FGColor == nil && !p.ClearFGColor &&
		p.BGColor == nil && !p.ClearBGColor && p.Curve == nil && p.Invert == nil
}

// Apply returns a copy of s with the patch's set fields overwritten.
func (s Settings) Apply(p Patch) Settings {
	out := s
	if p.CameraIndex != nil {
		out.CameraIndex = *p.CameraIndex
	}
	if p.ClearResolution {
		out.Resolution = nil
	} else if p.Resolution != nil {
		r := *p.Resolution
		out.Resolution = &r
	}
	if p.FPS != nil {
		out.FPS = *p.FPS
	}
	if p.OutputDevice != nil {
		out.OutputDevice = *p.OutputDevice
	}
	if p.Definition != nil {
		out.Definition = *p.Definition
	}
	if p.Theme != nil {
		out.Theme = *p.Theme
	}
	if p.ClearFGColor {
		out.FGColor = nil
	} else if p.FGColor != nil {
		c := *p.FGColor
		out.FGColor = &c
	}
	if p.ClearBGColor {
		out.BGColor = nil
	} else if p.BGColor != nil {
		c := *p.BGColor
		out.BGColor = &c
	}
	if p.Curve != nil {
		out.Curve = *p.Curve
	}
	if p.Invert != nil {
		out.Invert = *p.Invert
	}
	return out
}

// Merge overlays later onto p, later fields winning per field.
func (p Patch) Merge(later Patch) Patch {
	out := p
	if later.CameraIndex != nil {
		out.CameraIndex = later.CameraIndex
	}
	if later.ClearResolution {
		out.ClearResolution = true
		out.Resolution = nil
	} else if later.Resolution != nil {
		out.Resolution = later.Resolution
		out.ClearResolution = false
	}
	if later.FPS != nil {
		out.FPS = later.FPS
	}
	if later.OutputDevice != nil {
		out.OutputDevice = later.OutputDevice
	}
	if later.Definition != nil {
		out.Definition = later.Definition
	}
	if later.Theme != nil {
		out.Theme = later.Theme
	}
	if later.ClearFGColor {
		out.ClearFGColor = true
		out.FGColor = nil
	} else if later.FGColor != nil {
		out.FGColor = later.FGColor
		out.ClearFGColor = false
	}
	if later.ClearBGColor {
		out.ClearBGColor = true
		out.BGColor = nil
	} else if later.BGColor != nil {
		out.BGColor = later.BGColor
		out.ClearBGColor = false
	}
	if later.Curve != nil {
		out.Curve = later.Curve
	}
	if later.Invert != nil {
		out.Invert = later.Invert
	}
	return out
}
