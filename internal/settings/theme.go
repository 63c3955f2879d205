package settings

import (
	"fmt"
	"strings"
)

// RGB is an 8-bit-per-channel color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex returns the color as a 6-digit lowercase hex string without a leading '#'.
func (c RGB) Hex() string {
	return fmt.Sprintf("%02x%02x%02x", c.R, c.G, c.B)
}

// ParseHexColor parses a 6-digit hex color, with or without a leading '#'.
func ParseHexColor(s string) (RGB, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) != 6 {
		return RGB{}, fmt.Errorf("%w: color %q must be 6 hex digits (e.g. ff00ff)", ErrInvalid, s)
	}
	var c RGB
	if _, err := fmt.Sscanf(h, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return RGB{}, fmt.Errorf("%w: color %q must be 6 hex digits (e.g. ff00ff)", ErrInvalid, s)
	}
	return c, nil
}

// Theme is a named foreground/background color pair. The "color" theme keeps
// the source frame's colors per cell instead of tinting with FG.
type Theme struct {
	Name string
	FG   RGB
	BG   RGB
}

// NaturalColor reports whether glyphs should be tinted with the per-cell
// source color instead of the theme foreground.
func (t Theme) NaturalColor() bool { return t.Name == "color" }

var themes = map[string]Theme{
	"mono":      {Name: "mono", FG: RGB{255, 255, 255}, BG: RGB{0, 0, 0}},
	"green":     {Name: "green", FG: RGB{0, 255, 0}, BG: RGB{0, 10, 0}},
	"amber":     {Name: "amber", FG: RGB{255, 176, 0}, BG: RGB{20, 10, 0}},
	"blue":      {Name: "blue", FG: RGB{100, 180, 255}, BG: RGB{0, 5, 20}},
	"matrix":    {Name: "matrix", FG: RGB{0, 255, 0}, BG: RGB{0, 15, 0}},
	"vaporwave": {Name: "vaporwave", FG: RGB{255, 100, 255}, BG: RGB{10, 0, 20}},
	"fire":      {Name: "fire", FG: RGB{255, 100, 0}, BG: RGB{20, 5, 0}},
	"color":     {Name: "color", FG: RGB{255, 255, 255}, BG: RGB{0, 0, 0}},
}

// ThemeByName looks up a theme by name.
func ThemeByName(name string) (Theme, bool) {
	t, ok := themes[name]
	return t, ok
}

// ThemeNames returns all theme names in display order.
func ThemeNames() []string {
	return []string{"mono", "green", "amber", "blue", "matrix", "vaporwave", "fire", "color"}
}
