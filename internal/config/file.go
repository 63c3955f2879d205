package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/asciinode/internal/settings"
)

// fileSettings mirrors the optional [settings] table of the config file.
// Pointer fields distinguish absent keys from zero values, so a file edit
// patches only the keys it names.
type fileSettings struct {
	Settings struct {
		CameraIndex  *int    `toml:"camera_index"`
		Resolution   *string `toml:"resolution"`
		FPS          *int    `toml:"fps"`
		OutputDevice *string `toml:"output_device"`
		Definition   *int    `toml:"definition"`
		Theme        *string `toml:"theme"`
		FGColor      *string `toml:"fg_color"`
		BGColor      *string `toml:"bg_color"`
		Curve        *string `toml:"brightness_curve"`
		Invert       *bool   `toml:"invert"`
	} `toml:"settings"`
}

// LoadSettingsPatch parses the [settings] table into a patch. A missing
// table yields an empty patch; malformed values are errors so a broken edit
// never half-applies.
func LoadSettingsPatch(path string) (settings.Patch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return settings.Patch{}, fmt.Errorf("read config file: %w", err)
	}

	var file fileSettings
	if err := toml.Unmarshal(data, &file); err != nil {
		return settings.Patch{}, fmt.Errorf("parse config file: %w", err)
	}

	s := file.Settings
	var p settings.Patch
	p.CameraIndex = s.CameraIndex
	p.FPS = s.FPS
	p.OutputDevice = s.OutputDevice
	p.Definition = s.Definition
	p.Theme = s.Theme
	p.Invert = s.Invert

	if s.Resolution != nil {
		if *s.Resolution == "" || *s.Resolution == "auto" {
			p.ClearResolution = true
		} else {
			res, err := settings.ParseResolution(*s.Resolution)
			if err != nil {
				return settings.Patch{}, err
			}
			p.Resolution = &res
		}
	}
	if s.FGColor != nil {
		if *s.FGColor == "" {
			p.ClearFGColor = true
		} else {
			c, err := settings.ParseHexColor(*s.FGColor)
			if err != nil {
				return settings.Patch{}, err
			}
			p.FGColor = &c
		}
	}
	if s.BGColor != nil {
		if *s.BGColor == "" {
			p.ClearBGColor = true
		} else {
			c, err := settings.ParseHexColor(*s.BGColor)
			if err != nil {
				return settings.Patch{}, err
			}
			p.BGColor = &c
		}
	}
	if s.Curve != nil {
		c, err := settings.ParseCurve(*s.Curve)
		if err != nil {
			return settings.Patch{}, err
		}
		p.Curve = &c
	}

	return p, nil
}
