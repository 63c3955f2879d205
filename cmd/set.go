package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/asciinode/internal/control"
	"github.com/smazurov/asciinode/internal/settings"
)

// CreateSetCmd creates the set command, which patches a running daemon
// over the control socket. Only flags the user actually passed end up in
// the patch.
func CreateSetCmd() *cobra.Command {
	var (
		cameraIndex  int
		resolution   string
		fps          int
		outputDevice string
		definition   int
		theme        string
		fgColor      string
		bgColor      string
		curve        string
		invert       bool
		socket       string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings of the running daemon",
		Long: `Applies a partial settings update to the running daemon. Unset flags are ` +
			`left untouched; the whole update is rejected if any value is invalid.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			patch, err := buildPatch(cmd, cameraIndex, resolution, fps, outputDevice,
				definition, theme, fgColor, bgColor, curve, invert)
			if err != nil {
				return err
			}
			if patch.IsZero() {
				return fmt.Errorf("nothing to change, pass at least one flag (see --help)")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			applied, err := control.NewClient(socket).Set(ctx, patch)
			if err != nil {
				return err
			}
			printSettings(os.Stdout, applied)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&cameraIndex, "camera-index", "i", 0, "camera index (-1 = auto-detect)")
	flags.StringVarP(&resolution, "resolution", "r", "", `capture resolution "WxH", or "auto"`)
	flags.IntVarP(&fps, "fps", "f", 0, "target frame rate (1-240)")
	flags.StringVarP(&outputDevice, "output-device", "o", "", "v4l2loopback device path")
	flags.IntVarP(&definition, "definition", "d", 0, "detail level (1-10)")
	flags.StringVarP(&theme, "theme", "t", "", "color theme")
	flags.StringVar(&fgColor, "fg-color", "", `foreground override "#rrggbb", or "auto" for theme color`)
	flags.StringVar(&bgColor, "bg-color", "", `background override "#rrggbb", or "auto" for theme color`)
	flags.StringVarP(&curve, "curve", "c", "", "brightness curve (linear, exponential, sigmoid)")
	flags.BoolVar(&invert, "invert", false, "invert brightness mapping")
	flags.StringVar(&socket, "socket", control.DefaultSocket, "daemon control socket")

	return cmd
}

// buildPatch turns only the flags the user changed into a patch.
func buildPatch(cmd *cobra.Command, cameraIndex int, resolution string, fps int,
	outputDevice string, definition int, theme, fgColor, bgColor, curve string,
	invert bool) (settings.Patch, error) {

	var patch settings.Patch
	flags := cmd.Flags()

	if flags.Changed("camera-index") {
		patch.CameraIndex = &cameraIndex
	}
	if flags.Changed("resolution") {
		if resolution == "auto" || resolution == "" {
			patch.ClearResolution = true
		} else {
			res, err := settings.ParseResolution(resolution)
			if err != nil {
				return settings.Patch{}, err
			}
			patch.Resolution = &res
		}
	}
	if flags.Changed("fps") {
		patch.FPS = &fps
	}
	if flags.Changed("output-device") {
		patch.OutputDevice = &outputDevice
	}
	if flags.Changed("definition") {
		patch.Definition = &definition
	}
	if flags.Changed("theme") {
		patch.Theme = &theme
	}
	if flags.Changed("fg-color") {
		if fgColor == "auto" || fgColor == "" {
			patch.ClearFGColor = true
		} else {
			c, err := settings.ParseHexColor(fgColor)
			if err != nil {
				return settings.Patch{}, err
			}
			patch.FGColor = &c
		}
	}
	if flags.Changed("bg-color") {
		if bgColor == "auto" || bgColor == "" {
			patch.ClearBGColor = true
		} else {
			c, err := settings.ParseHexColor(bgColor)
			if err != nil {
				return settings.Patch{}, err
			}
			patch.BGColor = &c
		}
	}
	if flags.Changed("curve") {
		parsed, err := settings.ParseCurve(curve)
		if err != nil {
			return settings.Patch{}, err
		}
		patch.Curve = &parsed
	}
	if flags.Changed("invert") {
		patch.Invert = &invert
	}

	return patch, nil
}
