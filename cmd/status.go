package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/asciinode/internal/control"
	"github.com/smazurov/asciinode/internal/settings"
)

// CreateStatusCmd creates the status command.
func CreateStatusCmd() *cobra.Command {
	var socket string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			snapshot, err := control.NewClient(socket).Status(ctx)
			if err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), snapshot)
			return nil
		},
	}
	cmd.Flags().StringVar(&socket, "socket", control.DefaultSocket, "daemon control socket")
	return cmd
}

func printSettings(w io.Writer, s settings.Settings) {
	camera := "auto"
	if s.CameraIndex >= 0 {
		camera = fmt.Sprintf("%d", s.CameraIndex)
	}
	resolution := "auto"
	if s.Resolution != nil {
		resolution = s.Resolution.String()
	}
	fg, bg := "theme", "theme"
	if s.FGColor != nil {
		fg = s.FGColor.Hex()
	}
	if s.BGColor != nil {
		bg = s.BGColor.Hex()
	}

	fmt.Fprintf(w, "camera:        %s\n", camera)
	fmt.Fprintf(w, "resolution:    %s\n", resolution)
	fmt.Fprintf(w, "fps:           %d\n", s.FPS)
	fmt.Fprintf(w, "output device: %s\n", s.OutputDevice)
	fmt.Fprintf(w, "definition:    %d\n", s.Definition)
	fmt.Fprintf(w, "theme:         %s\n", s.Theme)
	fmt.Fprintf(w, "fg color:      %s\n", fg)
	fmt.Fprintf(w, "bg color:      %s\n", bg)
	fmt.Fprintf(w, "curve:         %s\n", s.Curve)
	fmt.Fprintf(w, "invert:        %t\n", s.Invert)
}
