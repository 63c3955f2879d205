package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/asciinode/internal/control"
	"github.com/smazurov/asciinode/internal/devices"
)

// CreateDevicesCmd creates the devices command. It asks the daemon first
// so the listing reflects the daemon's view; without a daemon it scans
// /dev/video* directly.
func CreateDevicesCmd() *cobra.Command {
	var socket string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List detected cameras",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if body, err := control.NewClient(socket).Devices(ctx); err == nil {
				if len(body.Cameras) == 0 {
					fmt.Fprintln(out, "no cameras detected")
					return nil
				}
				for _, cam := range body.Cameras {
					printCamera(out, cam.Index, cam.Path, cam.Name, cam.Resolutions)
				}
				return nil
			}

			// No daemon; scan directly.
			cameras := devices.ListCameras("")
			if len(cameras) == 0 {
				fmt.Fprintln(out, "no cameras detected")
				return nil
			}
			for _, cam := range cameras {
				var resolutions []string
				for _, res := range devices.ListResolutions(cam.Index) {
					resolutions = append(resolutions, res.String())
				}
				printCamera(out, cam.Index, cam.Path, cam.Name, resolutions)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&socket, "socket", control.DefaultSocket, "daemon control socket")
	return cmd
}

func printCamera(w io.Writer, index int, path, name string, resolutions []string) {
	fmt.Fprintf(w, "[%d] %s  %s\n", index, path, name)
	if len(resolutions) > 0 {
		fmt.Fprintf(w, "    %s\n", strings.Join(resolutions, ", "))
	}
}
