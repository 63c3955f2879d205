package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/asciinode/cmd"
	"github.com/smazurov/asciinode/internal/capture"
	"github.com/smazurov/asciinode/internal/config"
	"github.com/smazurov/asciinode/internal/control"
	"github.com/smazurov/asciinode/internal/devices"
	"github.com/smazurov/asciinode/internal/events"
	"github.com/smazurov/asciinode/internal/logging"
	"github.com/smazurov/asciinode/internal/metrics"
	"github.com/smazurov/asciinode/internal/output"
	"github.com/smazurov/asciinode/internal/pipeline"
	"github.com/smazurov/asciinode/internal/settings"
)

// Exit codes: 2 camera, 3 output device, 4 control socket. Everything else
// fatal exits 1.
const (
	exitCamera  = 2
	exitOutput  = 3
	exitControl = 4
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Pipeline settings
	CameraIndex  int    `help:"Camera index (-1 = auto-detect)" short:"i" default:"-1" toml:"settings.camera_index" env:"CAMERA_INDEX"`
	Resolution   string `help:"Capture resolution WxH (empty = auto)" short:"r" default:"" toml:"settings.resolution" env:"RESOLUTION"`
	FPS          int    `help:"Target frame rate" short:"f" default:"30" toml:"settings.fps" env:"FPS"`
	OutputDevice string `help:"v4l2loopback output device" short:"o" default:"/dev/video20" toml:"settings.output_device" env:"OUTPUT_DEVICE"`
	Definition   int    `help:"Detail level 1-10" short:"d" default:"5" toml:"settings.definition" env:"DEFINITION"`
	Theme        string `help:"Color theme" short:"t" default:"matrix" toml:"settings.theme" env:"THEME"`
	FgColor      string `help:"Foreground override #rrggbb (empty = theme)" default:"" toml:"settings.fg_color" env:"FG_COLOR"`
	BgColor      string `help:"Background override #rrggbb (empty = theme)" default:"" toml:"settings.bg_color" env:"BG_COLOR"`
	Curve        string `help:"Brightness curve (linear, exponential, sigmoid)" default:"linear" toml:"settings.brightness_curve" env:"CURVE"`
	Invert       bool   `help:"Invert brightness mapping" default:"false" toml:"settings.invert" env:"INVERT"`

	// Control settings
	Socket string `help:"Control socket (abstract unix namespace)" default:"@asciinode" toml:"control.socket" env:"SOCKET"`

	// Metrics settings
	MetricsAddr string `help:"Prometheus listen address (empty = disabled)" default:"" toml:"metrics.addr" env:"METRICS_ADDR"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture  string `help:"Capture logging level" default:"" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingRender   string `help:"Render logging level" default:"" toml:"logging.render" env:"LOGGING_RENDER"`
	LoggingOutput   string `help:"Output logging level" default:"" toml:"logging.output" env:"LOGGING_OUTPUT"`
	LoggingControl  string `help:"Control logging level" default:"" toml:"logging.control" env:"LOGGING_CONTROL"`
	LoggingPipeline string `help:"Pipeline logging level" default:"" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.Load(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// The [logging] table may name modules that have no dedicated
		// flag; flag and env values win for the ones that do.
		logCfg := config.LoadLogging(opts.Config)
		logCfg.Level = opts.LoggingLevel
		logCfg.Format = opts.LoggingFormat
		for module, level := range moduleLevels(opts) {
			logCfg.Modules[module] = level
		}
		logging.Initialize(logCfg)
		logger := logging.GetLogger("main")

		initial, err := buildSettings(opts)
		if err != nil {
			logger.Error("Invalid settings", "error", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithCancel(context.Background())
		var server *control.Server
		var watcher *config.Watcher[settings.Patch]
		var debouncer *control.Debouncer

		hooks.OnStart(func() {
			// Resolve the camera before building anything: the render
			// geometry and the fps clamp both want a concrete device.
			if initial.CameraIndex == -1 {
				index, ok := devices.DetectCamera(initial.OutputDevice)
				if !ok {
					logger.Error("No capture camera found")
					os.Exit(exitCamera)
				}
				name, _ := devices.DeviceName(index)
				logger.Info("Camera auto-detected",
					"index", index, "device", devices.DevicePath(index), "name", name)
				initial.CameraIndex = index
			}
			if clamped, ok := clampFPS(initial); ok {
				logger.Info("FPS clamped to camera maximum", "requested", initial.FPS, "clamped", clamped)
				initial.FPS = clamped
			}

			src, err := capture.OpenWebcam(initial.CameraIndex, initial.Resolution, initial.FPS)
			if err != nil {
				logger.Error("Failed to open camera", "error", err)
				os.Exit(exitCamera)
			}

			if !devices.IsLoopbackDevice(initial.OutputDevice) {
				logger.Warn("Output device does not identify as v4l2loopback", "device", initial.OutputDevice)
			}
			drv, err := output.OpenLoopback(initial.OutputDevice)
			if err != nil {
				logger.Error("Failed to open output device", "error", err)
				os.Exit(exitOutput)
			}

			bus := events.New()
			unobserve := metrics.Observe(bus)
			defer unobserve()

			pipe, err := pipeline.New(src, openSource, drv, openDriver, initial, bus)
			if err != nil {
				logger.Error("Failed to build pipeline", "error", err)
				os.Exit(1)
			}

			// Claim the loopback geometry up front so a busy device fails
			// the start instead of the first frame.
			outW, outH := pipe.Render.OutputSize()
			if _, err := drv.Negotiate(uint32(outW), uint32(outH)); err != nil {
				logger.Error("Failed to negotiate output format", "error", err)
				os.Exit(exitOutput)
			}

			controller := control.NewController(initial, pipe, bus)
			server = control.NewServer(controller)
			go func() {
				if serveErr := server.Start(opts.Socket); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
					logger.Error("Control socket failed", "socket", opts.Socket, "error", serveErr)
					if errors.Is(serveErr, control.ErrEndpointFailure) {
						os.Exit(exitControl)
					}
					os.Exit(1)
				}
			}()

			if opts.MetricsAddr != "" {
				go metrics.Serve(ctx, opts.MetricsAddr)
			}

			debouncer = control.NewDebouncer(control.DefaultDebounceWindow, func(p settings.Patch) {
				if _, setErr := controller.Set(p, "config"); setErr != nil {
					logger.Warn("Config reload rejected", "error", setErr)
				}
			})
			if _, statErr := os.Stat(opts.Config); statErr == nil {
				watcher = config.NewWatcher(opts.Config, config.LoadSettingsPatch, logging.GetLogger("config"))
				watcher.OnReload(debouncer.Submit)
				if watchErr := watcher.Start(); watchErr != nil {
					logger.Warn("Config watcher failed to start", "error", watchErr)
					watcher = nil
				}
			}

			if _, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Warn("sd_notify failed", "error", notifyErr)
			}

			fg, bg := initial.EffectiveColors()
			logger.Info("asciinode started",
				"camera", devices.DevicePath(initial.CameraIndex),
				"capture", src.Resolution().String(),
				"output_device", initial.OutputDevice,
				"output", settings.Resolution{Width: uint32(outW), Height: uint32(outH)}.String(),
				"fps", initial.FPS,
				"definition", initial.Definition,
				"theme", initial.Theme,
				"fg", fg.Hex(),
				"bg", bg.Hex(),
				"curve", string(initial.Curve),
				"invert", initial.Invert,
				"socket", opts.Socket)

			if runErr := pipe.Run(ctx); runErr != nil {
				logger.Error("Pipeline failed", "error", runErr)
				daemon.SdNotify(false, daemon.SdNotifyStopping)
				os.Exit(exitCode(runErr))
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			daemon.SdNotify(false, daemon.SdNotifyStopping)
			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}
			if debouncer != nil {
				debouncer.Stop()
			}
			if server != nil {
				if stopErr := server.Stop(); stopErr != nil {
					logger.Warn("Error stopping control server", "error", stopErr)
				}
			}
			cancel()
		})
	})

	cli.Root().Use = "asciinode"
	cli.Root().AddCommand(cmd.CreateSetCmd())
	cli.Root().AddCommand(cmd.CreateStatusCmd())
	cli.Root().AddCommand(cmd.CreateDevicesCmd())

	cli.Run()
}

func moduleLevels(opts *Options) map[string]string {
	modules := make(map[string]string)
	for module, level := range map[string]string{
		"capture":  opts.LoggingCapture,
		"render":   opts.LoggingRender,
		"output":   opts.LoggingOutput,
		"control":  opts.LoggingControl,
		"pipeline": opts.LoggingPipeline,
	} {
		if level != "" {
			modules[module] = level
		}
	}
	return modules
}

// buildSettings turns CLI options into a validated settings snapshot.
func buildSettings(opts *Options) (settings.Settings, error) {
	s := settings.Defaults()
	s.CameraIndex = opts.CameraIndex
	s.FPS = opts.FPS
	s.OutputDevice = opts.OutputDevice
	s.Definition = opts.Definition
	s.Theme = opts.Theme
	s.Invert = opts.Invert

	if opts.Resolution != "" && opts.Resolution != "auto" {
		res, err := settings.ParseResolution(opts.Resolution)
		if err != nil {
			return settings.Settings{}, err
		}
		s.Resolution = &res
	}
	if opts.FgColor != "" {
		c, err := settings.ParseHexColor(opts.FgColor)
		if err != nil {
			return settings.Settings{}, err
		}
		s.FGColor = &c
	}
	if opts.BgColor != "" {
		c, err := settings.ParseHexColor(opts.BgColor)
		if err != nil {
			return settings.Settings{}, err
		}
		s.BGColor = &c
	}
	curve, err := settings.ParseCurve(opts.Curve)
	if err != nil {
		return settings.Settings{}, err
	}
	s.Curve = curve

	return s, s.Validate()
}

func clampFPS(s settings.Settings) (int, bool) {
	res := settings.Resolution{Width: 1920, Height: 1080}
	if s.Resolution != nil {
		res = *s.Resolution
	}
	max, ok := devices.MaxFPS(s.CameraIndex, res)
	if ok && s.FPS > max {
		return max, true
	}
	return s.FPS, false
}

func openSource(index int, res *settings.Resolution, fps int) (capture.Source, error) {
	return capture.OpenWebcam(index, res, fps)
}

func openDriver(path string) (output.Driver, error) {
	return output.OpenLoopback(path)
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, capture.ErrCameraUnavailable), errors.Is(err, capture.ErrModeUnsupported):
		return exitCamera
	case errors.Is(err, output.ErrDeviceUnavailable), errors.Is(err, output.ErrDeviceBusy):
		return exitOutput
	default:
		return 1
	}
}
