// Package control owns the settings snapshot and the API that mutates it.
// A patch is validated as a whole, diffed against the current snapshot
// into the minimal set of stage commands, and the snapshot advances only
// when every command succeeded.
package control

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/asciinode/internal/capture"
	"github.com/smazurov/asciinode/internal/devices"
	"github.com/smazurov/asciinode/internal/events"
	"github.com/smazurov/asciinode/internal/logging"
	"github.com/smazurov/asciinode/internal/output"
	"github.com/smazurov/asciinode/internal/pipeline"
	"github.com/smazurov/asciinode/internal/render"
	"github.com/smazurov/asciinode/internal/settings"
)

// commandTimeout bounds both the send into a stage command channel and the
// wait for its reply.
const commandTimeout = 5 * time.Second

// Controller serializes settings changes against the running pipeline.
type Controller struct {
	mu      sync.Mutex
	current settings.Settings
	pipe    *pipeline.Pipeline
	bus     *events.Bus
	log     *slog.Logger

	// Hardware queries, swappable in tests.
	detect func(outputDevice string) (int, bool)
	maxFPS func(index int, res settings.Resolution) (int, bool)
}

// NewController starts from the snapshot the pipeline was built with.
func NewController(initial settings.Settings, pipe *pipeline.Pipeline, bus *events.Bus) *Controller {
	return &Controller{
		current: initial,
		pipe:    pipe,
		bus:     bus,
		log:     logging.GetLogger("control"),
		detect:  devices.DetectCamera,
		maxFPS:  devices.MaxFPS,
	}
}

// Status returns the current settings snapshot.
func (c *Controller) Status() settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Set applies a patch. The whole patch is rejected when any field is
// invalid; otherwise it is diffed into stage commands, applied, and the
// new snapshot returned. Concurrent Sets serialize on the controller.
func (c *Controller) Set(patch settings.Patch, source string) (settings.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if patch.IsZero() {
		return c.current, nil
	}

	next := c.current.Apply(patch)
	if err := next.Validate(); err != nil {
		return settings.Settings{}, err
	}

	cameraChanged := next.CameraIndex != c.current.CameraIndex ||
		!resolutionEqual(next.Resolution, c.current.Resolution)

	// Resolve auto-detection up front so the reopen command and the fps
	// clamp see a concrete index.
	index := next.CameraIndex
	if cameraChanged && index == -1 {
		detected, ok := c.detect(next.OutputDevice)
		if !ok {
			return settings.Settings{}, fmt.Errorf("%w: no capture camera found", capture.ErrCameraUnavailable)
		}
		index = detected
	}

	if index >= 0 && (cameraChanged || next.FPS != c.current.FPS) {
		if clamped, changed := c.clampFPS(index, next); changed {
			c.log.Info("fps clamped to camera maximum", "requested", next.FPS, "clamped", clamped)
			next.FPS = clamped
		}
	}

	if cameraChanged {
		if err := c.reopenCamera(index, next.Resolution); err != nil {
			return settings.Settings{}, err
		}
	}
	if next.FPS != c.current.FPS {
		if err := c.setFrameRate(next.FPS); err != nil {
			return settings.Settings{}, err
		}
	}
	if renderChanged(c.current, next) {
		if err := c.rebuildRenderer(next); err != nil {
			return settings.Settings{}, err
		}
	}
	if next.OutputDevice != c.current.OutputDevice {
		if err := c.reopenOutput(next.OutputDevice); err != nil {
			return settings.Settings{}, err
		}
	}

	c.current = next
	c.log.Info("settings applied", "source", source)
	c.bus.Publish(events.SettingsAppliedEvent{Settings: next, Source: source})
	return next, nil
}

// clampFPS caps the requested rate at what the camera reports for the
// active resolution. Cameras that report nothing are left alone.
func (c *Controller) clampFPS(index int, s settings.Settings) (int, bool) {
	res := settings.Resolution{Width: 1920, Height: 1080}
	if s.Resolution != nil {
		res = *s.Resolution
	}
	max, ok := c.maxFPS(index, res)
	if ok && s.FPS > max {
		return max, true
	}
	return s.FPS, false
}

func (c *Controller) reopenCamera(index int, res *settings.Resolution) error {
	reply := make(chan error, 1)
	select {
	case c.pipe.Capture.Commands() <- capture.ReopenCamera{Index: index, Resolution: res, Reply: reply}:
	case <-time.After(commandTimeout):
		return fmt.Errorf("capture stage not accepting commands")
	}
	return c.await("reopen camera", reply)
}

func (c *Controller) setFrameRate(fps int) error {
	reply := make(chan error, 1)
	select {
	case c.pipe.Capture.Commands() <- capture.SetFrameRate{FPS: fps, Reply: reply}:
	case <-time.After(commandTimeout):
		return fmt.Errorf("capture stage not accepting commands")
	}
	return c.await("set frame rate", reply)
}

func (c *Controller) rebuildRenderer(s settings.Settings) error {
	reply := make(chan error, 1)
	select {
	case c.pipe.Render.Commands() <- render.Rebuild{Settings: s, Reply: reply}:
	case <-time.After(commandTimeout):
		return fmt.Errorf("render stage not accepting commands")
	}
	return c.await("rebuild renderer", reply)
}

func (c *Controller) reopenOutput(path string) error {
	reply := make(chan error, 1)
	select {
	case c.pipe.Output.Commands() <- output.ReopenDevice{Path: path, Reply: reply}:
	case <-time.After(commandTimeout):
		return fmt.Errorf("output stage not accepting commands")
	}
	return c.await("reopen output device", reply)
}

func (c *Controller) await(op string, reply chan error) error {
	select {
	case err := <-reply:
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	case <-time.After(commandTimeout):
		return fmt.Errorf("%s: no reply within %s", op, commandTimeout)
	}
}

func resolutionEqual(a, b *settings.Resolution) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// renderChanged reports whether any field the renderer consumes differs.
func renderChanged(old, next settings.Settings) bool {
	return old.Definition != next.Definition ||
		old.Theme != next.Theme ||
		!rgbEqual(old.FGColor, next.FGColor) ||
		!rgbEqual(old.BGColor, next.BGColor) ||
		old.Curve != next.Curve ||
		old.Invert != next.Invert
}

func rgbEqual(a, b *settings.RGB) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
