package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/asciinode/internal/events"
	"github.com/smazurov/asciinode/internal/logging"
	"github.com/smazurov/asciinode/internal/settings"
)

// maxConsecutiveErrors is the failed-read count at which the camera is
// declared dead and the pipeline shuts down.
const maxConsecutiveErrors = 30

// uvcReleaseDelay gives UVC cameras time to release their handle between a
// close and the following open.
const uvcReleaseDelay = 200 * time.Millisecond

// ReopenCamera switches the running capture stage to a different camera
// or resolution. The stage replies on Reply once the swap succeeded or
// rolled back.
type ReopenCamera struct {
	Index      int
	Resolution *settings.Resolution
	Reply      chan error
}

// SetFrameRate changes the pacing of the running capture stage.
type SetFrameRate struct {
	FPS   int
	Reply chan error
}

// Opener opens a camera source; the stage uses it for reopen commands so
// tests can substitute fakes.
type Opener func(index int, res *settings.Resolution, fps int) (Source, error)

// Stage paces frame acquisition from a Source and feeds the render stage.
// Commands are polled between acquisitions so a blocked camera never
// wedges control.
type Stage struct {
	source   Source
	open     Opener
	out      chan<- Frame
	commands chan any
	bus      *events.Bus
	counter  *events.FPSCounter
	log      *slog.Logger

	index int
	res   *settings.Resolution
	fps   int
	pace  *time.Ticker

	consecutive int
}

// NewStage wraps an already-open source. index, res and fps describe the
// configuration the source was opened with; reopen rolls back to them on
// failure.
func NewStage(source Source, open Opener, index int, res *settings.Resolution, fps int, out chan<- Frame, bus *events.Bus) *Stage {
	return &Stage{
		source:   source,
		open:     open,
		out:      out,
		commands: make(chan any, 4),
		bus:      bus,
		counter:  events.NewFPSCounter(bus, "capture"),
		log:      logging.GetLogger("capture"),
		index:    index,
		res:      res,
		fps:      fps,
	}
}

// Commands returns the channel control sends stage commands on.
func (s *Stage) Commands() chan<- any {
	return s.commands
}

// Run drives the acquisition loop until ctx is cancelled or the camera
// fails fatally. The source handle is released before returning.
func (s *Stage) Run(ctx context.Context) error {
	s.pace = time.NewTicker(paceInterval(s.fps))
	defer s.pace.Stop()
	defer func() {
		if s.source != nil {
			s.source.Close()
		}
	}()

	for {
		// Drain pending commands before blocking on the pacer.
		select {
		case cmd := <-s.commands:
			if err := s.handleCommand(cmd); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case cmd := <-s.commands:
			if err := s.handleCommand(cmd); err != nil {
				return err
			}
			continue
		case <-s.pace.C:
		}

		frame, err := s.source.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.consecutive++
			s.log.Warn("frame acquisition failed",
				"device", s.source.Path(), "error", err, "consecutive", s.consecutive)
			s.bus.Publish(events.CaptureErrorEvent{
				Device:      s.source.Path(),
				Error:       err.Error(),
				Consecutive: s.consecutive,
			})
			if s.consecutive >= maxConsecutiveErrors {
				return fmt.Errorf("camera %s: %d consecutive acquisition failures, last: %w",
					s.source.Path(), s.consecutive, err)
			}
			continue
		}
		s.consecutive = 0

		select {
		case s.out <- frame:
			s.counter.Frame()
		default:
			s.counter.Drop()
		}
	}
}

func paceInterval(fps int) time.Duration {
	if fps < 1 {
		fps = 1
	}
	return time.Second / time.Duration(fps)
}

// handleCommand returns an error only when the stage cannot continue.
func (s *Stage) handleCommand(cmd any) error {
	switch c := cmd.(type) {
	case ReopenCamera:
		err := s.reopen(c.Index, c.Resolution)
		if c.Reply != nil {
			c.Reply <- err
		}
		if s.source == nil {
			return fmt.Errorf("camera reopen failed and rollback failed: %w", err)
		}
		return nil

	case SetFrameRate:
		s.fps = c.FPS
		s.pace.Reset(paceInterval(c.FPS))
		s.log.Info("frame rate changed", "fps", c.FPS)
		if c.Reply != nil {
			c.Reply <- nil
		}
		return nil

	default:
		s.log.Warn("unknown capture command", "command", fmt.Sprintf("%T", cmd))
		return nil
	}
}

// reopen closes the current source, then opens the requested camera. On
// failure it restores the previous configuration; a failed rollback leaves
// the stage without a source and Run exits.
func (s *Stage) reopen(index int, res *settings.Resolution) error {
	s.source.Close()
	s.source = nil
	time.Sleep(uvcReleaseDelay)

	src, err := s.open(index, res, s.fps)
	if err != nil {
		s.log.Error("camera reopen failed, rolling back",
			"index", index, "error", err)
		prev, rbErr := s.open(s.index, s.res, s.fps)
		if rbErr != nil {
			s.log.Error("camera rollback failed", "index", s.index, "error", rbErr)
			return err
		}
		s.source = prev
		return err
	}

	s.source = src
	s.index = index
	s.res = res
	s.consecutive = 0

	r := src.Resolution()
	s.log.Info("camera reopened", "device", src.Path(), "resolution", r.String(), "fps", s.fps)
	s.bus.Publish(events.DeviceOpenedEvent{
		Role:   "camera",
		Path:   src.Path(),
		Width:  r.Width,
		Height: r.Height,
		FPS:    s.fps,
	})
	return nil
}
