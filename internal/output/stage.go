package output

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smazurov/asciinode/internal/capture"
	"github.com/smazurov/asciinode/internal/events"
	"github.com/smazurov/asciinode/internal/logging"
)

// ReopenDevice switches the running output stage to a different loopback
// node.
type ReopenDevice struct {
	Path  string
	Reply chan error
}

// Opener opens an output driver; tests substitute fakes.
type Opener func(path string) (Driver, error)

// Stage writes rendered frames to the output driver, renegotiating the
// device format whenever the frame geometry changes.
type Stage struct {
	driver   Driver
	open     Opener
	in       <-chan capture.Frame
	commands chan ReopenDevice
	bus      *events.Bus
	counter  *events.FPSCounter
	log      *slog.Logger

	format     Format
	negotiated bool
	padded     []byte
}

// NewStage wraps an already-open driver.
func NewStage(driver Driver, open Opener, in <-chan capture.Frame, bus *events.Bus) *Stage {
	return &Stage{
		driver:   driver,
		open:     open,
		in:       in,
		commands: make(chan ReopenDevice, 4),
		bus:      bus,
		counter:  events.NewFPSCounter(bus, "output"),
		log:      logging.GetLogger("output"),
	}
}

// Commands returns the channel control sends reopen commands on.
func (s *Stage) Commands() chan<- ReopenDevice {
	return s.commands
}

// Run writes frames as they arrive until ctx is cancelled or the device
// fails. The driver handle is released before returning.
func (s *Stage) Run(ctx context.Context) error {
	defer func() {
		if s.driver != nil {
			s.driver.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-s.commands:
			if err := s.handleReopen(cmd); err != nil {
				return err
			}
		case frame, ok := <-s.in:
			if !ok {
				return nil
			}
			if err := s.writeFrame(frame); err != nil {
				return err
			}
			s.counter.Frame()
		}
	}
}

func (s *Stage) writeFrame(frame capture.Frame) error {
	if !s.negotiated || frame.Width != s.format.Width || frame.Height != s.format.Height {
		format, err := s.driver.Negotiate(frame.Width, frame.Height)
		if err != nil {
			return fmt.Errorf("negotiate %dx%d: %w", frame.Width, frame.Height, err)
		}
		s.format = format
		s.negotiated = true
		s.padded = nil
		s.log.Info("output format negotiated",
			"device", s.driver.Path(),
			"resolution", fmt.Sprintf("%dx%d", format.Width, format.Height),
			"frame_size", format.FrameSize)
		s.bus.Publish(events.DeviceOpenedEvent{
			Role:   "output",
			Path:   s.driver.Path(),
			Width:  format.Width,
			Height: format.Height,
		})
	}

	buf := frame.RGB
	if len(buf) < s.format.FrameSize {
		// The driver pads rows; send a full-size buffer with the frame at
		// the front.
		if len(s.padded) != s.format.FrameSize {
			s.padded = make([]byte, s.format.FrameSize)
		}
		copy(s.padded, buf)
		buf = s.padded
	}
	return s.driver.Write(buf[:s.format.FrameSize])
}

// handleReopen closes the current device and opens the requested one,
// restoring the old path if the new one fails. Losing both is fatal.
func (s *Stage) handleReopen(cmd ReopenDevice) error {
	oldPath := s.driver.Path()
	s.driver.Close()
	s.driver = nil
	s.negotiated = false

	drv, err := s.open(cmd.Path)
	if err != nil {
		s.log.Error("output reopen failed, rolling back", "path", cmd.Path, "error", err)
		prev, rbErr := s.open(oldPath)
		if rbErr != nil {
			s.log.Error("output rollback failed", "path", oldPath, "error", rbErr)
			if cmd.Reply != nil {
				cmd.Reply <- err
			}
			return fmt.Errorf("output device lost: %w", rbErr)
		}
		s.driver = prev
		if cmd.Reply != nil {
			cmd.Reply <- err
		}
		return nil
	}

	s.driver = drv
	s.log.Info("output device reopened", "device", cmd.Path)
	if cmd.Reply != nil {
		cmd.Reply <- nil
	}
	return nil
}
