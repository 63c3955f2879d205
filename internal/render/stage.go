package render

import (
	"context"
	"log/slog"
	"time"

	"github.com/smazurov/asciinode/internal/capture"
	"github.com/smazurov/asciinode/internal/events"
	"github.com/smazurov/asciinode/internal/logging"
	"github.com/smazurov/asciinode/internal/settings"
)

// recvTimeout bounds the frame wait so pending rebuild commands are never
// starved by a stalled camera.
const recvTimeout = 100 * time.Millisecond

// Rebuild applies new render settings to the running stage. Style-only
// changes (colors, curve, invert) retune the live renderer; definition or
// theme changes build a fresh glyph cache and swap it in.
type Rebuild struct {
	Settings settings.Settings
	Reply    chan error
}

// Stage converts captured frames to composited frames.
type Stage struct {
	renderer *Renderer
	current  settings.Settings
	in       <-chan capture.Frame
	out      chan<- capture.Frame
	commands chan Rebuild
	bus      *events.Bus
	counter  *events.FPSCounter
	log      *slog.Logger
}

// NewStage builds the initial renderer from s.
func NewStage(s settings.Settings, in <-chan capture.Frame, out chan<- capture.Frame, bus *events.Bus) (*Stage, error) {
	r, err := New(s)
	if err != nil {
		return nil, err
	}
	st := &Stage{
		renderer: r,
		current:  s,
		in:       in,
		out:      out,
		commands: make(chan Rebuild, 4),
		bus:      bus,
		counter:  events.NewFPSCounter(bus, "render"),
		log:      logging.GetLogger("render"),
	}
	st.publishRebuilt()
	return st, nil
}

// Commands returns the channel control sends rebuild commands on.
func (s *Stage) Commands() chan<- Rebuild {
	return s.commands
}

// OutputSize returns the current composited frame dimensions.
func (s *Stage) OutputSize() (int, int) {
	return s.renderer.OutputSize()
}

// Run renders frames until ctx is cancelled or the input channel closes.
func (s *Stage) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-s.commands:
			s.handleRebuild(cmd)
		case frame, ok := <-s.in:
			if !ok {
				return nil
			}
			s.renderFrame(frame)
		case <-time.After(recvTimeout):
		}
	}
}

func (s *Stage) renderFrame(frame capture.Frame) {
	rgb := s.renderer.Render(frame.RGB, int(frame.Width), int(frame.Height))
	w, h := s.renderer.OutputSize()
	rendered := capture.Frame{
		RGB:    rgb,
		Width:  uint32(w),
		Height: uint32(h),
		Seq:    frame.Seq,
	}

	select {
	case s.out <- rendered:
		s.counter.Frame()
	default:
		s.counter.Drop()
	}
}

func (s *Stage) handleRebuild(cmd Rebuild) {
	next := cmd.Settings

	if next.Definition == s.current.Definition && next.Theme == s.current.Theme {
		fg, bg := next.EffectiveColors()
		s.renderer.SetStyle(fg, bg, next.Curve, next.Invert)
		s.current = next
		s.log.Info("render style updated",
			"theme", next.Theme, "curve", string(next.Curve), "invert", next.Invert)
		if cmd.Reply != nil {
			cmd.Reply <- nil
		}
		return
	}

	r, err := New(next)
	if err != nil {
		// Old renderer keeps serving frames.
		s.log.Error("renderer rebuild failed", "error", err)
		if cmd.Reply != nil {
			cmd.Reply <- err
		}
		return
	}

	s.renderer = r
	s.current = next
	s.publishRebuilt()
	s.log.Info("renderer rebuilt", "definition", next.Definition, "theme", next.Theme)
	if cmd.Reply != nil {
		cmd.Reply <- nil
	}
}

func (s *Stage) publishRebuilt() {
	cols, rows := s.renderer.Grid()
	cellW, cellH := s.renderer.CellSize()
	s.bus.Publish(events.CacheRebuiltEvent{
		Definition: s.current.Definition,
		Theme:      s.current.Theme,
		Columns:    cols,
		Rows:       rows,
		CellWidth:  cellW,
		CellHeight: cellH,
	})
}
