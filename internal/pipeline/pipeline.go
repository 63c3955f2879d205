// Package pipeline wires the capture, render and output stages over
// bounded channels and manages their shared lifecycle. Frames flow one
// way; commands enter through the stage command channels.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/smazurov/asciinode/internal/capture"
	"github.com/smazurov/asciinode/internal/events"
	"github.com/smazurov/asciinode/internal/logging"
	"github.com/smazurov/asciinode/internal/output"
	"github.com/smazurov/asciinode/internal/render"
	"github.com/smazurov/asciinode/internal/settings"
)

// channelDepth bounds the frame queues between stages. A slow consumer
// causes drops at the producer instead of latency buildup.
const channelDepth = 2

// Pipeline owns the three stages and their connecting channels.
type Pipeline struct {
	Capture *capture.Stage
	Render  *render.Stage
	Output  *output.Stage
}

// New wires stages around an already-open camera source and output driver.
// The openers are used for reopen commands at runtime.
func New(src capture.Source, captureOpen capture.Opener, drv output.Driver, outputOpen output.Opener, s settings.Settings, bus *events.Bus) (*Pipeline, error) {
	rawFrames := make(chan capture.Frame, channelDepth)
	rendered := make(chan capture.Frame, channelDepth)

	renderStage, err := render.NewStage(s, rawFrames, rendered, bus)
	if err != nil {
		return nil, fmt.Errorf("build renderer: %w", err)
	}

	return &Pipeline{
		Capture: capture.NewStage(src, captureOpen, s.CameraIndex, s.Resolution, s.FPS, rawFrames, bus),
		Render:  renderStage,
		Output:  output.NewStage(drv, outputOpen, rendered, bus),
	}, nil
}

// Run starts all stages and blocks until ctx is cancelled or a stage fails
// fatally. The first stage error cancels the rest; all device handles are
// released before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := logging.GetLogger("pipeline")
	errs := make(chan error, 3)
	var wg sync.WaitGroup

	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				log.Error("stage failed", "stage", name, "error", err)
				errs <- fmt.Errorf("%s stage: %w", name, err)
				cancel()
			}
		}()
	}

	start("capture", p.Capture.Run)
	start("render", p.Render.Run)
	start("output", p.Output.Run)

	wg.Wait()
	close(errs)
	return <-errs
}
