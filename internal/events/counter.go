package events

import "time"

// reportInterval is how often stages publish throughput.
const reportInterval = 5 * time.Second

// FPSCounter accumulates per-stage frame and drop counts and periodically
// publishes a StageFPSEvent. Owned by a single stage goroutine; not safe
// for concurrent use.
type FPSCounter struct {
	bus     *Bus
	stage   string
	frames  uint64
	dropped uint64

	windowFrames uint64
	windowStart  time.Time
}

// NewFPSCounter creates a counter reporting as the named stage.
func NewFPSCounter(bus *Bus, stage string) *FPSCounter {
	return &FPSCounter{bus: bus, stage: stage, windowStart: time.Now()}
}

// Frame records one processed frame and publishes a report when the
// window elapsed.
func (c *FPSCounter) Frame() {
	c.frames++
	c.windowFrames++
	c.maybeReport(time.Now())
}

// Drop records one dropped frame.
func (c *FPSCounter) Drop() {
	c.dropped++
}

func (c *FPSCounter) maybeReport(now time.Time) {
	elapsed := now.Sub(c.windowStart)
	if elapsed < reportInterval {
		return
	}
	c.bus.Publish(StageFPSEvent{
		Stage:   c.stage,
		FPS:     float64(c.windowFrames) / elapsed.Seconds(),
		Frames:  c.frames,
		Dropped: c.dropped,
	})
	c.windowFrames = 0
	c.windowStart = now
}
