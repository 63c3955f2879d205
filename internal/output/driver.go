// Package output publishes rendered frames to a v4l2loopback virtual
// camera. The Driver interface isolates the raw device so the stage and
// its tests run without kernel modules.
package output

import "errors"

// Sentinel errors for output device failures.
var (
	// ErrDeviceUnavailable means the loopback node is missing or not
	// writable.
	ErrDeviceUnavailable = errors.New("output device unavailable")

	// ErrDeviceBusy means another producer already feeds the loopback
	// node.
	ErrDeviceBusy = errors.New("output device busy")
)

// Format is the geometry the device accepted. The kernel may pad rows, so
// FrameSize can exceed Width*Height*3.
type Format struct {
	Width     uint32
	Height    uint32
	FrameSize int
}

// Driver writes RGB24 frames to a video sink.
type Driver interface {
	// Negotiate sets the frame geometry and returns what the device
	// accepted. Must be called before the first Write and again whenever
	// the geometry changes.
	Negotiate(width, height uint32) (Format, error)
	// Write publishes one frame of Negotiate's FrameSize bytes.
	Write(frame []byte) error
	Path() string
	Close() error
}
