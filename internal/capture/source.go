package capture

import (
	"context"
	"errors"

	"github.com/smazurov/asciinode/internal/settings"
)

// Sentinel errors for camera failures. Wrapped errors carry the device
// path and cause; callers classify with errors.Is.
var (
	// ErrCameraUnavailable means the device could not be opened: missing,
	// busy, or permission denied.
	ErrCameraUnavailable = errors.New("camera unavailable")

	// ErrModeUnsupported means the device rejected the requested
	// resolution or pixel format.
	ErrModeUnsupported = errors.New("camera mode unsupported")
)

// Source is a camera that delivers RGB24 frames.
type Source interface {
	// NextFrame blocks until a frame arrives or ctx is done.
	NextFrame(ctx context.Context) (Frame, error)
	// Resolution returns the negotiated capture resolution.
	Resolution() settings.Resolution
	// Path returns the device path the source reads from.
	Path() string
	Close() error
}
