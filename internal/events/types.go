package events

import "github.com/smazurov/asciinode/internal/settings"

// Event type constants for kelindar/event.
const (
	TypeStageFPS uint32 = iota + 1
	TypeCaptureError
	TypeSettingsApplied
	TypeDeviceOpened
	TypeCacheRebuilt
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StageFPSEvent is a periodic throughput report from one pipeline stage.
type StageFPSEvent struct {
	Stage   string  `json:"stage"`
	FPS     float64 `json:"fps"`
	Frames  uint64  `json:"frames"`
	Dropped uint64  `json:"dropped"`
}

// Type returns the event type identifier for StageFPSEvent.
func (e StageFPSEvent) Type() uint32 { return TypeStageFPS }

// CaptureErrorEvent reports a failed frame acquisition. Consecutive counts
// errors since the last good frame.
type CaptureErrorEvent struct {
	Device      string `json:"device"`
	Error       string `json:"error"`
	Consecutive int    `json:"consecutive"`
}

// Type returns the event type identifier for CaptureErrorEvent.
func (e CaptureErrorEvent) Type() uint32 { return TypeCaptureError }

// SettingsAppliedEvent carries the settings snapshot after a successful
// change.
type SettingsAppliedEvent struct {
	Settings settings.Settings `json:"settings"`
	Source   string            `json:"source"`
}

// Type returns the event type identifier for SettingsAppliedEvent.
func (e SettingsAppliedEvent) Type() uint32 { return TypeSettingsApplied }

// DeviceOpenedEvent fires when a camera or the output device is (re)opened.
type DeviceOpenedEvent struct {
	Role   string `json:"role"` // "camera" or "output"
	Path   string `json:"path"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
	FPS    int    `json:"fps,omitempty"`
}

// Type returns the event type identifier for DeviceOpenedEvent.
func (e DeviceOpenedEvent) Type() uint32 { return TypeDeviceOpened }

// CacheRebuiltEvent fires after the renderer swaps in a new glyph cache.
type CacheRebuiltEvent struct {
	Definition int    `json:"definition"`
	Theme      string `json:"theme"`
	Columns    int    `json:"columns"`
	Rows       int    `json:"rows"`
	CellWidth  int    `json:"cell_width"`
	CellHeight int    `json:"cell_height"`
}

// Type returns the event type identifier for CacheRebuiltEvent.
func (e CacheRebuiltEvent) Type() uint32 { return TypeCacheRebuilt }
