package control

import "github.com/smazurov/asciinode/internal/settings"

// SettingsResponse wraps a settings snapshot for huma.
type SettingsResponse struct {
	Body settings.Settings
}

// PatchSettingsInput is the PATCH /api/settings request.
type PatchSettingsInput struct {
	Body settings.Patch
}

// DeviceInfo is one detected camera with its MJPEG resolutions.
type DeviceInfo struct {
	Index       int      `json:"index"`
	Path        string   `json:"path"`
	Name        string   `json:"name"`
	Resolutions []string `json:"resolutions,omitempty"`
}

// DevicesBody lists cameras and the active output device.
type DevicesBody struct {
	Cameras      []DeviceInfo `json:"cameras"`
	OutputDevice string       `json:"output_device"`
}

// DevicesResponse wraps DevicesBody for huma.
type DevicesResponse struct {
	Body DevicesBody
}

// LogEntry is one ring-buffer record in API form.
type LogEntry struct {
	Timestamp  string         `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LogsBody carries the recent log history.
type LogsBody struct {
	Entries []LogEntry `json:"entries"`
}

// LogsResponse wraps LogsBody for huma.
type LogsResponse struct {
	Body LogsBody
}
