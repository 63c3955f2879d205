package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/asciinode/internal/capture"
	"github.com/smazurov/asciinode/internal/devices"
	"github.com/smazurov/asciinode/internal/logging"
	"github.com/smazurov/asciinode/internal/output"
	"github.com/smazurov/asciinode/internal/settings"
)

// DefaultSocket is the abstract-namespace unix socket the API listens on.
// Abstract sockets vanish with the process, so a crash leaves nothing to
// clean up.
const DefaultSocket = "@asciinode"

// ErrEndpointFailure marks a control endpoint that could not bind.
var ErrEndpointFailure = errors.New("control endpoint failure")

// Server exposes the control API over a unix socket.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	controller *Controller
	log        *slog.Logger
}

// NewServer builds the API around a controller.
func NewServer(controller *Controller) *Server {
	mux := http.NewServeMux()
	config := huma.DefaultConfig("asciinode API", "1.0.0")
	config.Info.Description = "Live control of the ASCII virtual camera pipeline"
	config.Servers = []*huma.Server{}

	s := &Server{
		api:        humago.New(mux, config),
		mux:        mux,
		controller: controller,
		log:        logging.GetLogger("control"),
	}
	s.registerRoutes()
	return s
}

// Start listens on the unix socket and serves until Stop. Bind failures
// wrap ErrEndpointFailure.
func (s *Server) Start(socket string) error {
	ln, err := net.Listen("unix", socket)
	if err != nil {
		return fmt.Errorf("%w: listen on %s: %v", ErrEndpointFailure, socket, err)
	}
	s.log.Info("control API listening", "socket", socket)
	s.httpServer = &http.Server{Handler: s.mux}
	return s.httpServer.Serve(ln)
}

// Stop shuts the server down, finishing in-flight requests.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/api/settings",
		Summary:     "Current settings",
		Tags:        []string{"settings"},
	}, func(ctx context.Context, _ *struct{}) (*SettingsResponse, error) {
		return &SettingsResponse{Body: s.controller.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "patch-settings",
		Method:      http.MethodPatch,
		Path:        "/api/settings",
		Summary:     "Apply a settings patch",
		Description: "Validates the whole patch, applies it to the running pipeline and returns the new snapshot. Any invalid field rejects the entire patch.",
		Tags:        []string{"settings"},
		Errors:      []int{409, 422, 503},
	}, func(ctx context.Context, input *PatchSettingsInput) (*SettingsResponse, error) {
		applied, err := s.controller.Set(input.Body, "api")
		if err != nil {
			return nil, apiError(err)
		}
		return &SettingsResponse{Body: applied}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "Detected cameras",
		Tags:        []string{"devices"},
	}, func(ctx context.Context, _ *struct{}) (*DevicesResponse, error) {
		outputDevice := s.controller.Status().OutputDevice
		body := DevicesBody{OutputDevice: outputDevice}
		for _, cam := range devices.ListCameras(outputDevice) {
			info := DeviceInfo{Index: cam.Index, Path: cam.Path, Name: cam.Name}
			for _, res := range devices.ListResolutions(cam.Index) {
				info.Resolutions = append(info.Resolutions, res.String())
			}
			body.Cameras = append(body.Cameras, info)
		}
		return &DevicesResponse{Body: body}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent log history",
		Tags:        []string{"logs"},
	}, func(ctx context.Context, _ *struct{}) (*LogsResponse, error) {
		var entries []logging.Entry
		if ring := logging.History(); ring != nil {
			entries = ring.Snapshot()
		}
		body := LogsBody{Entries: make([]LogEntry, 0, len(entries))}
		for _, e := range entries {
			body.Entries = append(body.Entries, LogEntry{
				Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
				Level:      e.Level,
				Module:     e.Module,
				Message:    e.Message,
				Attributes: e.Attributes,
			})
		}
		return &LogsResponse{Body: body}, nil
	})
}

// apiError maps pipeline errors to HTTP statuses.
func apiError(err error) error {
	switch {
	case errors.Is(err, settings.ErrInvalid):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, output.ErrDeviceBusy):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, capture.ErrCameraUnavailable),
		errors.Is(err, capture.ErrModeUnsupported),
		errors.Is(err, output.ErrDeviceUnavailable):
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
