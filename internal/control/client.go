package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/smazurov/asciinode/internal/settings"
)

// Client talks to a running daemon over its control socket. Used by the
// set/status/devices subcommands.
type Client struct {
	http *http.Client
}

// NewClient dials the unix socket for every request; the URL host is
// ignored.
func NewClient(socket string) *Client {
	return &Client{
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socket)
				},
			},
		},
	}
}

// Status fetches the current settings snapshot.
func (c *Client) Status(ctx context.Context) (settings.Settings, error) {
	var out settings.Settings
	err := c.do(ctx, http.MethodGet, "/api/settings", nil, &out)
	return out, err
}

// Set applies a patch and returns the resulting snapshot.
func (c *Client) Set(ctx context.Context, patch settings.Patch) (settings.Settings, error) {
	var out settings.Settings
	err := c.do(ctx, http.MethodPatch, "/api/settings", patch, &out)
	return out, err
}

// Devices lists the daemon's detected cameras.
func (c *Client) Devices(ctx context.Context) (DevicesBody, error) {
	var out DevicesBody
	err := c.do(ctx, http.MethodGet, "/api/devices", nil, &out)
	return out, err
}

// Logs fetches the recent log history.
func (c *Client) Logs(ctx context.Context) ([]LogEntry, error) {
	var out LogsBody
	err := c.do(ctx, http.MethodGet, "/api/logs", nil, &out)
	return out.Entries, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://asciinode"+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiErrorModel is the subset of huma's error body the CLI surfaces.
type apiErrorModel struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func decodeAPIError(resp *http.Response) error {
	var model apiErrorModel
	if err := json.NewDecoder(resp.Body).Decode(&model); err == nil && model.Detail != "" {
		return fmt.Errorf("%s", model.Detail)
	}
	return fmt.Errorf("request failed: %s", resp.Status)
}
