// Package client talks to the equalizer HTTP API
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/RMahshie/tabeq/pkg/models"
)

// Client calls the equalizer API
type Client struct {
	baseURL string
	http    *http.Client
}

// APIError is a non-2xx response
type APIError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Title)
}

// New creates a client for the server at baseURL
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Bands returns the server's band layout
func (c *Client) Bands(ctx context.Context) ([]models.BandInfo, float64, error) {
	var out struct {
		Bands     []models.BandInfo `json:"bands"`
		GainLimit float64           `json:"gain_limit"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/bands", nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Bands, out.GainLimit, nil
}

// Settings returns the persisted settings
func (c *Client) Settings(ctx context.Context) (*models.SettingsBody, error) {
	var out models.SettingsBody
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Apply sends APPLY_SETTINGS. tab may be nil for the focused tab.
func (c *Client) Apply(ctx context.Context, gains map[string]float64, enabled bool, tab *int) (*models.ApplySettingsResponseBody, error) {
	in := map[string]any{"gains": gains, "enabled": enabled}
	if tab != nil {
		in["tab_id"] = *tab
	}
	var out models.ApplySettingsResponseBody
	if err := c.do(ctx, http.MethodPost, "/api/settings/apply", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Session returns the coordinator's session
func (c *Client) Session(ctx context.Context) (*models.SessionBody, error) {
	var out models.SessionBody
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Tabs lists browser tabs
func (c *Client) Tabs(ctx context.Context) ([]models.TabBody, error) {
	var out struct {
		Tabs []models.TabBody `json:"tabs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tabs", nil, &out); err != nil {
		return nil, err
	}
	return out.Tabs, nil
}

// TabEvent reports a lifecycle event for a tab
func (c *Client) TabEvent(ctx context.Context, tab int, kind string) (*models.SessionBody, error) {
	var out models.SessionBody
	path := "/api/tabs/" + strconv.Itoa(tab) + "/events"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"kind": kind}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Presets lists saved presets
func (c *Client) Presets(ctx context.Context) ([]models.PresetBody, error) {
	var out struct {
		Presets []models.PresetBody `json:"presets"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/presets", nil, &out); err != nil {
		return nil, err
	}
	return out.Presets, nil
}

// SavePreset creates or replaces a preset
func (c *Client) SavePreset(ctx context.Context, name string, gains map[string]float64) (*models.PresetBody, error) {
	var out models.PresetBody
	in := map[string]any{"gains": gains}
	if err := c.do(ctx, http.MethodPut, presetPath(name), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePreset removes a preset
func (c *Client) DeletePreset(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, presetPath(name), nil, nil)
}

// ApplyPreset loads a preset into the settings and applies it
func (c *Client) ApplyPreset(ctx context.Context, name string, tab *int) (*models.ApplySettingsResponseBody, error) {
	path := presetPath(name) + "/apply"
	if tab != nil {
		path += "?tab_id=" + strconv.Itoa(*tab)
	}
	var out models.ApplySettingsResponseBody
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportPresets archives all presets and returns the key and download URL
func (c *Client) ExportPresets(ctx context.Context) (key, downloadURL string, count int, err error) {
	var out struct {
		Key         string `json:"key"`
		DownloadURL string `json:"download_url"`
		Count       int    `json:"count"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/presets/export", nil, &out); err != nil {
		return "", "", 0, err
	}
	return out.Key, out.DownloadURL, out.Count, nil
}

// ImportPresets restores presets from an archived bundle
func (c *Client) ImportPresets(ctx context.Context, key string) (imported, skipped []string, err error) {
	var out struct {
		Imported []string `json:"imported"`
		Skipped  []string `json:"skipped"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/presets/import", map[string]string{"key": key}, &out); err != nil {
		return nil, nil, err
	}
	return out.Imported, out.Skipped, nil
}

func presetPath(name string) string {
	return "/api/presets/" + url.PathEscape(name)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
