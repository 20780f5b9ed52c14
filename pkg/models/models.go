package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultPresetName is reserved for the flat "no processing" profile
const DefaultPresetName = "default"

// MaxPresetNameLength bounds preset names
const MaxPresetNameLength = 64

// Settings is the persisted equalizer state
type Settings struct {
	Gains     GainProfile `json:"gains"`
	Enabled   bool        `json:"enabled"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// DefaultSettings returns enabled, flat settings for the layout
func DefaultSettings(layout BandLayout) *Settings {
	return &Settings{
		Gains:   Flat(layout),
		Enabled: true,
	}
}

// Preset is a named, persisted gain profile
type Preset struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Gains     GainProfile `json:"gains"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NormalizePresetName trims the name and checks it can be stored
func NormalizePresetName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", fmt.Errorf("preset name is empty")
	case strings.EqualFold(name, DefaultPresetName):
		return "", fmt.Errorf("preset name %q is reserved", DefaultPresetName)
	case len(name) > MaxPresetNameLength:
		return "", fmt.Errorf("preset name longer than %d characters", MaxPresetNameLength)
	}
	return name, nil
}

// IsDefaultPreset reports whether name refers to the reserved flat preset
func IsDefaultPreset(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), DefaultPresetName)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Body struct {
		Status  string    `json:"status" example:"healthy" doc:"Service health status"`
		Version string    `json:"version" example:"1.0.0" doc:"API version"`
		Time    time.Time `json:"time" doc:"Current server time"`
	}
}

// BandInfo describes one equalizer band
type BandInfo struct {
	Frequency int    `json:"frequency" doc:"Centre frequency in Hz"`
	Label     string `json:"label" doc:"Short display label"`
	Filter    string `json:"filter" enum:"lowshelf,peaking,highshelf" doc:"Filter shape used for the band"`
}

// GetBandsResponse lists the configured band layout
type GetBandsResponse struct {
	Body struct {
		Bands     []BandInfo `json:"bands" doc:"Bands in ascending frequency order"`
		GainLimit float64    `json:"gain_limit" doc:"Maximum boost or cut in dB"`
	}
}

// SettingsBody is the wire shape of Settings
type SettingsBody struct {
	Gains     map[string]float64 `json:"gains" doc:"Gain in dB keyed by frequency in Hz"`
	Enabled   bool               `json:"enabled" doc:"Whether processing is on"`
	UpdatedAt time.Time          `json:"updated_at,omitempty" doc:"Last change"`
}

// GetSettingsResponse returns the persisted settings
type GetSettingsResponse struct {
	Body SettingsBody
}

// ApplySettingsRequest is the APPLY_SETTINGS control message
type ApplySettingsRequest struct {
	Body struct {
		Gains   map[string]float64 `json:"gains" required:"true" doc:"Gain in dB keyed by frequency in Hz"`
		Enabled bool               `json:"enabled" doc:"Whether processing is on"`
		TabID   *int               `json:"tab_id,omitempty" doc:"Target tab; defaults to the focused tab"`
	}
}

// SessionBody describes the coordinator's session
type SessionBody struct {
	Phase string             `json:"phase" enum:"idle,starting,active,stopping" doc:"Session phase"`
	TabID *int               `json:"tab_id,omitempty" doc:"Captured tab"`
	Gains map[string]float64 `json:"gains,omitempty" doc:"Gains of the active session"`
	Since *time.Time         `json:"since,omitempty" doc:"When the session became active"`
}

// ApplySettingsResponseBody reports the outcome of APPLY_SETTINGS
type ApplySettingsResponseBody struct {
	Success bool        `json:"success" doc:"Whether the pipeline accepted the settings"`
	Error   string      `json:"error,omitempty" doc:"Failure description"`
	Reason  string      `json:"reason,omitempty" enum:"mute,capture,graph,cancelled,no_tab,internal" doc:"Failure class"`
	Session SessionBody `json:"session" doc:"Session state after the call"`
}

// ApplySettingsResponse wraps ApplySettingsResponseBody
type ApplySettingsResponse struct {
	Body ApplySettingsResponseBody
}

// GetSessionResponse returns the coordinator status
type GetSessionResponse struct {
	Body SessionBody
}

// TabBody is one browser tab
type TabBody struct {
	ID      int    `json:"id" doc:"Tab identifier"`
	Title   string `json:"title" doc:"Page title"`
	URL     string `json:"url" doc:"Page URL"`
	Active  bool   `json:"active" doc:"Whether the tab has focus"`
	Capture bool   `json:"capture" doc:"Whether the tab is being equalized"`
}

// ListTabsResponse lists host tabs
type ListTabsResponse struct {
	Body struct {
		Tabs []TabBody `json:"tabs"`
	}
}

// TabEventRequest reports a lifecycle event for a tab
type TabEventRequest struct {
	ID   int `path:"id" doc:"Tab identifier"`
	Body struct {
		Kind string `json:"kind" enum:"closed,navigated,blurred" required:"true" doc:"Event kind"`
	}
}

// TabEventResponse acknowledges a tab event
type TabEventResponse struct {
	Body SessionBody
}

// PresetBody is the wire shape of a Preset
type PresetBody struct {
	ID        string             `json:"id" doc:"Preset unique identifier"`
	Name      string             `json:"name" doc:"Preset name"`
	Gains     map[string]float64 `json:"gains" doc:"Gain in dB keyed by frequency in Hz"`
	CreatedAt time.Time          `json:"created_at" doc:"Creation time"`
	UpdatedAt time.Time          `json:"updated_at" doc:"Last update time"`
}

// ListPresetsResponse lists saved presets sorted by name
type ListPresetsResponse struct {
	Body struct {
		Presets []PresetBody `json:"presets"`
	}
}

// PresetNameRequest addresses a preset by name
type PresetNameRequest struct {
	Name string `path:"name" minLength:"1" maxLength:"64" doc:"Preset name"`
}

// PresetResponse returns one preset
type PresetResponse struct {
	Body PresetBody
}

// SavePresetRequest creates or replaces a preset
type SavePresetRequest struct {
	Name string `path:"name" minLength:"1" maxLength:"64" doc:"Preset name"`
	Body struct {
		Gains map[string]float64 `json:"gains" required:"true" doc:"Gain in dB keyed by frequency in Hz"`
	}
}

// ApplyPresetRequest loads a preset into the current settings
type ApplyPresetRequest struct {
	Name  string `path:"name" minLength:"1" maxLength:"64" doc:"Preset name, or default for flat"`
	TabID int    `query:"tab_id" minimum:"0" doc:"Target tab; 0 or absent selects the focused tab"`
}

// DeletePresetResponse confirms a deletion
type DeletePresetResponse struct {
	Body struct {
		Message string `json:"message" doc:"Confirmation message"`
	}
}

// ExportPresetsResponse points at an exported preset bundle
type ExportPresetsResponse struct {
	Body struct {
		Key         string `json:"key" doc:"Archive object key"`
		DownloadURL string `json:"download_url" doc:"Pre-signed download URL"`
		Count       int    `json:"count" doc:"Number of presets exported"`
	}
}

// ImportPresetsRequest restores presets from an archive object
type ImportPresetsRequest struct {
	Body struct {
		Key string `json:"key" required:"true" minLength:"1" doc:"Archive object key"`
	}
}

// ImportPresetsResponse reports imported presets
type ImportPresetsResponse struct {
	Body struct {
		Imported []string `json:"imported" doc:"Names of imported presets"`
		Skipped  []string `json:"skipped,omitempty" doc:"Names rejected as invalid"`
	}
}

// PresetBundle is the archived form of a preset collection
type PresetBundle struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Presets    []Preset  `json:"presets"`
}

// ToBody converts a preset to its wire shape
func (p *Preset) ToBody() PresetBody {
	return PresetBody{
		ID:        p.ID,
		Name:      p.Name,
		Gains:     p.Gains.Wire(),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// ToBody converts settings to their wire shape
func (s *Settings) ToBody() SettingsBody {
	return SettingsBody{
		Gains:     s.Gains.Wire(),
		Enabled:   s.Enabled,
		UpdatedAt: s.UpdatedAt,
	}
}
