package ui

import "github.com/RMahshie/tabeq/pkg/models"

// LoadedMsg carries the band layout and current settings
type LoadedMsg struct {
	Bands     []models.BandInfo
	GainLimit float64
	Settings  *models.SettingsBody
	Err       error
}

// AppliedMsg reports the outcome of an apply request
type AppliedMsg struct {
	Seq    int
	Result *models.ApplySettingsResponseBody
	Err    error
}
