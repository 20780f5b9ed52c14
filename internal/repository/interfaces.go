package repository

import (
	"context"
	"errors"

	"github.com/RMahshie/tabeq/pkg/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// SettingsRepository persists the current equalizer settings under one key
type SettingsRepository interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, settings *models.Settings) error
}

// PresetRepository persists named gain profiles. Names are unique; saving an
// existing name replaces its gains.
type PresetRepository interface {
	ListPresets(ctx context.Context) ([]*models.Preset, error)
	GetPreset(ctx context.Context, name string) (*models.Preset, error)
	SavePreset(ctx context.Context, preset *models.Preset) error
	DeletePreset(ctx context.Context, name string) error
}

// Store is everything the API persists
type Store interface {
	SettingsRepository
	PresetRepository
}
