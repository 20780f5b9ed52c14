package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/tabeq/internal/repository"
	"github.com/RMahshie/tabeq/internal/storage"
	"github.com/RMahshie/tabeq/pkg/models"
)

// PresetHandler handles preset requests
type PresetHandler struct {
	presets  repository.PresetRepository
	settings repository.SettingsRepository
	archive  storage.Archive
	eq       *EqualizerHandler
}

// NewPresetHandler creates a new preset handler. archive may be nil, in which
// case export and import are unavailable.
func NewPresetHandler(presets repository.PresetRepository, settings repository.SettingsRepository, archive storage.Archive, eq *EqualizerHandler) *PresetHandler {
	return &PresetHandler{
		presets:  presets,
		settings: settings,
		archive:  archive,
		eq:       eq,
	}
}

// ListPresets returns all saved presets
func (h *PresetHandler) ListPresets(ctx context.Context, _ *struct{}) (*models.ListPresetsResponse, error) {
	presets, err := h.presets.ListPresets(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list presets", err)
	}

	resp := &models.ListPresetsResponse{}
	resp.Body.Presets = make([]models.PresetBody, 0, len(presets))
	for _, p := range presets {
		resp.Body.Presets = append(resp.Body.Presets, p.ToBody())
	}
	return resp, nil
}

// GetPreset returns one preset. The reserved default preset is always flat.
func (h *PresetHandler) GetPreset(ctx context.Context, req *models.PresetNameRequest) (*models.PresetResponse, error) {
	preset, err := h.lookup(ctx, strings.TrimSpace(req.Name))
	if err != nil {
		return nil, err
	}
	return &models.PresetResponse{Body: preset.ToBody()}, nil
}

// SavePreset creates a preset or replaces the gains of an existing one
func (h *PresetHandler) SavePreset(ctx context.Context, req *models.SavePresetRequest) (*models.PresetResponse, error) {
	if models.IsDefaultPreset(req.Name) {
		return nil, huma.Error409Conflict("The default preset cannot be changed", nil)
	}
	name, err := models.NormalizePresetName(req.Name)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid preset name", err)
	}

	preset := &models.Preset{
		Name:  name,
		Gains: models.ParseGainProfile(req.Body.Gains).Normalize(h.eq.layout, h.eq.limit),
	}
	if err := h.presets.SavePreset(ctx, preset); err != nil {
		return nil, huma.Error500InternalServerError("Failed to save preset", err)
	}
	log.Info().Str("preset", name).Str("presetID", preset.ID).Msg("Preset saved")
	return &models.PresetResponse{Body: preset.ToBody()}, nil
}

// DeletePreset removes a preset
func (h *PresetHandler) DeletePreset(ctx context.Context, req *models.PresetNameRequest) (*models.DeletePresetResponse, error) {
	name := strings.TrimSpace(req.Name)
	if models.IsDefaultPreset(name) {
		return nil, huma.Error409Conflict("The default preset cannot be deleted", nil)
	}
	err := h.presets.DeletePreset(ctx, name)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, huma.Error404NotFound("Preset not found", err)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to delete preset", err)
	}

	log.Info().Str("preset", name).Msg("Preset deleted")
	resp := &models.DeletePresetResponse{}
	resp.Body.Message = fmt.Sprintf("Preset %q deleted", name)
	return resp, nil
}

// ApplyPreset makes the preset the current gains, keeping the enabled flag,
// and routes the result to the coordinator
func (h *PresetHandler) ApplyPreset(ctx context.Context, req *models.ApplyPresetRequest) (*models.ApplySettingsResponse, error) {
	preset, err := h.lookup(ctx, strings.TrimSpace(req.Name))
	if err != nil {
		return nil, err
	}

	settings, err := h.settings.GetSettings(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to load settings", err)
	}
	settings.Gains = preset.Gains.Normalize(h.eq.layout, h.eq.limit)
	settings.UpdatedAt = time.Now()
	if err := h.settings.SaveSettings(ctx, settings); err != nil {
		return nil, huma.Error500InternalServerError("Failed to save settings", err)
	}

	log.Info().Str("preset", preset.Name).Bool("enabled", settings.Enabled).Msg("Applying preset")
	var tab *int
	if req.TabID > 0 {
		tab = &req.TabID
	}
	return h.eq.apply(ctx, settings.Gains, settings.Enabled, tab), nil
}

// ExportPresets writes all presets to the archive and returns a download link
func (h *PresetHandler) ExportPresets(ctx context.Context, _ *struct{}) (*models.ExportPresetsResponse, error) {
	if h.archive == nil {
		return nil, huma.Error503ServiceUnavailable("Preset archive is not configured")
	}

	presets, err := h.presets.ListPresets(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list presets", err)
	}

	now := time.Now()
	data, err := storage.EncodeBundle(presets, now)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to encode presets", err)
	}
	key := storage.NewBundleKey(now)
	if err := h.archive.Put(ctx, key, data); err != nil {
		return nil, huma.Error500InternalServerError("Failed to store presets", err)
	}
	url, err := h.archive.GenerateDownloadURL(ctx, key)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to generate download URL", err)
	}

	log.Info().Str("key", key).Int("count", len(presets)).Msg("Presets exported")
	resp := &models.ExportPresetsResponse{}
	resp.Body.Key = key
	resp.Body.DownloadURL = url
	resp.Body.Count = len(presets)
	return resp, nil
}

// ImportPresets restores presets from an archived bundle. Invalid names are
// skipped; existing presets with the same name are replaced.
func (h *PresetHandler) ImportPresets(ctx context.Context, req *models.ImportPresetsRequest) (*models.ImportPresetsResponse, error) {
	if h.archive == nil {
		return nil, huma.Error503ServiceUnavailable("Preset archive is not configured")
	}

	data, err := h.archive.Get(ctx, req.Body.Key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, huma.Error404NotFound("Bundle not found", err)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to read bundle", err)
	}
	bundle, err := storage.DecodeBundle(data)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid preset bundle", err)
	}

	resp := &models.ImportPresetsResponse{}
	resp.Body.Imported = []string{}
	for _, p := range bundle.Presets {
		name, err := models.NormalizePresetName(p.Name)
		if err != nil {
			log.Warn().Err(err).Str("preset", p.Name).Msg("Skipping imported preset")
			resp.Body.Skipped = append(resp.Body.Skipped, p.Name)
			continue
		}
		preset := &models.Preset{
			Name:  name,
			Gains: p.Gains.Normalize(h.eq.layout, h.eq.limit),
		}
		if err := h.presets.SavePreset(ctx, preset); err != nil {
			return nil, huma.Error500InternalServerError("Failed to save preset", err)
		}
		resp.Body.Imported = append(resp.Body.Imported, name)
	}

	log.Info().Str("key", req.Body.Key).Int("imported", len(resp.Body.Imported)).Int("skipped", len(resp.Body.Skipped)).Msg("Presets imported")
	return resp, nil
}

func (h *PresetHandler) lookup(ctx context.Context, name string) (*models.Preset, error) {
	if models.IsDefaultPreset(name) {
		return &models.Preset{Name: models.DefaultPresetName, Gains: models.Flat(h.eq.layout)}, nil
	}
	preset, err := h.presets.GetPreset(ctx, name)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, huma.Error404NotFound("Preset not found", err)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to load preset", err)
	}
	return preset, nil
}
