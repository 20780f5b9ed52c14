// Package memory keeps settings and presets in process memory. It backs the
// service when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RMahshie/tabeq/internal/repository"
	"github.com/RMahshie/tabeq/pkg/models"
)

// Store implements repository.Store
type Store struct {
	layout models.BandLayout

	mu       sync.RWMutex
	settings *models.Settings
	presets  map[string]*models.Preset
}

// NewStore creates an empty store
func NewStore(layout models.BandLayout) *Store {
	return &Store{layout: layout, presets: make(map[string]*models.Preset)}
}

func (s *Store) GetSettings(_ context.Context) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return models.DefaultSettings(s.layout), nil
	}
	out := *s.settings
	out.Gains = s.settings.Gains.Clone()
	return &out, nil
}

func (s *Store) SaveSettings(_ context.Context, settings *models.Settings) error {
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now()
	}
	stored := *settings
	stored.Gains = settings.Gains.Clone()

	s.mu.Lock()
	s.settings = &stored
	s.mu.Unlock()
	return nil
}

func (s *Store) ListPresets(_ context.Context) ([]*models.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Preset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, clonePreset(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetPreset(_ context.Context, name string) (*models.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePreset(p), nil
}

func (s *Store) SavePreset(_ context.Context, preset *models.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.presets[preset.Name]; ok {
		preset.ID = existing.ID
		preset.CreatedAt = existing.CreatedAt
	} else {
		if preset.ID == "" {
			preset.ID = uuid.New().String()
		}
		preset.CreatedAt = now
	}
	preset.UpdatedAt = now
	s.presets[preset.Name] = clonePreset(preset)
	return nil
}

func (s *Store) DeletePreset(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[name]; !ok {
		return repository.ErrNotFound
	}
	delete(s.presets, name)
	return nil
}

func clonePreset(p *models.Preset) *models.Preset {
	out := *p
	out.Gains = p.Gains.Clone()
	return &out
}
