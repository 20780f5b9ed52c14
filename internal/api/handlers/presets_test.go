package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/tabeq/internal/coordinator"
	"github.com/RMahshie/tabeq/internal/host"
	"github.com/RMahshie/tabeq/internal/processing"
	"github.com/RMahshie/tabeq/internal/repository"
	"github.com/RMahshie/tabeq/internal/storage"
	"github.com/RMahshie/tabeq/pkg/models"
)

func newPresets(withArchive bool) (*PresetHandler, *MockStore, *MockController, *MockTabs, *MockArchive) {
	eq, store, coord, tabs := newEqualizer()
	archive := &MockArchive{}
	var a storage.Archive
	if withArchive {
		a = archive
	}
	return NewPresetHandler(store, store, a, eq), store, coord, tabs, archive
}

func TestGetPreset(t *testing.T) {
	tests := []struct {
		name       string
		preset     string
		mockSetup  func(*MockStore)
		wantStatus int
		wantGains  map[string]float64
	}{
		{
			name:   "stored preset",
			preset: "Rock",
			mockSetup: func(store *MockStore) {
				store.On("GetPreset", mock.Anything, "Rock").Return(&models.Preset{
					ID: "p1", Name: "Rock", Gains: models.GainProfile{32: 4},
				}, nil)
			},
			wantGains: map[string]float64{"32": 4},
		},
		{
			name:   "surrounding spaces are trimmed",
			preset: "  Rock ",
			mockSetup: func(store *MockStore) {
				store.On("GetPreset", mock.Anything, "Rock").Return(&models.Preset{
					ID: "p1", Name: "Rock", Gains: models.GainProfile{32: 4},
				}, nil)
			},
			wantGains: map[string]float64{"32": 4},
		},
		{
			name:      "default is flat",
			preset:    "Default",
			mockSetup: func(store *MockStore) {},
			wantGains: models.Flat(models.TenBandLayout).Wire(),
		},
		{
			name:   "missing preset",
			preset: "Jazz",
			mockSetup: func(store *MockStore) {
				store.On("GetPreset", mock.Anything, "Jazz").Return(nil, repository.ErrNotFound)
			},
			wantStatus: 404,
		},
		{
			name:   "store failure",
			preset: "Jazz",
			mockSetup: func(store *MockStore) {
				store.On("GetPreset", mock.Anything, "Jazz").Return(nil, assert.AnError)
			},
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, _, _, _ := newPresets(false)
			tt.mockSetup(store)

			resp, err := h.GetPreset(context.Background(), &models.PresetNameRequest{Name: tt.preset})
			if tt.wantStatus != 0 {
				assertStatus(t, err, tt.wantStatus)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantGains, resp.Body.Gains)
			}
			store.AssertExpectations(t)
		})
	}
}

func TestSavePreset(t *testing.T) {
	tests := []struct {
		name       string
		preset     string
		mockSetup  func(*MockStore)
		wantStatus int
	}{
		{
			name:   "valid preset",
			preset: "  Bass Boost ",
			mockSetup: func(store *MockStore) {
				store.On("SavePreset", mock.Anything, mock.MatchedBy(func(p *models.Preset) bool {
					return p.Name == "Bass Boost" && len(p.Gains) == 10 && p.Gains[32] == 12
				})).Run(func(args mock.Arguments) {
					args.Get(1).(*models.Preset).ID = "p1"
				}).Return(nil)
			},
		},
		{
			name:       "default is reserved",
			preset:     "default",
			mockSetup:  func(store *MockStore) {},
			wantStatus: 409,
		},
		{
			name:       "blank name",
			preset:     "   ",
			mockSetup:  func(store *MockStore) {},
			wantStatus: 400,
		},
		{
			name:   "store failure",
			preset: "Rock",
			mockSetup: func(store *MockStore) {
				store.On("SavePreset", mock.Anything, mock.Anything).Return(assert.AnError)
			},
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, _, _, _ := newPresets(false)
			tt.mockSetup(store)

			req := &models.SavePresetRequest{Name: tt.preset}
			req.Body.Gains = map[string]float64{"32": 20}
			resp, err := h.SavePreset(context.Background(), req)
			if tt.wantStatus != 0 {
				assertStatus(t, err, tt.wantStatus)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "p1", resp.Body.ID)
				assert.Equal(t, 12.0, resp.Body.Gains["32"])
			}
			store.AssertExpectations(t)
		})
	}
}

func TestDeletePreset(t *testing.T) {
	tests := []struct {
		name       string
		preset     string
		mockSetup  func(*MockStore)
		wantStatus int
	}{
		{
			name:   "existing preset",
			preset: "Rock",
			mockSetup: func(store *MockStore) {
				store.On("DeletePreset", mock.Anything, "Rock").Return(nil)
			},
		},
		{
			name:   "surrounding spaces are trimmed",
			preset: " Rock  ",
			mockSetup: func(store *MockStore) {
				store.On("DeletePreset", mock.Anything, "Rock").Return(nil)
			},
		},
		{
			name:       "default is reserved",
			preset:     "DEFAULT",
			mockSetup:  func(store *MockStore) {},
			wantStatus: 409,
		},
		{
			name:   "missing preset",
			preset: "Jazz",
			mockSetup: func(store *MockStore) {
				store.On("DeletePreset", mock.Anything, "Jazz").Return(repository.ErrNotFound)
			},
			wantStatus: 404,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, _, _, _ := newPresets(false)
			tt.mockSetup(store)

			resp, err := h.DeletePreset(context.Background(), &models.PresetNameRequest{Name: tt.preset})
			if tt.wantStatus != 0 {
				assertStatus(t, err, tt.wantStatus)
			} else {
				require.NoError(t, err)
				assert.Contains(t, resp.Body.Message, tt.preset)
			}
			store.AssertExpectations(t)
		})
	}
}

func TestApplyPresetKeepsEnabledFlag(t *testing.T) {
	h, store, coord, _, _ := newPresets(false)
	store.On("GetPreset", mock.Anything, "Rock").Return(&models.Preset{Name: "Rock", Gains: models.GainProfile{64: 5}}, nil)
	store.On("GetSettings", mock.Anything).Return(&models.Settings{Gains: models.Flat(models.TenBandLayout), Enabled: false}, nil)
	store.On("SaveSettings", mock.Anything, mock.MatchedBy(func(s *models.Settings) bool {
		return !s.Enabled && s.Gains[64] == 5
	})).Return(nil)
	coord.On("ApplySettings", mock.Anything, host.TabID(0), mock.Anything, false).Return(nil)
	coord.On("Status").Return(coordinator.Status{Phase: processing.Idle})

	resp, err := h.ApplyPreset(context.Background(), &models.ApplyPresetRequest{Name: "Rock"})
	require.NoError(t, err)
	assert.True(t, resp.Body.Success)
	assert.Equal(t, "idle", resp.Body.Session.Phase)
	store.AssertExpectations(t)
	coord.AssertExpectations(t)
}

func TestApplyDefaultPresetFlattensActiveSession(t *testing.T) {
	h, store, coord, _, _ := newPresets(false)
	tab := host.TabID(3)
	store.On("GetSettings", mock.Anything).Return(&models.Settings{Gains: models.GainProfile{32: 6}, Enabled: true}, nil)
	store.On("SaveSettings", mock.Anything, mock.Anything).Return(nil)
	coord.On("ApplySettings", mock.Anything, tab, models.Flat(models.TenBandLayout), true).Return(nil)
	coord.On("Status").Return(coordinator.Status{Phase: processing.Active, Tab: &tab, Since: time.Now()})

	resp, err := h.ApplyPreset(context.Background(), &models.ApplyPresetRequest{Name: "default", TabID: 3})
	require.NoError(t, err)
	assert.True(t, resp.Body.Success)
	store.AssertNotCalled(t, "GetPreset", mock.Anything, mock.Anything)
	coord.AssertExpectations(t)
}

func TestArchiveUnavailable(t *testing.T) {
	h, _, _, _, _ := newPresets(false)

	_, err := h.ExportPresets(context.Background(), nil)
	assertStatus(t, err, 503)

	req := &models.ImportPresetsRequest{}
	req.Body.Key = "presets/x.json"
	_, err = h.ImportPresets(context.Background(), req)
	assertStatus(t, err, 503)
}

func TestExportPresets(t *testing.T) {
	h, store, _, _, archive := newPresets(true)
	presets := []*models.Preset{
		{ID: "p1", Name: "Rock", Gains: models.GainProfile{32: 4}},
		{ID: "p2", Name: "Vocal", Gains: models.GainProfile{2000: 3}},
	}
	store.On("ListPresets", mock.Anything).Return(presets, nil)
	archive.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return len(key) > len("presets/")
	}), mock.MatchedBy(func(data []byte) bool {
		bundle, err := storage.DecodeBundle(data)
		return err == nil && len(bundle.Presets) == 2
	})).Return(nil)
	archive.On("GenerateDownloadURL", mock.Anything, mock.Anything).Return("https://example.com/bundle", nil)

	resp, err := h.ExportPresets(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Body.Count)
	assert.Equal(t, "https://example.com/bundle", resp.Body.DownloadURL)
	assert.Contains(t, resp.Body.Key, "presets/")
	archive.AssertExpectations(t)
}

func TestImportPresets(t *testing.T) {
	bundle, err := storage.EncodeBundle([]*models.Preset{
		{ID: "old-id", Name: "Rock", Gains: models.GainProfile{32: 40}},
		{ID: "x", Name: "default", Gains: models.GainProfile{}},
		{ID: "y", Name: " ", Gains: models.GainProfile{}},
	}, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name         string
		mockSetup    func(*MockStore, *MockArchive)
		wantStatus   int
		wantImported []string
		wantSkipped  []string
	}{
		{
			name: "valid bundle",
			mockSetup: func(store *MockStore, archive *MockArchive) {
				archive.On("Get", mock.Anything, "presets/b.json").Return(bundle, nil)
				store.On("SavePreset", mock.Anything, mock.MatchedBy(func(p *models.Preset) bool {
					return p.Name == "Rock" && p.ID == "" && p.Gains[32] == 12
				})).Return(nil)
			},
			wantImported: []string{"Rock"},
			wantSkipped:  []string{"default", " "},
		},
		{
			name: "missing bundle",
			mockSetup: func(store *MockStore, archive *MockArchive) {
				archive.On("Get", mock.Anything, "presets/b.json").Return(nil, storage.ErrNotFound)
			},
			wantStatus: 404,
		},
		{
			name: "corrupt bundle",
			mockSetup: func(store *MockStore, archive *MockArchive) {
				archive.On("Get", mock.Anything, "presets/b.json").Return([]byte(`{"version":9}`), nil)
			},
			wantStatus: 400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, _, _, archive := newPresets(true)
			tt.mockSetup(store, archive)

			req := &models.ImportPresetsRequest{}
			req.Body.Key = "presets/b.json"
			resp, err := h.ImportPresets(context.Background(), req)
			if tt.wantStatus != 0 {
				assertStatus(t, err, tt.wantStatus)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantImported, resp.Body.Imported)
				assert.Equal(t, tt.wantSkipped, resp.Body.Skipped)
			}
			store.AssertExpectations(t)
			archive.AssertExpectations(t)
		})
	}
}
