package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/RMahshie/tabeq/internal/coordinator"
	"github.com/RMahshie/tabeq/internal/host"
	"github.com/RMahshie/tabeq/pkg/models"
)

// MockStore implements repository.Store for testing
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetSettings(ctx context.Context) (*models.Settings, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*models.Settings)
	return s, args.Error(1)
}

func (m *MockStore) SaveSettings(ctx context.Context, settings *models.Settings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockStore) ListPresets(ctx context.Context) ([]*models.Preset, error) {
	args := m.Called(ctx)
	p, _ := args.Get(0).([]*models.Preset)
	return p, args.Error(1)
}

func (m *MockStore) GetPreset(ctx context.Context, name string) (*models.Preset, error) {
	args := m.Called(ctx, name)
	p, _ := args.Get(0).(*models.Preset)
	return p, args.Error(1)
}

func (m *MockStore) SavePreset(ctx context.Context, preset *models.Preset) error {
	args := m.Called(ctx, preset)
	return args.Error(0)
}

func (m *MockStore) DeletePreset(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

// MockController implements SessionController for testing
type MockController struct {
	mock.Mock
}

func (m *MockController) ApplySettings(ctx context.Context, tab host.TabID, gains models.GainProfile, enabled bool) error {
	args := m.Called(ctx, tab, gains, enabled)
	return args.Error(0)
}

func (m *MockController) HandleTabEvent(ctx context.Context, ev host.TabEvent) {
	m.Called(ctx, ev)
}

func (m *MockController) Status() coordinator.Status {
	args := m.Called()
	return args.Get(0).(coordinator.Status)
}

// MockTabs implements host.Tabs for testing
type MockTabs struct {
	mock.Mock
}

func (m *MockTabs) List(ctx context.Context) ([]host.Tab, error) {
	args := m.Called(ctx)
	t, _ := args.Get(0).([]host.Tab)
	return t, args.Error(1)
}

func (m *MockTabs) Active(ctx context.Context) (host.TabID, error) {
	args := m.Called(ctx)
	return args.Get(0).(host.TabID), args.Error(1)
}

func (m *MockTabs) SetMuted(ctx context.Context, tab host.TabID, muted bool) error {
	args := m.Called(ctx, tab, muted)
	return args.Error(0)
}

// MockArchive implements storage.Archive for testing
type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) Put(ctx context.Context, key string, data []byte) error {
	args := m.Called(ctx, key, data)
	return args.Error(0)
}

func (m *MockArchive) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *MockArchive) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockArchive) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// assertStatus checks that err is a huma error with the given HTTP status
func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	var se huma.StatusError
	if assert.True(t, errors.As(err, &se), "not a status error: %v", err) {
		assert.Equal(t, status, se.GetStatus())
	}
}
