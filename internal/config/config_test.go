package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/tabeq/pkg/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, zerolog.InfoLevel, cfg.Server.LogLevel)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "none", cfg.Archive.Backend)
	assert.Equal(t, "sim", cfg.Host.Driver)
	assert.Equal(t, "null", cfg.Audio.Output)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, models.TenBandLayout, cfg.Equalizer.Bands)
	assert.Equal(t, models.DefaultGainLimit, cfg.Equalizer.GainLimit)
	assert.Equal(t, 1.41, cfg.Equalizer.Q)
	assert.Equal(t, 15*time.Millisecond, cfg.Equalizer.GainRamp)
	assert.False(t, cfg.Equalizer.StopOnFocusLoss)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("STORAGE_BACKEND", "minio")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("HOST_DRIVER", "chrome")
	t.Setenv("CHROME_HEADLESS", "false")
	t.Setenv("BAND_LAYOUT", "20")
	t.Setenv("GAIN_LIMIT_DB", "12")
	t.Setenv("GAIN_RAMP_MS", "40")
	t.Setenv("STOP_ON_FOCUS_LOSS", "true")
	t.Setenv("SIM_TABS", "Radio:330")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, zerolog.DebugLevel, cfg.Server.LogLevel)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "minio", cfg.Archive.Backend)
	assert.Equal(t, "http://localhost:9000", cfg.Archive.Endpoint)
	assert.Equal(t, "chrome", cfg.Host.Driver)
	assert.False(t, cfg.Host.Headless)
	assert.Equal(t, "Radio:330", cfg.Host.SimTabs)
	assert.Len(t, cfg.Equalizer.Bands, 20)
	assert.Equal(t, 12.0, cfg.Equalizer.GainLimit)
	assert.Equal(t, 40*time.Millisecond, cfg.Equalizer.GainRamp)
	assert.True(t, cfg.Equalizer.StopOnFocusLoss)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "band layout", key: "BAND_LAYOUT", value: "31"},
		{name: "store driver", key: "STORE_DRIVER", value: "sqlite"},
		{name: "storage backend", key: "STORAGE_BACKEND", value: "gcs"},
		{name: "minio without endpoint", key: "STORAGE_BACKEND", value: "minio"},
		{name: "host driver", key: "HOST_DRIVER", value: "firefox"},
		{name: "audio output", key: "AUDIO_OUTPUT", value: "hdmi"},
		{name: "gain limit", key: "GAIN_LIMIT_DB", value: "0"},
		{name: "filter q", key: "FILTER_Q", value: "-1"},
		{name: "log level", key: "LOG_LEVEL", value: "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := load(viper.New())
			assert.Error(t, err)
		})
	}
}
