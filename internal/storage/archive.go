// Package storage archives preset bundles in object storage so they can be
// downloaded and imported elsewhere.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RMahshie/tabeq/pkg/models"
)

const (
	// BundleContentType is the content type of stored bundles
	BundleContentType = "application/json"

	// BundleVersion is written into every exported bundle
	BundleVersion = 1

	// MaxBundleSize bounds downloaded bundles
	MaxBundleSize = 1 << 20

	// DownloadURLExpiry is how long presigned download links stay valid
	DownloadURLExpiry = 24 * time.Hour
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("archive object not found")

// Archive stores preset bundles
type Archive interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// NewBundleKey returns a unique key for an export made at t
func NewBundleKey(t time.Time) string {
	return fmt.Sprintf("presets/%s-%s.json", t.UTC().Format("20060102T150405Z"), uuid.New().String()[:8])
}

// EncodeBundle serializes presets for export
func EncodeBundle(presets []*models.Preset, exportedAt time.Time) ([]byte, error) {
	bundle := models.PresetBundle{
		Version:    BundleVersion,
		ExportedAt: exportedAt.UTC(),
		Presets:    make([]models.Preset, 0, len(presets)),
	}
	for _, p := range presets {
		bundle.Presets = append(bundle.Presets, *p)
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bundle: %w", err)
	}
	return data, nil
}

// DecodeBundle parses an exported bundle
func DecodeBundle(data []byte) (*models.PresetBundle, error) {
	var bundle models.PresetBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}
	if bundle.Version != BundleVersion {
		return nil, fmt.Errorf("unsupported bundle version %d", bundle.Version)
	}
	return &bundle, nil
}
