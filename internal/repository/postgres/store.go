package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/RMahshie/tabeq/internal/repository"
	"github.com/RMahshie/tabeq/pkg/models"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the PostgreSQL error code for unique constraint failures
const uniqueViolation = "23505"

// PostgresStore implements repository.Store for PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	layout models.BandLayout
}

// NewPostgresStore creates a new PostgreSQL store. Settings that were never
// saved read back as flat gains over layout.
func NewPostgresStore(db *sql.DB, layout models.BandLayout) *PostgresStore {
	return &PostgresStore{db: db, layout: layout}
}

// Migrate creates the tables if they do not exist
func (r *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// GetSettings retrieves the current settings
func (r *PostgresStore) GetSettings(ctx context.Context) (*models.Settings, error) {
	query := `
		SELECT gains, enabled, updated_at
		FROM eq_settings
		WHERE id = 1`

	var settings models.Settings
	var gains []byte
	err := r.db.QueryRowContext(ctx, query).Scan(&gains, &settings.Enabled, &settings.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultSettings(r.layout), nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(gains, &settings.Gains); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gains: %w", err)
	}
	return &settings, nil
}

// SaveSettings upserts the settings row
func (r *PostgresStore) SaveSettings(ctx context.Context, settings *models.Settings) error {
	gains, err := json.Marshal(settings.Gains)
	if err != nil {
		return fmt.Errorf("failed to marshal gains: %w", err)
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO eq_settings (id, gains, enabled, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET gains = EXCLUDED.gains, enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`

	_, err = r.db.ExecContext(ctx, query, string(gains), settings.Enabled, settings.UpdatedAt)
	return err
}

// ListPresets retrieves all presets ordered by name
func (r *PostgresStore) ListPresets(ctx context.Context) ([]*models.Preset, error) {
	query := `
		SELECT id, name, gains, created_at, updated_at
		FROM eq_presets
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	presets := []*models.Preset{}
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		presets = append(presets, preset)
	}
	return presets, rows.Err()
}

// GetPreset retrieves a preset by name
func (r *PostgresStore) GetPreset(ctx context.Context, name string) (*models.Preset, error) {
	query := `
		SELECT id, name, gains, created_at, updated_at
		FROM eq_presets
		WHERE name = $1`

	preset, err := scanPreset(r.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return preset, err
}

// SavePreset inserts a preset or replaces the gains of the one with the same
// name. The stored id and timestamps are written back to preset.
func (r *PostgresStore) SavePreset(ctx context.Context, preset *models.Preset) error {
	gains, err := json.Marshal(preset.Gains)
	if err != nil {
		return fmt.Errorf("failed to marshal gains: %w", err)
	}
	if preset.ID == "" {
		preset.ID = uuid.New().String()
	}
	now := time.Now()

	query := `
		INSERT INTO eq_presets (id, name, gains, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (name) DO UPDATE
		SET gains = EXCLUDED.gains, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRowContext(ctx, query, preset.ID, preset.Name, string(gains), now).
		Scan(&preset.ID, &preset.CreatedAt, &preset.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("preset id %s already used: %w", preset.ID, err)
	}
	return err
}

// DeletePreset removes a preset by name
func (r *PostgresStore) DeletePreset(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM eq_presets WHERE name = $1`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPreset(row scanner) (*models.Preset, error) {
	var preset models.Preset
	var gains []byte
	if err := row.Scan(&preset.ID, &preset.Name, &gains, &preset.CreatedAt, &preset.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(gains, &preset.Gains); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gains: %w", err)
	}
	return &preset, nil
}
