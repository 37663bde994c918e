package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alim08/landing/pkg/models"
)

type adminRepository struct {
	db *DB
}

// NewAdminRepository creates a new admin account repository
func NewAdminRepository(db *DB) AdminRepository {
	return &adminRepository{db: db}
}

func (r *adminRepository) GetAdmin(ctx context.Context, username string) (u *models.AdminUser, err error) {
	defer observe("get_admin", time.Now(), &err)

	query := `
		SELECT id, username, password_hash, created_at
		FROM admin_users
		WHERE username = $1
	`
	var a models.AdminUser
	err = r.db.QueryRowContext(ctx, query, username).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return &a, nil
}

// EnsureAdmin creates the account if it does not exist yet. An existing
// account keeps its password. It reports whether a row was inserted.
func (r *adminRepository) EnsureAdmin(ctx context.Context, username, passwordHash string) (created bool, err error) {
	defer observe("ensure_admin", time.Now(), &err)

	query := `
		INSERT INTO admin_users (username, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (username) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		return false, fmt.Errorf("failed to seed admin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

type settingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new tracking settings repository
func NewSettingsRepository(db *DB) SettingsRepository {
	return &settingsRepository{db: db}
}

// GetTrackingSettings returns the single settings row, or empty settings
// when it has not been created yet.
func (r *settingsRepository) GetTrackingSettings(ctx context.Context) (s *models.TrackingSettings, err error) {
	defer observe("get_tracking_settings", time.Now(), &err)

	query := `
		SELECT ga4_measurement_id, google_ads_conversion_id, google_ads_conversion_label, updated_at
		FROM google_tracking_settings
		WHERE id = 1
	`
	var out models.TrackingSettings
	err = r.db.QueryRowContext(ctx, query).
		Scan(&out.GA4MeasurementID, &out.GoogleAdsConversionID, &out.GoogleAdsConversionLabel, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.TrackingSettings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracking settings: %w", err)
	}
	return &out, nil
}

func (r *settingsRepository) EnsureTrackingSettings(ctx context.Context) (err error) {
	defer observe("ensure_tracking_settings", time.Now(), &err)

	if _, err = r.db.ExecContext(ctx, `INSERT INTO google_tracking_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING`); err != nil {
		return fmt.Errorf("failed to seed tracking settings: %w", err)
	}
	return nil
}

// SaveTrackingSettings upserts the settings row and sets UpdatedAt
func (r *settingsRepository) SaveTrackingSettings(ctx context.Context, s *models.TrackingSettings) (err error) {
	defer observe("save_tracking_settings", time.Now(), &err)

	query := `
		INSERT INTO google_tracking_settings (id, ga4_measurement_id, google_ads_conversion_id, google_ads_conversion_label)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			ga4_measurement_id = EXCLUDED.ga4_measurement_id,
			google_ads_conversion_id = EXCLUDED.google_ads_conversion_id,
			google_ads_conversion_label = EXCLUDED.google_ads_conversion_label,
			updated_at = NOW()
		RETURNING updated_at
	`
	err = r.db.QueryRowContext(ctx, query, s.GA4MeasurementID, s.GoogleAdsConversionID, s.GoogleAdsConversionLabel).
		Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save tracking settings: %w", err)
	}
	return nil
}
