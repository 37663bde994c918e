package database

import (
	"context"
	"time"

	"github.com/alim08/landing/pkg/models"
)

// TokenRepository defines the interface for session token data access
type TokenRepository interface {
	CreateToken(ctx context.Context, token *models.Token) error
	GetByToken(ctx context.Context, token string) (*models.Token, error)
	GetBySession(ctx context.Context, sessionID string) (*models.Token, error)
	ListRecentTokens(ctx context.Context, limit int) ([]models.Token, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// EventRepository defines the interface for tracked event data access
type EventRepository interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	ListEventsBySession(ctx context.Context, sessionID string) ([]models.Event, error)
}

// ConversionRepository defines the interface for conversion data access
type ConversionRepository interface {
	CreateConversion(ctx context.Context, conv *models.Conversion) error
	ListConversionsBySession(ctx context.Context, sessionID string) ([]models.Conversion, error)
}

// LinkRepository defines the interface for conversion link data access
type LinkRepository interface {
	ListLinks(ctx context.Context) ([]models.ConversionLink, error)
	ListActiveLinks(ctx context.Context) ([]models.ConversionLink, error)
	GetLink(ctx context.Context, id int64) (*models.ConversionLink, error)
	CreateLink(ctx context.Context, link *models.ConversionLink) error
	UpdateLink(ctx context.Context, link *models.ConversionLink) error
	DeleteLink(ctx context.Context, id int64) error
}

// AdminRepository defines the interface for admin account data access
type AdminRepository interface {
	GetAdmin(ctx context.Context, username string) (*models.AdminUser, error)
	EnsureAdmin(ctx context.Context, username, passwordHash string) (bool, error)
}

// SettingsRepository defines the interface for Google tracking settings
type SettingsRepository interface {
	GetTrackingSettings(ctx context.Context) (*models.TrackingSettings, error)
	EnsureTrackingSettings(ctx context.Context) error
	SaveTrackingSettings(ctx context.Context, s *models.TrackingSettings) error
}

// AnalyticsRepository defines the read side used by the admin console
type AnalyticsRepository interface {
	RecentSessions(ctx context.Context, limit int) ([]models.SessionSummary, error)
	Overview(ctx context.Context) (*Overview, error)
}

// Overview is the dashboard headline numbers.
type Overview struct {
	Sessions    int64 `json:"sessions"`
	Events      int64 `json:"events"`
	Conversions int64 `json:"conversions"`
	ActiveLinks int64 `json:"active_links"`
}

// Store bundles every repository over one connection pool.
type Store struct {
	Tokens      TokenRepository
	Events      EventRepository
	Conversions ConversionRepository
	Links       LinkRepository
	Admins      AdminRepository
	Settings    SettingsRepository
	Analytics   AnalyticsRepository
}

// NewStore wires the Postgres repositories.
func NewStore(db *DB) *Store {
	return &Store{
		Tokens:      &tokenRepository{db: db},
		Events:      &eventRepository{db: db},
		Conversions: &conversionRepository{db: db},
		Links:       &linkRepository{db: db},
		Admins:      &adminRepository{db: db},
		Settings:    &settingsRepository{db: db},
		Analytics:   &analyticsRepository{db: db},
	}
}

// clampLimit keeps list queries bounded.
func clampLimit(limit, def, max int) int {
	switch {
	case limit <= 0:
		return def
	case limit > max:
		return max
	}
	return limit
}
