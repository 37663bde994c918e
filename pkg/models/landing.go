package models

import (
	"encoding/json"
	"time"
)

// Token is an issued landing-page session token and the ad parameters that
// gated it.
type Token struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	GCLID     string    `json:"gclid"`
	UTMSource string    `json:"utm_source"`
}

// Expired reports whether the token is no longer valid at now.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Event is one client-side behavioral event.
type Event struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	EventType string          `json:"event_type"`
	Meta      json.RawMessage `json:"meta"`
	CreatedAt time.Time       `json:"created_at"`
}

// Conversion records which redirect target a session was sent to.
type Conversion struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	InputValue string    `json:"input_value"`
	TargetURL  string    `json:"target_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// ConversionLink is a weighted redirect target managed from the admin console.
type ConversionLink struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	TargetURL string    `json:"target_url"`
	Weight    float64   `json:"weight"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type AdminUser struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// TrackingSettings holds the Google tag identifiers served to the frontend.
type TrackingSettings struct {
	GA4MeasurementID         string    `json:"ga4_measurement_id"`
	GoogleAdsConversionID    string    `json:"google_ads_conversion_id"`
	GoogleAdsConversionLabel string    `json:"google_ads_conversion_label"`
	UpdatedAt                time.Time `json:"-"`
}

// SessionSummary is one row of the analytics overview.
type SessionSummary struct {
	SessionID    string     `json:"session_id"`
	GCLID        string     `json:"gclid"`
	UTMSource    string     `json:"utm_source"`
	SessionStart time.Time  `json:"session_start"`
	EventCount   int64      `json:"event_count"`
	ScrollEvents int64      `json:"scroll_events"`
	Conversions  int64      `json:"conversions"`
	LastActivity *time.Time `json:"last_activity"`
}

type TokenInfo struct {
	GCLID     string    `json:"gclid"`
	UTMSource string    `json:"utm_source"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionDetail is everything recorded for a single session.
type SessionDetail struct {
	SessionID   string       `json:"session_id"`
	TokenInfo   TokenInfo    `json:"token_info"`
	Events      []Event      `json:"events"`
	Conversions []Conversion `json:"conversions"`
}
