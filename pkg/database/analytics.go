package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alim08/landing/pkg/models"
)

type analyticsRepository struct {
	db *DB
}

// NewAnalyticsRepository creates the admin analytics reader
func NewAnalyticsRepository(db *DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

// RecentSessions summarises the newest sessions, one row per token.
func (r *analyticsRepository) RecentSessions(ctx context.Context, limit int) (out []models.SessionSummary, err error) {
	defer observe("recent_sessions", time.Now(), &err)

	query := `
		SELECT
			t.session_id,
			t.gclid,
			t.utm_source,
			t.created_at,
			(SELECT COUNT(*) FROM events e WHERE e.session_id = t.session_id),
			(SELECT COUNT(*) FROM events e WHERE e.session_id = t.session_id AND e.event_type = 'scroll'),
			(SELECT COUNT(*) FROM conversions c WHERE c.session_id = t.session_id),
			(SELECT MAX(e.created_at) FROM events e WHERE e.session_id = t.session_id)
		FROM tokens t
		ORDER BY t.created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, clampLimit(limit, 50, 500))
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.SessionSummary
		var last sql.NullTime
		if err := rows.Scan(&s.SessionID, &s.GCLID, &s.UTMSource, &s.SessionStart,
			&s.EventCount, &s.ScrollEvents, &s.Conversions, &last); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		if last.Valid {
			at := last.Time
			s.LastActivity = &at
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return out, nil
}

// Overview returns the dashboard totals in one round trip
func (r *analyticsRepository) Overview(ctx context.Context) (o *Overview, err error) {
	defer observe("overview", time.Now(), &err)

	query := `
		SELECT
			(SELECT COUNT(DISTINCT session_id) FROM tokens),
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM conversions),
			(SELECT COUNT(*) FROM conversion_links WHERE is_active = TRUE)
	`
	var out Overview
	if err = r.db.QueryRowContext(ctx, query).Scan(&out.Sessions, &out.Events, &out.Conversions, &out.ActiveLinks); err != nil {
		return nil, fmt.Errorf("failed to load overview: %w", err)
	}
	return &out, nil
}
