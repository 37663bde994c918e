package database

import (
	"context"
	"fmt"
	"time"

	"github.com/alim08/landing/pkg/models"
)

type eventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) EventRepository {
	return &eventRepository{db: db}
}

// CreateEvent saves an event; Meta must already be valid JSON.
func (r *eventRepository) CreateEvent(ctx context.Context, e *models.Event) (err error) {
	defer observe("create_event", time.Now(), &err)

	meta := []byte(e.Meta)
	if len(meta) == 0 {
		meta = []byte("{}")
	}

	query := `
		INSERT INTO events (session_id, event_type, meta)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if err = r.db.QueryRowContext(ctx, query, e.SessionID, e.EventType, meta).Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// ListEventsBySession returns a session's events oldest first
func (r *eventRepository) ListEventsBySession(ctx context.Context, sessionID string) (out []models.Event, err error) {
	defer observe("list_events_by_session", time.Now(), &err)

	query := `
		SELECT id, session_id, event_type, meta, created_at
		FROM events
		WHERE session_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.Event
		var meta []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(meta) == 0 {
			meta = []byte("{}")
		}
		e.Meta = meta
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return out, nil
}

type conversionRepository struct {
	db *DB
}

// NewConversionRepository creates a new conversion repository
func NewConversionRepository(db *DB) ConversionRepository {
	return &conversionRepository{db: db}
}

// CreateConversion saves which target a session was redirected to
func (r *conversionRepository) CreateConversion(ctx context.Context, c *models.Conversion) (err error) {
	defer observe("create_conversion", time.Now(), &err)

	query := `
		INSERT INTO conversions (session_id, input_value, target_url)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if err = r.db.QueryRowContext(ctx, query, c.SessionID, c.InputValue, c.TargetURL).Scan(&c.ID, &c.CreatedAt); err != nil {
		return fmt.Errorf("failed to save conversion: %w", err)
	}
	return nil
}

func (r *conversionRepository) ListConversionsBySession(ctx context.Context, sessionID string) (out []models.Conversion, err error) {
	defer observe("list_conversions_by_session", time.Now(), &err)

	query := `
		SELECT id, session_id, input_value, target_url, created_at
		FROM conversions
		WHERE session_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Conversion
		if err := rows.Scan(&c.ID, &c.SessionID, &c.InputValue, &c.TargetURL, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversions: %w", err)
	}
	return out, nil
}
