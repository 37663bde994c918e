package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alim08/landing/pkg/models"
)

type tokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *DB) TokenRepository {
	return &tokenRepository{db: db}
}

// CreateToken stores an issued token and fills in ID and CreatedAt
func (r *tokenRepository) CreateToken(ctx context.Context, t *models.Token) (err error) {
	defer observe("create_token", time.Now(), &err)

	query := `
		INSERT INTO tokens (token, session_id, expires_at, gclid, utm_source)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err = r.db.QueryRowContext(ctx, query, t.Token, t.SessionID, t.ExpiresAt, t.GCLID, t.UTMSource).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// GetByToken looks a token up by its signed string
func (r *tokenRepository) GetByToken(ctx context.Context, token string) (t *models.Token, err error) {
	defer observe("get_token", time.Now(), &err)

	query := `
		SELECT id, token, session_id, expires_at, created_at, gclid, utm_source
		FROM tokens
		WHERE token = $1
	`
	return scanToken(r.db.QueryRowContext(ctx, query, token))
}

// GetBySession returns the first token issued for a session
func (r *tokenRepository) GetBySession(ctx context.Context, sessionID string) (t *models.Token, err error) {
	defer observe("get_token_by_session", time.Now(), &err)

	query := `
		SELECT id, token, session_id, expires_at, created_at, gclid, utm_source
		FROM tokens
		WHERE session_id = $1
		ORDER BY created_at
		LIMIT 1
	`
	return scanToken(r.db.QueryRowContext(ctx, query, sessionID))
}

// ListRecentTokens returns the newest tokens first
func (r *tokenRepository) ListRecentTokens(ctx context.Context, limit int) (out []models.Token, err error) {
	defer observe("list_tokens", time.Now(), &err)

	query := `
		SELECT id, token, session_id, expires_at, created_at, gclid, utm_source
		FROM tokens
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, clampLimit(limit, 100, 1000))
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.Token
		if err := rows.Scan(&t.ID, &t.Token, &t.SessionID, &t.ExpiresAt, &t.CreatedAt, &t.GCLID, &t.UTMSource); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}
	return out, nil
}

// PurgeExpired deletes sessions whose tokens expired before the cutoff,
// together with their events and conversions. It returns the number of
// tokens removed.
func (r *tokenRepository) PurgeExpired(ctx context.Context, before time.Time) (purged int64, err error) {
	defer observe("purge_expired", time.Now(), &err)

	err = r.db.Transaction(ctx, func(tx *sql.Tx) error {
		const expired = `SELECT session_id FROM tokens WHERE expires_at < $1`
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id IN (`+expired+`)`, before); err != nil {
			return fmt.Errorf("failed to purge events: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversions WHERE session_id IN (`+expired+`)`, before); err != nil {
			return fmt.Errorf("failed to purge conversions: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at < $1`, before)
		if err != nil {
			return fmt.Errorf("failed to purge tokens: %w", err)
		}
		purged, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

func scanToken(row *sql.Row) (*models.Token, error) {
	var t models.Token
	err := row.Scan(&t.ID, &t.Token, &t.SessionID, &t.ExpiresAt, &t.CreatedAt, &t.GCLID, &t.UTMSource)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}
	return &t, nil
}
