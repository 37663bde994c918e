package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alim08/landing/pkg/models"
)

type linkRepository struct {
	db *DB
}

// NewLinkRepository creates a new conversion link repository
func NewLinkRepository(db *DB) LinkRepository {
	return &linkRepository{db: db}
}

const linkColumns = `id, name, target_url, weight, is_active, created_at`

// ListLinks returns all links newest first
func (r *linkRepository) ListLinks(ctx context.Context) (out []models.ConversionLink, err error) {
	defer observe("list_links", time.Now(), &err)
	return r.query(ctx, `SELECT `+linkColumns+` FROM conversion_links ORDER BY created_at DESC, id DESC`)
}

// ListActiveLinks returns the links eligible for redirect selection
func (r *linkRepository) ListActiveLinks(ctx context.Context) (out []models.ConversionLink, err error) {
	defer observe("list_active_links", time.Now(), &err)
	return r.query(ctx, `SELECT `+linkColumns+` FROM conversion_links WHERE is_active = TRUE ORDER BY id`)
}

func (r *linkRepository) GetLink(ctx context.Context, id int64) (link *models.ConversionLink, err error) {
	defer observe("get_link", time.Now(), &err)

	var l models.ConversionLink
	err = r.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM conversion_links WHERE id = $1`, id).
		Scan(&l.ID, &l.Name, &l.TargetURL, &l.Weight, &l.IsActive, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return &l, nil
}

// CreateLink inserts a link and fills in ID and CreatedAt
func (r *linkRepository) CreateLink(ctx context.Context, l *models.ConversionLink) (err error) {
	defer observe("create_link", time.Now(), &err)

	query := `
		INSERT INTO conversion_links (name, target_url, weight, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	if err = r.db.QueryRowContext(ctx, query, l.Name, l.TargetURL, l.Weight, l.IsActive).Scan(&l.ID, &l.CreatedAt); err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

// UpdateLink overwrites the mutable columns of an existing link
func (r *linkRepository) UpdateLink(ctx context.Context, l *models.ConversionLink) (err error) {
	defer observe("update_link", time.Now(), &err)

	query := `
		UPDATE conversion_links
		SET name = $1, target_url = $2, weight = $3, is_active = $4
		WHERE id = $5
	`
	res, err := r.db.ExecContext(ctx, query, l.Name, l.TargetURL, l.Weight, l.IsActive, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	return requireAffected(res)
}

func (r *linkRepository) DeleteLink(ctx context.Context, id int64) (err error) {
	defer observe("delete_link", time.Now(), &err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM conversion_links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	return requireAffected(res)
}

func (r *linkRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.ConversionLink, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var out []models.ConversionLink
	for rows.Next() {
		var l models.ConversionLink
		if err := rows.Scan(&l.ID, &l.Name, &l.TargetURL, &l.Weight, &l.IsActive, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}
	return out, nil
}

// requireAffected maps "no row changed" to ErrNotFound.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
