package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// ErrRawPageNotFound is returned when a raw page lookup matches no row.
var ErrRawPageNotFound = errors.New("raw page not found")

// rawPageSelectColumns lists columns for SELECT queries on raw_pages.
const rawPageSelectColumns = `id, source_id, url, status, http_headers, not_modified,
	storage_path, content_length, content_hash, fetched_at`

// RawPageRepository handles database operations for raw page sidecars.
type RawPageRepository struct {
	db *sqlx.DB
}

// NewRawPageRepository creates a new raw page repository.
func NewRawPageRepository(db *sqlx.DB) *RawPageRepository {
	return &RawPageRepository{db: db}
}

// Create writes the sidecar row for one fetched body. The row is written
// after the blob: if this insert fails the blob is orphaned but never
// referenced, which the retention sweep tolerates.
func (r *RawPageRepository) Create(ctx context.Context, page *domain.RawPage) error {
	query := `
		INSERT INTO raw_pages (
			id, source_id, url, status, http_headers, not_modified,
			storage_path, content_length, content_hash, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		page.ID, page.SourceID, page.URL, page.Status, page.HTTPHeaders,
		page.NotModified, page.StoragePath, page.ContentLength, page.ContentHash,
		page.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create raw page: %w", err)
	}

	return nil
}

// GetByID retrieves a raw page sidecar by its ID.
func (r *RawPageRepository) GetByID(ctx context.Context, id string) (*domain.RawPage, error) {
	var page domain.RawPage
	query := `SELECT ` + rawPageSelectColumns + ` FROM raw_pages WHERE id = $1`

	err := r.db.GetContext(ctx, &page, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRawPageNotFound, id)
		}
		return nil, fmt.Errorf("failed to get raw page: %w", err)
	}

	return &page, nil
}

// ListBySource returns the most recent raw pages for one source.
func (r *RawPageRepository) ListBySource(ctx context.Context, sourceID string, limit int) ([]*domain.RawPage, error) {
	query := `
		SELECT ` + rawPageSelectColumns + `
		FROM raw_pages
		WHERE source_id = $1
		ORDER BY fetched_at DESC
		LIMIT $2
	`

	var pages []*domain.RawPage
	if err := r.db.SelectContext(ctx, &pages, query, sourceID, limit); err != nil {
		return nil, fmt.Errorf("failed to list raw pages: %w", err)
	}

	if pages == nil {
		pages = []*domain.RawPage{}
	}

	return pages, nil
}

// DeleteOlderThan removes sidecar rows fetched before the cutoff and
// returns their storage paths so the caller can remove the blobs.
func (r *RawPageRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `DELETE FROM raw_pages WHERE fetched_at < $1 RETURNING storage_path`

	rows, err := r.db.QueryxContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete old raw pages: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if scanErr := rows.Scan(&path); scanErr != nil {
			return nil, fmt.Errorf("failed to scan deleted raw page path: %w", scanErr)
		}
		paths = append(paths, path)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate deleted raw pages: %w", rowsErr)
	}

	return paths, nil
}
