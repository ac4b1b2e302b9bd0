package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// extractionLogSelectColumns lists columns for SELECT queries on extraction_logs.
const extractionLogSelectColumns = `id, source_id, raw_page_id, url, status, reason,
	extracted_fields, jobs_found, jobs_inserted, jobs_updated, jobs_skipped,
	jobs_failed, duration_ms, created_at`

// ExtractionLogRepository handles database operations for run summaries.
type ExtractionLogRepository struct {
	db *sqlx.DB
}

// NewExtractionLogRepository creates a new extraction log repository.
func NewExtractionLogRepository(db *sqlx.DB) *ExtractionLogRepository {
	return &ExtractionLogRepository{db: db}
}

// Create appends the one-per-run summary row.
func (r *ExtractionLogRepository) Create(ctx context.Context, log *domain.ExtractionLog) error {
	query := `
		INSERT INTO extraction_logs (
			id, source_id, raw_page_id, url, status, reason, extracted_fields,
			jobs_found, jobs_inserted, jobs_updated, jobs_skipped, jobs_failed,
			duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		log.ID, log.SourceID, log.RawPageID, log.URL, log.Status, log.Reason,
		log.ExtractedFields, log.JobsFound, log.JobsInserted, log.JobsUpdated,
		log.JobsSkipped, log.JobsFailed, log.DurationMs,
	).Scan(&log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create extraction log: %w", err)
	}

	return nil
}

// ListBySource returns the latest run summaries for one source.
func (r *ExtractionLogRepository) ListBySource(
	ctx context.Context,
	sourceID string,
	limit int,
) ([]*domain.ExtractionLog, error) {
	query := `
		SELECT ` + extractionLogSelectColumns + `
		FROM extraction_logs
		WHERE source_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var logs []*domain.ExtractionLog
	if err := r.db.SelectContext(ctx, &logs, query, sourceID, limit); err != nil {
		return nil, fmt.Errorf("failed to list extraction logs: %w", err)
	}

	if logs == nil {
		logs = []*domain.ExtractionLog{}
	}

	return logs, nil
}

// Coverage aggregates extraction logs since the given time into one row
// per source: jobs discovered vs rows that reached the jobs table. The
// mismatch percentage and alert level are computed in Go so the math has
// one home.
func (r *ExtractionLogRepository) Coverage(ctx context.Context, since time.Time) ([]*domain.CoverageRow, error) {
	query := `
		SELECT s.id AS source_id,
		       s.name AS source_name,
		       COALESCE(SUM(l.jobs_found), 0) AS discovered_urls,
		       COALESCE(SUM(l.jobs_inserted), 0) AS rows_inserted,
		       COALESCE(SUM(l.jobs_updated), 0) AS rows_updated,
		       COALESCE(SUM(l.jobs_skipped), 0) AS rows_skipped
		FROM sources s
		JOIN extraction_logs l ON l.source_id = s.id
		WHERE l.created_at >= $1 AND s.deleted_at IS NULL
		GROUP BY s.id, s.name
		ORDER BY s.name ASC
	`

	var rows []*domain.CoverageRow
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to query coverage: %w", err)
	}

	for _, row := range rows {
		row.MismatchPct = mismatchPct(row.DiscoveredURLs, row.RowsInserted+row.RowsUpdated+row.RowsSkipped)
		row.Level = domain.CoverageLevel(row.MismatchPct)
	}

	if rows == nil {
		rows = []*domain.CoverageRow{}
	}

	return rows, nil
}

// mismatchPct is the fraction of discovered jobs unaccounted for in the
// jobs table, clamped to [0,1]. Zero discovered means zero mismatch.
func mismatchPct(discovered, accounted int) float64 {
	if discovered <= 0 {
		return 0
	}

	pct := 1 - float64(accounted)/float64(discovered)
	if pct < 0 {
		return 0
	}
	return pct
}
