package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// ErrSourceNotFound is returned when a source lookup matches no row.
// Callers should check with errors.Is().
var ErrSourceNotFound = errors.New("source not found")

// sourceSelectColumns lists columns for SELECT queries on sources.
const sourceSelectColumns = `id, name, careers_url, source_type,
	status, crawl_frequency_days, parser_hint, render_js, detail_enrich, ignore_robots,
	etag, last_modified,
	last_crawled_at, last_crawl_status, next_run_at,
	consecutive_failures, consecutive_nochange, leased_until, leased_by,
	created_at, updated_at, deleted_at`

// SourceRepository handles database operations for sources.
type SourceRepository struct {
	db *sqlx.DB
}

// NewSourceRepository creates a new source repository.
func NewSourceRepository(db *sqlx.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// Create inserts a new source.
func (r *SourceRepository) Create(ctx context.Context, source *domain.Source) error {
	query := `
		INSERT INTO sources (
			id, name, careers_url, source_type, status, crawl_frequency_days,
			parser_hint, render_js, detail_enrich, ignore_robots, next_run_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		source.ID, source.Name, source.CareersURL, source.SourceType,
		source.Status, source.CrawlFrequencyDays,
		source.ParserHint, source.RenderJS, source.DetailEnrich, source.IgnoreRobots,
	).Scan(&source.CreatedAt, &source.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	return nil
}

// CreateOrUpdate upserts a source by name, used by config imports.
// Returns true when a new row was inserted. Scheduling state of existing
// rows is preserved; only config fields are replaced.
func (r *SourceRepository) CreateOrUpdate(ctx context.Context, source *domain.Source) (bool, error) {
	query := `
		INSERT INTO sources (
			id, name, careers_url, source_type, status, crawl_frequency_days,
			parser_hint, render_js, detail_enrich, ignore_robots, next_run_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (name) DO UPDATE SET
			careers_url = EXCLUDED.careers_url,
			source_type = EXCLUDED.source_type,
			status = EXCLUDED.status,
			crawl_frequency_days = EXCLUDED.crawl_frequency_days,
			parser_hint = EXCLUDED.parser_hint,
			render_js = EXCLUDED.render_js,
			detail_enrich = EXCLUDED.detail_enrich,
			ignore_robots = EXCLUDED.ignore_robots,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS is_insert
	`

	var returnedID string
	var isInsert bool
	err := r.db.QueryRowContext(ctx, query,
		source.ID, source.Name, source.CareersURL, source.SourceType,
		source.Status, source.CrawlFrequencyDays,
		source.ParserHint, source.RenderJS, source.DetailEnrich, source.IgnoreRobots,
	).Scan(&returnedID, &isInsert)
	if err != nil {
		return false, fmt.Errorf("failed to upsert source: %w", err)
	}

	source.ID = returnedID
	return isInsert, nil
}

// GetByID retrieves a source by its ID.
func (r *SourceRepository) GetByID(ctx context.Context, id string) (*domain.Source, error) {
	var source domain.Source
	query := `SELECT ` + sourceSelectColumns + ` FROM sources WHERE id = $1`

	err := r.db.GetContext(ctx, &source, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}

	return &source, nil
}

// GetByName retrieves a source by its unique name.
func (r *SourceRepository) GetByName(ctx context.Context, name string) (*domain.Source, error) {
	var source domain.Source
	query := `SELECT ` + sourceSelectColumns + ` FROM sources WHERE name = $1`

	err := r.db.GetContext(ctx, &source, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
		}
		return nil, fmt.Errorf("failed to get source by name: %w", err)
	}

	return &source, nil
}

// SourceFilters represents filtering options for listing sources.
type SourceFilters struct {
	Status string
	Type   string
	Search string // name or URL contains
	Limit  int
	Offset int
}

const defaultSourceLimit = 100

// List returns sources with pagination and filtering, ordered by name.
func (r *SourceRepository) List(ctx context.Context, filters SourceFilters) ([]*domain.Source, int, error) {
	whereClause, args := buildSourceWhere(filters)

	var count int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM sources %s", whereClause)
	if err := r.db.GetContext(ctx, &count, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count sources: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultSourceLimit
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	argIndex := len(args) + 1
	query := fmt.Sprintf(`
		SELECT %s
		FROM sources
		%s
		ORDER BY name ASC
		LIMIT $%d OFFSET $%d
	`, sourceSelectColumns, whereClause, argIndex, argIndex+1)
	args = append(args, limit, offset)

	var sources []*domain.Source
	if err := r.db.SelectContext(ctx, &sources, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list sources: %w", err)
	}

	if sources == nil {
		sources = []*domain.Source{}
	}

	return sources, count, nil
}

// buildSourceWhere builds the WHERE clause and args for source queries.
func buildSourceWhere(filters SourceFilters) (whereClause string, args []any) {
	var conditions []string
	args = []any{}
	argIndex := 1

	if filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filters.Status)
		argIndex++
	} else {
		conditions = append(conditions, "status != 'deleted'")
	}

	if filters.Type != "" {
		conditions = append(conditions, fmt.Sprintf("source_type = $%d", argIndex))
		args = append(args, filters.Type)
		argIndex++
	}

	if filters.Search != "" {
		conditions = append(conditions,
			fmt.Sprintf("(name ILIKE $%d OR careers_url ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+filters.Search+"%")
	}

	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}
	return whereClause, args
}

// Update replaces the admin-owned config fields of a source.
func (r *SourceRepository) Update(ctx context.Context, source *domain.Source) error {
	query := `
		UPDATE sources
		SET name = $2, careers_url = $3, source_type = $4, status = $5,
		    crawl_frequency_days = $6, parser_hint = $7, render_js = $8,
		    detail_enrich = $9, ignore_robots = $10, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		source.ID, source.Name, source.CareersURL, source.SourceType, source.Status,
		source.CrawlFrequencyDays, source.ParserHint, source.RenderJS,
		source.DetailEnrich, source.IgnoreRobots,
	)
	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrSourceNotFound, source.ID))
}

// SoftDelete marks a source deleted; the scheduler never picks it up again.
func (r *SourceRepository) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE sources
		SET status = 'deleted', deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status != 'deleted'
	`

	result, err := r.db.ExecContext(ctx, query, id)
	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrSourceNotFound, id))
}

// Restore reactivates a soft-deleted source as paused so an operator can
// review it before scheduling resumes.
func (r *SourceRepository) Restore(ctx context.Context, id string) error {
	query := `
		UPDATE sources
		SET status = 'paused', deleted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'deleted'
	`

	result, err := r.db.ExecContext(ctx, query, id)
	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrSourceNotFound, id))
}

// ListDue returns up to limit active sources whose next_run_at has passed
// and that are not currently leased, oldest due first.
func (r *SourceRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Source, error) {
	query := `
		SELECT ` + sourceSelectColumns + `
		FROM sources
		WHERE status = 'active'
		  AND (next_run_at IS NULL OR next_run_at <= $1)
		  AND (leased_until IS NULL OR leased_until < $1)
		ORDER BY next_run_at ASC NULLS FIRST
		LIMIT $2
	`

	var sources []*domain.Source
	if err := r.db.SelectContext(ctx, &sources, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list due sources: %w", err)
	}

	if sources == nil {
		sources = []*domain.Source{}
	}

	return sources, nil
}

// AcquireLease claims a source for one run. The guarded UPDATE makes the
// claim atomic: it succeeds only when no live lease exists, so two ticks
// racing for the same source serialize here. Returns false when the lease
// is held elsewhere or the source is no longer active.
func (r *SourceRepository) AcquireLease(ctx context.Context, id, workerID string, until time.Time) (bool, error) {
	query := `
		UPDATE sources
		SET leased_until = $2, leased_by = $3, updated_at = NOW()
		WHERE id = $1
		  AND status = 'active'
		  AND (leased_until IS NULL OR leased_until < NOW())
	`

	result, err := r.db.ExecContext(ctx, query, id, until, workerID)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// ReleaseLease clears a lease held by workerID. Releasing a lease that
// was already reaped or re-acquired is a no-op.
func (r *SourceRepository) ReleaseLease(ctx context.Context, id, workerID string) error {
	query := `
		UPDATE sources
		SET leased_until = NULL, leased_by = NULL, updated_at = NOW()
		WHERE id = $1 AND leased_by = $2
	`

	if _, err := r.db.ExecContext(ctx, query, id, workerID); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}

	return nil
}

// ReapExpiredLeases clears leases whose deadline has passed, recovering
// sources abandoned by crashed workers. Returns the number reaped.
func (r *SourceRepository) ReapExpiredLeases(ctx context.Context) (int, error) {
	query := `
		UPDATE sources
		SET leased_until = NULL, leased_by = NULL, updated_at = NOW()
		WHERE leased_until IS NOT NULL AND leased_until < NOW()
	`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired leases: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// ScheduleUpdate carries the post-run scheduling mutation for one source.
type ScheduleUpdate struct {
	LastCrawledAt       time.Time
	LastCrawlStatus     string
	NextRunAt           time.Time
	ConsecutiveFailures int
	ConsecutiveNochange int

	// Conditional-fetch state; applied only when SetConditional is true
	// so error runs keep the previous validators.
	SetConditional bool
	ETag           *string
	LastModified   *string

	// Pause flips the source to paused in the same statement, used by the
	// auto-pause path so the state change and the counters land together.
	Pause bool
}

// UpdateSchedule applies the post-run scheduling fields. Only the
// scheduler calls this, under its lease.
func (r *SourceRepository) UpdateSchedule(ctx context.Context, id string, upd ScheduleUpdate) error {
	query := `
		UPDATE sources
		SET last_crawled_at = $2,
		    last_crawl_status = $3,
		    next_run_at = $4,
		    consecutive_failures = $5,
		    consecutive_nochange = $6,
		    etag = CASE WHEN $7 THEN $8 ELSE etag END,
		    last_modified = CASE WHEN $7 THEN $9 ELSE last_modified END,
		    status = CASE WHEN $10 THEN 'paused' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		id, upd.LastCrawledAt, upd.LastCrawlStatus, upd.NextRunAt,
		upd.ConsecutiveFailures, upd.ConsecutiveNochange,
		upd.SetConditional, upd.ETag, upd.LastModified,
		upd.Pause,
	)
	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrSourceNotFound, id))
}

// MarkRunNow moves a source to the front of the due queue. Returns false
// when the source is not active, so the caller can report why the run was
// not accepted.
func (r *SourceRepository) MarkRunNow(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE sources
		SET next_run_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark source for immediate run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// Pause stops scheduling for a source.
func (r *SourceRepository) Pause(ctx context.Context, id string) error {
	query := `
		UPDATE sources
		SET status = 'paused', updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`

	result, err := r.db.ExecContext(ctx, query, id)
	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrSourceNotFound, id))
}

// Resume reactivates a paused source, resets its failure streak, and
// makes it due immediately.
func (r *SourceRepository) Resume(ctx context.Context, id string) error {
	query := `
		UPDATE sources
		SET status = 'active', consecutive_failures = 0, next_run_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'paused'
	`

	result, err := r.db.ExecContext(ctx, query, id)
	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrSourceNotFound, id))
}

// CountByStatus returns source counts grouped by status.
func (r *SourceRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM sources GROUP BY status`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count sources by status: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return nil, fmt.Errorf("failed to scan source count row: %w", scanErr)
		}
		counts[status] = count
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate source counts: %w", rowsErr)
	}

	return counts, nil
}
