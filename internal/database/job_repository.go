package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// ErrJobNotFound is returned when a job lookup matches no row.
// Callers should check with errors.Is().
var ErrJobNotFound = errors.New("job not found")

// UpsertBatchSize is the maximum number of jobs committed in one transaction.
const UpsertBatchSize = 500

// jobSelectColumns lists columns for SELECT queries on jobs.
const jobSelectColumns = `id, source_id, canonical_hash,
	title, org_name, apply_url, description,
	salary_raw, employment_type, level_norm, deadline, posted_on,
	location_raw, country, country_iso, city,
	latitude, longitude, is_remote, geocoding_source, geocoded_at,
	mission_tags, international_eligible,
	quality_score, quality_grade, quality_factors, quality_issues,
	needs_review, quality_scored_at,
	created_at, updated_at, deleted_at, deleted_by, deletion_reason`

// upsertJobQuery inserts a job or updates the mutable fields of the
// existing (source_id, canonical_hash) row. The DO UPDATE guard skips
// rows whose tracked columns are all unchanged (no RETURNING row) and
// never touches soft-deleted rows; created_at is never overwritten.
const upsertJobQuery = `
	INSERT INTO jobs (
		id, source_id, canonical_hash,
		title, org_name, apply_url, description,
		salary_raw, employment_type, level_norm, deadline, posted_on,
		location_raw, country, country_iso, city,
		latitude, longitude, is_remote, geocoding_source, geocoded_at,
		mission_tags, international_eligible,
		quality_score, quality_grade, quality_factors, quality_issues,
		needs_review, quality_scored_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29
	)
	ON CONFLICT (source_id, canonical_hash) DO UPDATE SET
		title = EXCLUDED.title,
		org_name = EXCLUDED.org_name,
		apply_url = EXCLUDED.apply_url,
		description = EXCLUDED.description,
		salary_raw = EXCLUDED.salary_raw,
		employment_type = EXCLUDED.employment_type,
		level_norm = EXCLUDED.level_norm,
		deadline = EXCLUDED.deadline,
		posted_on = EXCLUDED.posted_on,
		location_raw = EXCLUDED.location_raw,
		country = EXCLUDED.country,
		country_iso = EXCLUDED.country_iso,
		city = EXCLUDED.city,
		latitude = EXCLUDED.latitude,
		longitude = EXCLUDED.longitude,
		is_remote = EXCLUDED.is_remote,
		geocoding_source = EXCLUDED.geocoding_source,
		geocoded_at = EXCLUDED.geocoded_at,
		mission_tags = EXCLUDED.mission_tags,
		international_eligible = EXCLUDED.international_eligible,
		quality_score = EXCLUDED.quality_score,
		quality_grade = EXCLUDED.quality_grade,
		quality_factors = EXCLUDED.quality_factors,
		quality_issues = EXCLUDED.quality_issues,
		needs_review = EXCLUDED.needs_review,
		quality_scored_at = EXCLUDED.quality_scored_at,
		updated_at = NOW()
	WHERE jobs.deleted_at IS NULL
	  AND (jobs.title, jobs.org_name, jobs.apply_url, jobs.description,
	       jobs.salary_raw, jobs.employment_type, jobs.level_norm,
	       jobs.deadline, jobs.posted_on,
	       jobs.location_raw, jobs.country, jobs.country_iso, jobs.city,
	       jobs.latitude, jobs.longitude, jobs.is_remote, jobs.geocoding_source,
	       jobs.mission_tags, jobs.international_eligible,
	       jobs.quality_score, jobs.quality_grade, jobs.quality_issues,
	       jobs.needs_review)
	      IS DISTINCT FROM
	      (EXCLUDED.title, EXCLUDED.org_name, EXCLUDED.apply_url, EXCLUDED.description,
	       EXCLUDED.salary_raw, EXCLUDED.employment_type, EXCLUDED.level_norm,
	       EXCLUDED.deadline, EXCLUDED.posted_on,
	       EXCLUDED.location_raw, EXCLUDED.country, EXCLUDED.country_iso, EXCLUDED.city,
	       EXCLUDED.latitude, EXCLUDED.longitude, EXCLUDED.is_remote, EXCLUDED.geocoding_source,
	       EXCLUDED.mission_tags, EXCLUDED.international_eligible,
	       EXCLUDED.quality_score, EXCLUDED.quality_grade, EXCLUDED.quality_issues,
	       EXCLUDED.needs_review)
	RETURNING id, (xmax = 0) AS is_insert
`

// JobRepository handles database operations for job postings.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// UpsertFailure records one job that could not be written after the
// per-row retry.
type UpsertFailure struct {
	Job       *domain.Job
	Operation domain.FailedInsertOperation
	Err       error
}

// UpsertStats is the accounting for one UpsertBatch call.
type UpsertStats struct {
	Inserted int
	Updated  int
	Skipped  int
	Failed   int

	// Row ids that must be enqueued for the search-index sink.
	InsertedIDs []string
	UpdatedIDs  []string

	// Rows that failed even when retried on their own.
	Failures []UpsertFailure
}

func (s *UpsertStats) merge(other *UpsertStats) {
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.InsertedIDs = append(s.InsertedIDs, other.InsertedIDs...)
	s.UpdatedIDs = append(s.UpdatedIDs, other.UpdatedIDs...)
	s.Failures = append(s.Failures, other.Failures...)
}

// UpsertBatch writes jobs in transactions of at most UpsertBatchSize rows.
// A failed statement rolls back its whole chunk, after which every row in
// the chunk is retried in its own implicit transaction; rows that still
// fail are reported in the stats with the SQL error so the caller can
// ledger them. An error return means the database itself is unavailable.
func (r *JobRepository) UpsertBatch(ctx context.Context, jobs []*domain.Job) (*UpsertStats, error) {
	stats := &UpsertStats{}

	for start := 0; start < len(jobs); start += UpsertBatchSize {
		end := start + UpsertBatchSize
		if end > len(jobs) {
			end = len(jobs)
		}

		if err := r.upsertChunk(ctx, jobs[start:end], stats); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// upsertChunk writes one chunk in a single transaction, falling back to
// per-row retries when any statement in the chunk fails.
func (r *JobRepository) upsertChunk(ctx context.Context, chunk []*domain.Job, stats *UpsertStats) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert transaction: %w", err)
	}

	chunkStats := &UpsertStats{}
	for _, job := range chunk {
		if upsertErr := upsertRow(ctx, tx, job, chunkStats); upsertErr != nil {
			// The failed statement aborted the transaction, taking the
			// chunk's earlier rows with it. Retry each row on its own.
			_ = tx.Rollback()
			r.retryRows(ctx, chunk, stats)
			return nil
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		r.retryRows(ctx, chunk, stats)
		return nil
	}

	stats.merge(chunkStats)
	return nil
}

// retryRows retries every job of a rolled-back chunk individually. Rows
// that fail again are recorded with the SQL error message.
func (r *JobRepository) retryRows(ctx context.Context, chunk []*domain.Job, stats *UpsertStats) {
	for _, job := range chunk {
		rowStats := &UpsertStats{}

		if err := upsertRow(ctx, r.db, job, rowStats); err != nil {
			stats.Failed++
			stats.Failures = append(stats.Failures, UpsertFailure{
				Job:       job,
				Operation: r.classifyFailure(ctx, job),
				Err:       err,
			})
			continue
		}

		stats.merge(rowStats)
	}
}

// classifyFailure decides whether a failed row would have been an insert
// or an update, by probing for the conflict target.
func (r *JobRepository) classifyFailure(ctx context.Context, job *domain.Job) domain.FailedInsertOperation {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM jobs WHERE source_id = $1 AND canonical_hash = $2)`

	if err := r.db.GetContext(ctx, &exists, query, job.SourceID, job.CanonicalHash); err != nil {
		return domain.OperationInsert
	}
	if exists {
		return domain.OperationUpdate
	}
	return domain.OperationInsert
}

// upsertRow runs the upsert for a single job against q, which is either
// the chunk transaction or the pool for per-row retries. A missing
// RETURNING row means the guard skipped an unchanged row.
func upsertRow(ctx context.Context, q sqlx.QueryerContext, job *domain.Job, stats *UpsertStats) error {
	var id string
	var isInsert bool

	row := q.QueryRowxContext(ctx, upsertJobQuery,
		job.ID, job.SourceID, job.CanonicalHash,
		job.Title, job.OrgName, job.ApplyURL, job.Description,
		job.SalaryRaw, job.EmploymentType, job.LevelNorm, job.Deadline, job.PostedOn,
		job.LocationRaw, job.Country, job.CountryISO, job.City,
		job.Latitude, job.Longitude, job.IsRemote, job.GeocodingSource, job.GeocodedAt,
		job.MissionTags, job.InternationalEligible,
		job.QualityScore, job.QualityGrade, job.QualityFactors, job.QualityIssues,
		job.NeedsReview, job.QualityScoredAt,
	)

	if err := row.Scan(&id, &isInsert); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			stats.Skipped++
			return nil
		}
		return err
	}

	job.ID = id
	if isInsert {
		stats.Inserted++
		stats.InsertedIDs = append(stats.InsertedIDs, id)
	} else {
		stats.Updated++
		stats.UpdatedIDs = append(stats.UpdatedIDs, id)
	}

	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	query := `SELECT ` + jobSelectColumns + ` FROM jobs WHERE id = $1`

	err := r.db.GetContext(ctx, &job, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// GetByCanonical retrieves a job by its dedupe identity.
func (r *JobRepository) GetByCanonical(ctx context.Context, sourceID, canonicalHash string) (*domain.Job, error) {
	var job domain.Job
	query := `SELECT ` + jobSelectColumns + ` FROM jobs WHERE source_id = $1 AND canonical_hash = $2`

	err := r.db.GetContext(ctx, &job, query, sourceID, canonicalHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrJobNotFound, sourceID, canonicalHash)
		}
		return nil, fmt.Errorf("failed to get job by canonical hash: %w", err)
	}

	return &job, nil
}

// JobFilters represents filtering options for listing jobs.
type JobFilters struct {
	SourceID       string
	Grade          string
	NeedsReview    *bool
	IncludeDeleted bool
	Search         string // title contains
	Limit          int
	Offset         int
}

const defaultJobLimit = 50

// List returns jobs with pagination and filtering, newest first.
func (r *JobRepository) List(ctx context.Context, filters JobFilters) ([]*domain.Job, int, error) {
	whereClause, args := buildJobWhere(filters)

	var count int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM jobs %s", whereClause)
	if err := r.db.GetContext(ctx, &count, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultJobLimit
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	argIndex := len(args) + 1
	query := fmt.Sprintf(`
		SELECT %s
		FROM jobs
		%s
		ORDER BY updated_at DESC
		LIMIT $%d OFFSET $%d
	`, jobSelectColumns, whereClause, argIndex, argIndex+1)
	args = append(args, limit, offset)

	var jobs []*domain.Job
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}

	if jobs == nil {
		jobs = []*domain.Job{}
	}

	return jobs, count, nil
}

// buildJobWhere builds the WHERE clause and args for job list queries.
func buildJobWhere(filters JobFilters) (whereClause string, args []any) {
	var conditions []string
	args = []any{}
	argIndex := 1

	if !filters.IncludeDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}

	if filters.SourceID != "" {
		conditions = append(conditions, fmt.Sprintf("source_id = $%d", argIndex))
		args = append(args, filters.SourceID)
		argIndex++
	}

	if filters.Grade != "" {
		conditions = append(conditions, fmt.Sprintf("quality_grade = $%d", argIndex))
		args = append(args, filters.Grade)
		argIndex++
	}

	if filters.NeedsReview != nil {
		conditions = append(conditions, fmt.Sprintf("needs_review = $%d", argIndex))
		args = append(args, *filters.NeedsReview)
		argIndex++
	}

	if filters.Search != "" {
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", argIndex))
		args = append(args, "%"+filters.Search+"%")
	}

	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}
	return whereClause, args
}

// SoftDelete marks a job deleted without removing the row. The deletion
// triple is set atomically; already-deleted jobs are not re-deleted.
func (r *JobRepository) SoftDelete(ctx context.Context, id, deletedBy, reason string) error {
	query := `
		UPDATE jobs
		SET deleted_at = NOW(), deleted_by = $2, deletion_reason = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, deletedBy, reason)
	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrJobNotFound, id))
}

// Restore clears the deletion triple of a soft-deleted job.
func (r *JobRepository) Restore(ctx context.Context, id string) error {
	query := `
		UPDATE jobs
		SET deleted_at = NULL, deleted_by = NULL, deletion_reason = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NOT NULL
	`

	result, err := r.db.ExecContext(ctx, query, id)
	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrJobNotFound, id))
}

// ErrDeletionReasonRequired is returned when a hard delete has no reason.
var ErrDeletionReasonRequired = errors.New("hard delete requires a deletion reason")

// HardDelete removes a job row permanently. The caller is responsible for
// removing the document from the search index as well.
func (r *JobRepository) HardDelete(ctx context.Context, id, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrDeletionReasonRequired
	}

	query := `DELETE FROM jobs WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrJobNotFound, id))
}

// JobStats contains aggregate counts over live (non-deleted) jobs.
type JobStats struct {
	Total       int
	NeedsReview int
	Remote      int
	ByGrade     map[string]int
}

// Stats returns aggregate job counts grouped by quality grade.
func (r *JobRepository) Stats(ctx context.Context) (*JobStats, error) {
	query := `
		SELECT quality_grade,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE needs_review) AS needs_review,
		       COUNT(*) FILTER (WHERE is_remote) AS remote
		FROM jobs
		WHERE deleted_at IS NULL
		GROUP BY quality_grade
	`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query job stats: %w", err)
	}
	defer rows.Close()

	stats := &JobStats{ByGrade: map[string]int{}}
	for rows.Next() {
		var grade string
		var total, needsReview, remote int
		if scanErr := rows.Scan(&grade, &total, &needsReview, &remote); scanErr != nil {
			return nil, fmt.Errorf("failed to scan job stats row: %w", scanErr)
		}
		stats.ByGrade[grade] = total
		stats.Total += total
		stats.NeedsReview += needsReview
		stats.Remote += remote
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate job stats: %w", rowsErr)
	}

	return stats, nil
}
