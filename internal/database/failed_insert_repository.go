package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// failedInsertSelectColumns lists columns for SELECT queries on failed_inserts.
const failedInsertSelectColumns = `id, source_id, source_url, raw_page_id,
	error, payload, operation, attempt_at, resolved_at, resolution_notes`

// FailedInsertRepository handles the append-only per-job failure ledger.
type FailedInsertRepository struct {
	db *sqlx.DB
}

// NewFailedInsertRepository creates a new failed insert repository.
func NewFailedInsertRepository(db *sqlx.DB) *FailedInsertRepository {
	return &FailedInsertRepository{db: db}
}

// Create appends one failure row.
func (r *FailedInsertRepository) Create(ctx context.Context, failure *domain.FailedInsert) error {
	query := `
		INSERT INTO failed_inserts (
			id, source_id, source_url, raw_page_id, error, payload, operation, attempt_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		failure.ID, failure.SourceID, failure.SourceURL, failure.RawPageID,
		failure.Error, failure.Payload, failure.Operation, failure.AttemptAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create failed insert: %w", err)
	}

	return nil
}

// CreateBatch appends failure rows in one transaction. Ledger writes are
// best-effort observability; a batch that cannot commit surfaces the
// error but must not fail the run that produced it.
func (r *FailedInsertRepository) CreateBatch(ctx context.Context, failures []*domain.FailedInsert) error {
	if len(failures) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin failed insert batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	query := `
		INSERT INTO failed_inserts (
			id, source_id, source_url, raw_page_id, error, payload, operation, attempt_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, failure := range failures {
		_, execErr := tx.ExecContext(ctx, query,
			failure.ID, failure.SourceID, failure.SourceURL, failure.RawPageID,
			failure.Error, failure.Payload, failure.Operation, failure.AttemptAt,
		)
		if execErr != nil {
			return fmt.Errorf("failed to insert failure row: %w", execErr)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("failed to commit failed insert batch: %w", commitErr)
	}

	return nil
}

// FailedInsertFilters represents filtering options for the failure ledger.
type FailedInsertFilters struct {
	SourceID   string
	Operation  domain.FailedInsertOperation
	Unresolved bool
	Limit      int
}

const defaultFailedInsertLimit = 50

// List returns failure rows newest first with optional filtering.
func (r *FailedInsertRepository) List(
	ctx context.Context,
	filters FailedInsertFilters,
) ([]*domain.FailedInsert, error) {
	var conditions []string
	args := []any{}
	argIndex := 1

	if filters.SourceID != "" {
		conditions = append(conditions, fmt.Sprintf("source_id = $%d", argIndex))
		args = append(args, filters.SourceID)
		argIndex++
	}

	if filters.Operation != "" {
		conditions = append(conditions, fmt.Sprintf("operation = $%d", argIndex))
		args = append(args, filters.Operation)
		argIndex++
	}

	if filters.Unresolved {
		conditions = append(conditions, "resolved_at IS NULL")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultFailedInsertLimit
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM failed_inserts
		%s
		ORDER BY attempt_at DESC
		LIMIT $%d
	`, failedInsertSelectColumns, whereClause, argIndex)
	args = append(args, limit)

	var failures []*domain.FailedInsert
	if err := r.db.SelectContext(ctx, &failures, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list failed inserts: %w", err)
	}

	if failures == nil {
		failures = []*domain.FailedInsert{}
	}

	return failures, nil
}

// Resolve records an admin resolution on one failure row. Resolution is
// the only mutation the ledger allows.
func (r *FailedInsertRepository) Resolve(ctx context.Context, id, notes string) error {
	query := `
		UPDATE failed_inserts
		SET resolved_at = NOW(), resolution_notes = $2
		WHERE id = $1 AND resolved_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, notes)
	return execRequireRows(result, err, fmt.Errorf("failed insert not found or already resolved: %s", id))
}

// CountByOperation returns failure counts since the given time, grouped
// by operation.
func (r *FailedInsertRepository) CountByOperation(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `
		SELECT operation, COUNT(*)
		FROM failed_inserts
		WHERE attempt_at >= $1
		GROUP BY operation
	`

	rows, err := r.db.QueryxContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count failed inserts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var operation string
		var count int
		if scanErr := rows.Scan(&operation, &count); scanErr != nil {
			return nil, fmt.Errorf("failed to scan failed insert count: %w", scanErr)
		}
		counts[operation] = count
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate failed insert counts: %w", rowsErr)
	}

	return counts, nil
}
