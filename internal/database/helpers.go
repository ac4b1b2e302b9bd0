package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// execRequireRows checks an Exec result and returns notFoundErr when zero
// rows were affected.
func execRequireRows(result sql.Result, err, notFoundErr error) error {
	if err != nil {
		return fmt.Errorf("exec failed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFoundErr
	}

	return nil
}

// pq error codes we branch on.
const (
	pqUniqueViolation = "23505"
)

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
