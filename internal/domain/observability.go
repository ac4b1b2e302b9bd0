// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// RunStatus is the single top-level verdict of one source run.
type RunStatus string

const (
	// RunStatusOK means at least one job was extracted and committed.
	RunStatusOK RunStatus = "OK"
	// RunStatusPartial means candidates were extracted but none survived
	// validation, or the run deadline cut the run short after commits.
	RunStatusPartial RunStatus = "PARTIAL"
	// RunStatusEmpty means extraction produced zero candidates.
	RunStatusEmpty RunStatus = "EMPTY"
	// RunStatusDBFail means extraction succeeded but the upsert failed.
	RunStatusDBFail RunStatus = "DB_FAIL"
)

// ExtractionLog is the one-per-run summary row. RawPageID is nil when the
// fetch failed before producing a body.
type ExtractionLog struct {
	// Identity
	ID        string  `db:"id"          json:"id"`
	SourceID  string  `db:"source_id"   json:"source_id"`
	RawPageID *string `db:"raw_page_id" json:"raw_page_id,omitempty"`
	URL       string  `db:"url"         json:"url"`

	// Verdict
	Status          RunStatus `db:"status"           json:"status"`
	Reason          *string   `db:"reason"           json:"reason,omitempty"`
	ExtractedFields JSONBMap  `db:"extracted_fields" json:"extracted_fields,omitempty"`

	// Counters
	JobsFound    int   `db:"jobs_found"    json:"jobs_found"`
	JobsInserted int   `db:"jobs_inserted" json:"jobs_inserted"`
	JobsUpdated  int   `db:"jobs_updated"  json:"jobs_updated"`
	JobsSkipped  int   `db:"jobs_skipped"  json:"jobs_skipped"`
	JobsFailed   int   `db:"jobs_failed"   json:"jobs_failed"`
	DurationMs   int64 `db:"duration_ms"   json:"duration_ms"`

	// Metadata
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FailedInsertOperation classifies where in the pipeline a job was lost.
type FailedInsertOperation string

const (
	OperationInsert     FailedInsertOperation = "insert"
	OperationUpdate     FailedInsertOperation = "update"
	OperationValidation FailedInsertOperation = "validation"
	OperationProcess    FailedInsertOperation = "process"
)

// FailedInsert is one row in the per-job failure ledger. Rows are
// append-only; only the resolution fields are mutable, by the admin path.
type FailedInsert struct {
	// Identity
	ID        string  `db:"id"          json:"id"`
	SourceID  string  `db:"source_id"   json:"source_id"`
	SourceURL string  `db:"source_url"  json:"source_url"`
	RawPageID *string `db:"raw_page_id" json:"raw_page_id,omitempty"`

	// Failure
	Error     string                `db:"error"      json:"error"`
	Payload   JSONBMap              `db:"payload"    json:"payload"`
	Operation FailedInsertOperation `db:"operation"  json:"operation"`
	AttemptAt time.Time             `db:"attempt_at" json:"attempt_at"`

	// Resolution (admin-only)
	ResolvedAt      *time.Time `db:"resolved_at"      json:"resolved_at,omitempty"`
	ResolutionNotes *string    `db:"resolution_notes" json:"resolution_notes,omitempty"`
}

// CoverageRow is one source's aggregate over a coverage window.
// MismatchPct is the fraction of discovered jobs that never reached the
// jobs table: 1 - (inserted+updated+skipped)/discovered.
type CoverageRow struct {
	SourceID       string  `db:"source_id"       json:"source_id"`
	SourceName     string  `db:"source_name"     json:"source_name"`
	DiscoveredURLs int     `db:"discovered_urls" json:"discovered_urls"`
	RowsInserted   int     `db:"rows_inserted"   json:"rows_inserted"`
	RowsUpdated    int     `db:"rows_updated"    json:"rows_updated"`
	RowsSkipped    int     `db:"rows_skipped"    json:"rows_skipped"`
	MismatchPct    float64 `db:"mismatch_pct"    json:"mismatch_pct"`
	Level          string  `db:"-"               json:"level"` // ok, warning, critical
}

// Coverage alert thresholds on mismatch_pct.
const (
	CoverageWarningPct  = 0.05
	CoverageCriticalPct = 0.10
)

// CoverageLevel buckets a mismatch percentage.
func CoverageLevel(mismatchPct float64) string {
	switch {
	case mismatchPct > CoverageCriticalPct:
		return "critical"
	case mismatchPct > CoverageWarningPct:
		return "warning"
	default:
		return "ok"
	}
}

// RunReport is the user-visible summary of one run.
type RunReport struct {
	SourceID   string    `json:"source_id"`
	Status     RunStatus `json:"status"`
	Found      int       `json:"found"`
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	DurationMs int64     `json:"duration_ms"`
	Message    string    `json:"message"` // short human-readable summary, <=200 chars
}

// maxReportMessageLen caps RunReport.Message.
const maxReportMessageLen = 200

// SetMessage trims the message to the report cap.
func (r *RunReport) SetMessage(msg string) {
	if len(msg) > maxReportMessageLen {
		msg = msg[:maxReportMessageLen-3] + "..."
	}
	r.Message = msg
}
