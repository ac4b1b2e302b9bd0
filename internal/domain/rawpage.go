// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// RawPage is the immutable sidecar record of one fetch. The body lives in
// the raw-page store under storage_path and is never mutated; a 304 run
// writes a row with not_modified=true and zero content length.
type RawPage struct {
	// Identity
	ID       string `db:"id"        json:"id"`
	SourceID string `db:"source_id" json:"source_id"`
	URL      string `db:"url"       json:"url"`

	// Fetch outcome
	Status      int      `db:"status"       json:"status"` // HTTP status code
	HTTPHeaders JSONBMap `db:"http_headers" json:"http_headers,omitempty"`
	NotModified bool     `db:"not_modified" json:"not_modified"`

	// Content addressing
	StoragePath   string `db:"storage_path"   json:"storage_path"`
	ContentLength int64  `db:"content_length" json:"content_length"`
	ContentHash   string `db:"content_hash"   json:"content_hash"` // sha256 hex of the body

	// Metadata
	FetchedAt time.Time `db:"fetched_at" json:"fetched_at"`
}
