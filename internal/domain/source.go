// Package domain provides domain models used across the application.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SourceType identifies the fetch adapter used for a source.
type SourceType string

const (
	// SourceTypeHTML fetches and parses an HTML careers page.
	SourceTypeHTML SourceType = "html"
	// SourceTypeRSS fetches and parses an RSS/Atom feed.
	SourceTypeRSS SourceType = "rss"
	// SourceTypeAPI fetches a JSON endpoint described by the parser hint.
	SourceTypeAPI SourceType = "api"
)

// SourceStatus represents the lifecycle state of a source.
type SourceStatus string

const (
	// SourceStatusActive means the scheduler will run the source when due.
	SourceStatusActive SourceStatus = "active"
	// SourceStatusPaused means the source is skipped until resumed.
	SourceStatusPaused SourceStatus = "paused"
	// SourceStatusDeleted means the source is soft-deleted.
	SourceStatusDeleted SourceStatus = "deleted"
)

// Crawl status values recorded on sources.last_crawl_status.
const (
	CrawlStatusOK      = "OK"
	CrawlStatusPartial = "PARTIAL"
	CrawlStatusEmpty   = "EMPTY"
	CrawlStatusDBFail  = "DB_FAIL"
	CrawlStatusError   = "ERROR"
)

// Source is one configured ingestion entry point. Config fields are owned
// by the admin layer; scheduling fields are mutated only by the scheduler
// under its lease.
type Source struct {
	// Identity
	ID         string     `db:"id"          json:"id"`
	Name       string     `db:"name"        json:"name"`
	CareersURL string     `db:"careers_url" json:"careers_url"`
	SourceType SourceType `db:"source_type" json:"source_type"`

	// Config
	Status             SourceStatus `db:"status"               json:"status"`
	CrawlFrequencyDays int          `db:"crawl_frequency_days" json:"crawl_frequency_days"`
	ParserHint         *string      `db:"parser_hint"          json:"parser_hint,omitempty"` // free-form for html/rss, strict JSON v:1 for api
	RenderJS           bool         `db:"render_js"            json:"render_js"`
	DetailEnrich       bool         `db:"detail_enrich"        json:"detail_enrich"`
	IgnoreRobots       bool         `db:"ignore_robots"        json:"ignore_robots"`

	// Conditional-fetch state
	ETag         *string `db:"etag"          json:"etag,omitempty"`
	LastModified *string `db:"last_modified" json:"last_modified,omitempty"`

	// Scheduling
	LastCrawledAt       *time.Time `db:"last_crawled_at"      json:"last_crawled_at,omitempty"`
	LastCrawlStatus     *string    `db:"last_crawl_status"    json:"last_crawl_status,omitempty"`
	NextRunAt           *time.Time `db:"next_run_at"          json:"next_run_at,omitempty"`
	ConsecutiveFailures int        `db:"consecutive_failures" json:"consecutive_failures"`
	ConsecutiveNochange int        `db:"consecutive_nochange" json:"consecutive_nochange"`
	LeasedUntil         *time.Time `db:"leased_until"         json:"leased_until,omitempty"`
	LeasedBy            *string    `db:"leased_by"            json:"leased_by,omitempty"`

	// Metadata
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// APIHint is the strict parser hint schema required for api sources.
type APIHint struct {
	Version int               `json:"v"`
	BaseURL string            `json:"base_url"`
	Path    string            `json:"path"`
	Auth    map[string]string `json:"auth,omitempty"`
	Map     APIFieldMap       `json:"map"`
}

// APIFieldMap maps record keys in the remote JSON to job fields.
type APIFieldMap struct {
	Title    string `json:"title"`
	ApplyURL string `json:"apply_url"`
	Location string `json:"location,omitempty"`
	Deadline string `json:"deadline,omitempty"`
}

// ErrNotAPIHint is returned when a parser hint is missing or not v:1 JSON.
var ErrNotAPIHint = errors.New("parser hint is not a v:1 api hint")

// ParseAPIHint decodes and validates the strict JSON hint for api sources.
func (s *Source) ParseAPIHint() (*APIHint, error) {
	if s.ParserHint == nil || *s.ParserHint == "" {
		return nil, ErrNotAPIHint
	}

	var hint APIHint
	if err := json.Unmarshal([]byte(*s.ParserHint), &hint); err != nil {
		return nil, fmt.Errorf("decode api hint: %w", err)
	}
	if hint.Version != 1 {
		return nil, ErrNotAPIHint
	}
	if hint.BaseURL == "" || hint.Map.Title == "" || hint.Map.ApplyURL == "" {
		return nil, fmt.Errorf("api hint missing base_url or field map: %w", ErrNotAPIHint)
	}
	return &hint, nil
}

// IsDue reports whether the source should be picked up by the scheduler.
func (s *Source) IsDue(now time.Time) bool {
	if s.Status != SourceStatusActive {
		return false
	}
	return s.NextRunAt == nil || !s.NextRunAt.After(now)
}
