// Package domain provides domain models used across the application.
package domain

import (
	"time"

	"github.com/lib/pq"
)

// Quality grade buckets derived from the quality score.
const (
	QualityGradeHigh    = "high"
	QualityGradeMedium  = "medium"
	QualityGradeLow     = "low"
	QualityGradeVeryLow = "very_low"
)

// Job is one stored posting. Identity is a UUID; uniqueness within a
// source is enforced on (source_id, canonical_hash).
type Job struct {
	// Identity
	ID            string `db:"id"             json:"id"`
	SourceID      string `db:"source_id"      json:"source_id"`
	CanonicalHash string `db:"canonical_hash" json:"canonical_hash"`

	// Posting
	Title          string  `db:"title"           json:"title"`
	OrgName        *string `db:"org_name"        json:"org_name,omitempty"`
	ApplyURL       string  `db:"apply_url"       json:"apply_url"`
	Description    *string `db:"description"     json:"description,omitempty"`
	SalaryRaw      *string `db:"salary_raw"      json:"salary_raw,omitempty"`
	EmploymentType *string `db:"employment_type" json:"employment_type,omitempty"`
	LevelNorm      *string `db:"level_norm"      json:"level_norm,omitempty"`
	Deadline       *string `db:"deadline"        json:"deadline,omitempty"` // ISO YYYY-MM-DD
	PostedOn       *string `db:"posted_on"       json:"posted_on,omitempty"`

	// Location & geocoding
	LocationRaw     *string    `db:"location_raw"     json:"location_raw,omitempty"`
	Country         *string    `db:"country"          json:"country,omitempty"`
	CountryISO      *string    `db:"country_iso"      json:"country_iso,omitempty"`
	City            *string    `db:"city"             json:"city,omitempty"`
	Latitude        *float64   `db:"latitude"         json:"latitude,omitempty"`
	Longitude       *float64   `db:"longitude"        json:"longitude,omitempty"`
	IsRemote        bool       `db:"is_remote"        json:"is_remote"`
	GeocodingSource *string    `db:"geocoding_source" json:"geocoding_source,omitempty"` // heuristic, nominatim, commercial
	GeocodedAt      *time.Time `db:"geocoded_at"      json:"geocoded_at,omitempty"`

	// Classification
	MissionTags           pq.StringArray `db:"mission_tags"           json:"mission_tags,omitempty"`
	InternationalEligible bool           `db:"international_eligible" json:"international_eligible"`

	// Quality
	QualityScore    float64        `db:"quality_score"     json:"quality_score"`
	QualityGrade    string         `db:"quality_grade"     json:"quality_grade"`
	QualityFactors  JSONBMap       `db:"quality_factors"   json:"quality_factors,omitempty"`
	QualityIssues   pq.StringArray `db:"quality_issues"    json:"quality_issues,omitempty"`
	NeedsReview     bool           `db:"needs_review"      json:"needs_review"`
	QualityScoredAt *time.Time     `db:"quality_scored_at" json:"quality_scored_at,omitempty"`

	// Metadata
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
	DeletedAt      *time.Time `db:"deleted_at"      json:"deleted_at,omitempty"`
	DeletedBy      *string    `db:"deleted_by"      json:"deleted_by,omitempty"`
	DeletionReason *string    `db:"deletion_reason" json:"deletion_reason,omitempty"`
}

// IsDeleted reports whether the job is soft-deleted.
func (j *Job) IsDeleted() bool {
	return j.DeletedAt != nil
}

// SearchDocument is the shape pushed to the search index for one job.
type SearchDocument struct {
	ID           string   `json:"id"             mapstructure:"id"`
	SourceID     string   `json:"source_id"      mapstructure:"source_id"`
	Title        string   `json:"title"          mapstructure:"title"`
	OrgName      string   `json:"org_name"       mapstructure:"org_name"`
	ApplyURL     string   `json:"apply_url"      mapstructure:"apply_url"`
	LocationRaw  string   `json:"location_raw"   mapstructure:"location_raw"`
	Country      string   `json:"country"        mapstructure:"country"`
	CountryISO   string   `json:"country_iso"    mapstructure:"country_iso"`
	City         string   `json:"city"           mapstructure:"city"`
	IsRemote     bool     `json:"is_remote"      mapstructure:"is_remote"`
	Deadline     string   `json:"deadline"       mapstructure:"deadline"`
	Description  string   `json:"description"    mapstructure:"description"`
	MissionTags  []string `json:"mission_tags"   mapstructure:"mission_tags"`
	QualityScore float64  `json:"quality_score"  mapstructure:"quality_score"`
	QualityGrade string   `json:"quality_grade"  mapstructure:"quality_grade"`
	UpdatedAt    string   `json:"updated_at"     mapstructure:"updated_at"`
}

// ToSearchDocument flattens the job for indexing. Pointer fields collapse
// to zero values so the document is always fully keyed.
func (j *Job) ToSearchDocument() *SearchDocument {
	doc := &SearchDocument{
		ID:           j.ID,
		SourceID:     j.SourceID,
		Title:        j.Title,
		ApplyURL:     j.ApplyURL,
		IsRemote:     j.IsRemote,
		MissionTags:  j.MissionTags,
		QualityScore: j.QualityScore,
		QualityGrade: j.QualityGrade,
		UpdatedAt:    j.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if j.OrgName != nil {
		doc.OrgName = *j.OrgName
	}
	if j.LocationRaw != nil {
		doc.LocationRaw = *j.LocationRaw
	}
	if j.Country != nil {
		doc.Country = *j.Country
	}
	if j.CountryISO != nil {
		doc.CountryISO = *j.CountryISO
	}
	if j.City != nil {
		doc.City = *j.City
	}
	if j.Deadline != nil {
		doc.Deadline = *j.Deadline
	}
	if j.Description != nil {
		doc.Description = *j.Description
	}
	return doc
}
