// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// FieldName enumerates the job fields the extractor cascade can produce.
type FieldName string

const (
	FieldTitle          FieldName = "title"
	FieldEmployer       FieldName = "employer"
	FieldLocation       FieldName = "location"
	FieldDeadline       FieldName = "deadline"
	FieldDescription    FieldName = "description"
	FieldRequirements   FieldName = "requirements"
	FieldApplicationURL FieldName = "application_url"
	FieldSalary         FieldName = "salary"
	FieldEmploymentType FieldName = "employment_type"
	FieldPostedOn       FieldName = "posted_on"
)

// FieldSource identifies which cascade stage produced a field value.
type FieldSource string

const (
	FieldSourceJSONLD    FieldSource = "jsonld"
	FieldSourceMeta      FieldSource = "meta"
	FieldSourceDOM       FieldSource = "dom"
	FieldSourceHeuristic FieldSource = "heuristic"
	FieldSourceRegex     FieldSource = "regex"
	FieldSourceAI        FieldSource = "ai"
)

// Confidence assigned per stage. Fusion is first-non-empty-wins; a later
// stage never lowers the confidence of a field already set.
const (
	ConfidenceJSONLD    = 0.90
	ConfidenceMeta      = 0.80
	ConfidenceDOM       = 0.70
	ConfidenceHeuristic = 0.60
	ConfidenceRegex     = 0.50
	ConfidenceAI        = 0.40
)

// StageConfidence returns the confidence assigned to values from a stage.
func StageConfidence(source FieldSource) float64 {
	switch source {
	case FieldSourceJSONLD:
		return ConfidenceJSONLD
	case FieldSourceMeta:
		return ConfidenceMeta
	case FieldSourceDOM:
		return ConfidenceDOM
	case FieldSourceHeuristic:
		return ConfidenceHeuristic
	case FieldSourceRegex:
		return ConfidenceRegex
	case FieldSourceAI:
		return ConfidenceAI
	default:
		return 0
	}
}

// FieldValue is one extracted field with provenance.
type FieldValue struct {
	Value      string      `json:"value"`
	Source     FieldSource `json:"source"`
	Confidence float64     `json:"confidence"`
	RawSnippet string      `json:"raw_snippet,omitempty"`
}

// ExtractionResult is the in-memory output of the cascade for one
// candidate posting.
type ExtractionResult struct {
	URL             string                    `json:"url"`
	CanonicalID     string                    `json:"canonical_id"`
	ExtractedAt     time.Time                 `json:"extracted_at"`
	PipelineVersion string                    `json:"pipeline_version"`
	Fields          map[FieldName]*FieldValue `json:"fields"`
	IsJob           bool                      `json:"is_job"`
	ClassifierScore float64                   `json:"classifier_score"`
	DedupeHash      string                    `json:"dedupe_hash"`
}

// NewExtractionResult returns an empty result for a URL.
func NewExtractionResult(url, pipelineVersion string) *ExtractionResult {
	return &ExtractionResult{
		URL:             url,
		ExtractedAt:     time.Now().UTC(),
		PipelineVersion: pipelineVersion,
		Fields:          make(map[FieldName]*FieldValue),
	}
}

// Get returns the value for a field, or "" when absent.
func (r *ExtractionResult) Get(name FieldName) string {
	if fv, ok := r.Fields[name]; ok {
		return fv.Value
	}
	return ""
}

// Has reports whether a field holds a non-empty value.
func (r *ExtractionResult) Has(name FieldName) bool {
	return r.Get(name) != ""
}

// SetField records a value under first-wins fusion: an existing non-empty
// field is kept untouched. Empty values are ignored.
func (r *ExtractionResult) SetField(name FieldName, value string, source FieldSource, snippet string) bool {
	if value == "" {
		return false
	}
	if existing, ok := r.Fields[name]; ok && existing.Value != "" {
		return false
	}
	r.Fields[name] = &FieldValue{
		Value:      value,
		Source:     source,
		Confidence: StageConfidence(source),
		RawSnippet: snippet,
	}
	return true
}

// ForceField overrides fusion for per-source stage overrides.
func (r *ExtractionResult) ForceField(name FieldName, value string, source FieldSource, snippet string) {
	if value == "" {
		return
	}
	r.Fields[name] = &FieldValue{
		Value:      value,
		Source:     source,
		Confidence: StageConfidence(source),
		RawSnippet: snippet,
	}
}

// FieldNames returns the names of populated fields, for extraction logs.
func (r *ExtractionResult) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name, fv := range r.Fields {
		if fv.Value != "" {
			names = append(names, string(name))
		}
	}
	return names
}
