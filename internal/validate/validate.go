// Package validate is the pre-upsert gate. Hard errors block a job and
// send it to the failure ledger; warnings ride along in the run report.
package validate

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/metrics"
	"github.com/jonesrussell/jobcrawl/internal/normalize"
	"github.com/jonesrussell/jobcrawl/internal/quality"
)

// Hard-error literals. They are stored verbatim in
// failed_inserts.payload.validation_error and surfaced by the admin
// API, so their wording is part of the contract.
const (
	ReasonMissingTitle     = "Missing required field: title"
	ReasonMissingApplyURL  = "Missing required field: apply_url"
	ReasonTitleTooShort    = "Title too short"
	ReasonInvalidURLScheme = "Invalid URL scheme"
	ReasonDuplicateInBatch = "duplicate_in_batch"
)

const (
	minTitleRunes    = 5
	maxTitleRunes    = 500
	maxLocationRunes = 200
)

// urlDenylist blocks pseudo-URLs that cannot be applied to.
var urlDenylist = []string{"javascript:", "mailto:", "tel:", "data:"}

// metricKinds maps hard-error literals to their metric label.
var metricKinds = map[string]string{
	ReasonMissingTitle:     "missing_title",
	ReasonMissingApplyURL:  "missing_apply_url",
	ReasonTitleTooShort:    "title_too_short",
	ReasonInvalidURLScheme: "invalid_url_scheme",
	ReasonDuplicateInBatch: "duplicate_in_batch",
}

// suspiciousTitles are navigation labels that sometimes survive
// extraction as job titles. Length-gated entries only: anything under
// five runes is already blocked by the title length check.
var suspiciousTitles = map[string]bool{
	"apply":      true,
	"apply now":  true,
	"careers":    true,
	"learn more": true,
	"login":      true,
	"read more":  true,
	"register":   true,
	"sign in":    true,
	"subscribe":  true,
	"vacancies":  true,
}

// InvalidJob pairs a blocked job with its first hard error.
type InvalidJob struct {
	Job    *domain.Job
	Reason string
}

// Stats summarizes one validation pass.
type Stats struct {
	Total    int
	Valid    int
	Invalid  int
	Warnings int
}

// Result partitions a batch into storable and blocked jobs.
type Result struct {
	Valid    []*domain.Job
	Invalid  []InvalidJob
	Warnings []string
	Stats    Stats
}

// Validator gates normalized jobs before the upsert engine.
type Validator struct {
	metrics *metrics.Metrics
	log     logger.Interface
}

// New returns a validator.
func New(log logger.Interface) *Validator {
	return &Validator{log: log}
}

// SetMetrics attaches rejection instrumentation. Call before the first
// Validate; leaving it unset disables recording.
func (v *Validator) SetMetrics(m *metrics.Metrics) {
	v.metrics = m
}

// Validate checks every job, stamping canonical_hash on the way
// through. The first hard error blocks a job; batch order decides which
// copy of a duplicate survives.
func (v *Validator) Validate(jobs []*domain.Job) *Result {
	result := &Result{Stats: Stats{Total: len(jobs)}}
	seen := make(map[string]bool, len(jobs))

	for _, job := range jobs {
		if reason := v.hardError(job, seen); reason != "" {
			result.Invalid = append(result.Invalid, InvalidJob{Job: job, Reason: reason})
			if v.metrics != nil {
				v.metrics.ValidationFailuresTotal.WithLabelValues(metricKinds[reason]).Inc()
			}
			v.log.Debug("Job blocked by validation",
				"source_id", job.SourceID,
				"apply_url", job.ApplyURL,
				"reason", reason,
			)
			continue
		}
		result.Warnings = append(result.Warnings, warningsFor(job)...)
		result.Valid = append(result.Valid, job)
	}

	result.Stats.Valid = len(result.Valid)
	result.Stats.Invalid = len(result.Invalid)
	result.Stats.Warnings = len(result.Warnings)
	return result
}

func (v *Validator) hardError(job *domain.Job, seen map[string]bool) string {
	title := strings.TrimSpace(job.Title)
	if title == "" {
		return ReasonMissingTitle
	}
	if strings.TrimSpace(job.ApplyURL) == "" {
		return ReasonMissingApplyURL
	}
	if utf8.RuneCountInString(title) < minTitleRunes {
		return ReasonTitleTooShort
	}
	if !fetchableURL(job.ApplyURL) {
		return ReasonInvalidURLScheme
	}

	if job.CanonicalHash == "" {
		job.CanonicalHash = domain.CanonicalHash(job.Title, job.ApplyURL)
	}
	if seen[job.CanonicalHash] {
		job.QualityIssues = append(job.QualityIssues, quality.IssueDuplicateInBatch)
		return ReasonDuplicateInBatch
	}
	seen[job.CanonicalHash] = true

	return ""
}

// warningsFor collects the log-only findings for a storable job.
func warningsFor(job *domain.Job) []string {
	var warnings []string

	if utf8.RuneCountInString(job.Title) > maxTitleRunes {
		warnings = append(warnings, fmt.Sprintf("overlong title (%s)", job.ApplyURL))
	}
	if job.LocationRaw != nil && utf8.RuneCountInString(*job.LocationRaw) > maxLocationRunes {
		warnings = append(warnings, fmt.Sprintf("overlong location (%s)", job.ApplyURL))
	}
	if job.Deadline != nil && *job.Deadline != "" {
		if _, err := normalize.ParseDate(*job.Deadline); err != nil {
			warnings = append(warnings, fmt.Sprintf("unparseable deadline %q (%s)", *job.Deadline, job.ApplyURL))
		}
	}
	if suspiciousTitles[strings.ToLower(strings.TrimSpace(job.Title))] {
		warnings = append(warnings, fmt.Sprintf("suspicious title %q (%s)", job.Title, job.ApplyURL))
	}

	return warnings
}

// fetchableURL accepts absolute http/https URLs outside the denylist.
func fetchableURL(raw string) bool {
	low := strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(low, "#") {
		return false
	}
	for _, prefix := range urlDenylist {
		if strings.HasPrefix(low, prefix) {
			return false
		}
	}

	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
