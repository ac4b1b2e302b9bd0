package validate_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/metrics"
	"github.com/jonesrussell/jobcrawl/internal/quality"
	"github.com/jonesrussell/jobcrawl/internal/validate"
)

func strPtr(s string) *string { return &s }

func job(title, applyURL string) *domain.Job {
	return &domain.Job{SourceID: "src-1", Title: title, ApplyURL: applyURL}
}

func TestValidatePassesCleanJobs(t *testing.T) {
	t.Parallel()

	validator := validate.New(logger.NewNoOp())
	jobs := []*domain.Job{
		job("Senior Data Analyst", "https://acme.example.org/careers/1"),
		job("Field Coordinator", "https://acme.example.org/careers/2"),
	}

	result := validator.Validate(jobs)

	if len(result.Valid) != 2 || len(result.Invalid) != 0 {
		t.Fatalf("valid = %d, invalid = %d, want 2/0", len(result.Valid), len(result.Invalid))
	}
	if result.Stats.Total != 2 || result.Stats.Valid != 2 || result.Stats.Invalid != 0 {
		t.Errorf("stats = %+v", result.Stats)
	}
	for i, valid := range result.Valid {
		if valid.CanonicalHash == "" {
			t.Errorf("job %d: canonical hash not stamped", i)
		}
	}
}

func TestValidateStampsCanonicalHash(t *testing.T) {
	t.Parallel()

	validator := validate.New(logger.NewNoOp())
	stored := job("Senior Data Analyst", "https://acme.example.org/careers/1?utm_source=feed")

	result := validator.Validate([]*domain.Job{stored})

	if len(result.Valid) != 1 {
		t.Fatalf("valid = %d, want 1", len(result.Valid))
	}
	want := domain.CanonicalHash("Senior Data Analyst", "https://acme.example.org/careers/1?utm_source=feed")
	if stored.CanonicalHash != want {
		t.Errorf("CanonicalHash = %q, want %q", stored.CanonicalHash, want)
	}
}

func TestValidateHardErrors(t *testing.T) {
	t.Parallel()

	validator := validate.New(logger.NewNoOp())

	tests := []struct {
		title    string
		applyURL string
		reason   string
	}{
		{"", "https://acme.example.org/careers/1", validate.ReasonMissingTitle},
		{"   ", "https://acme.example.org/careers/1", validate.ReasonMissingTitle},
		{"Senior Data Analyst", "", validate.ReasonMissingApplyURL},
		{"Senior Data Analyst", "   ", validate.ReasonMissingApplyURL},
		{"Dev", "https://acme.example.org/careers/1", validate.ReasonTitleTooShort},
		{"Senior Data Analyst", "javascript:void(0)", validate.ReasonInvalidURLScheme},
		{"Senior Data Analyst", "mailto:hr@acme.example.org", validate.ReasonInvalidURLScheme},
		{"Senior Data Analyst", "tel:+2341234567", validate.ReasonInvalidURLScheme},
		{"Senior Data Analyst", "data:text/html,hi", validate.ReasonInvalidURLScheme},
		{"Senior Data Analyst", "#apply", validate.ReasonInvalidURLScheme},
		{"Senior Data Analyst", "ftp://acme.example.org/jobs", validate.ReasonInvalidURLScheme},
		{"Senior Data Analyst", "/careers/1", validate.ReasonInvalidURLScheme},
	}

	for _, tt := range tests {
		result := validator.Validate([]*domain.Job{job(tt.title, tt.applyURL)})
		if len(result.Invalid) != 1 {
			t.Errorf("Validate(%q, %q): invalid = %d, want 1", tt.title, tt.applyURL, len(result.Invalid))
			continue
		}
		if got := result.Invalid[0].Reason; got != tt.reason {
			t.Errorf("Validate(%q, %q): reason = %q, want %q", tt.title, tt.applyURL, got, tt.reason)
		}
	}
}

func TestValidateFirstHardErrorWins(t *testing.T) {
	t.Parallel()

	validator := validate.New(logger.NewNoOp())

	// Missing title outranks the bad URL.
	result := validator.Validate([]*domain.Job{job("", "javascript:void(0)")})
	if len(result.Invalid) != 1 || result.Invalid[0].Reason != validate.ReasonMissingTitle {
		t.Fatalf("result.Invalid = %+v, want missing-title first", result.Invalid)
	}
}

func TestValidateDuplicateInBatch(t *testing.T) {
	t.Parallel()

	validator := validate.New(logger.NewNoOp())

	// The second copy differs only by tracking params, so the canonical
	// hashes collide and batch order decides the survivor.
	first := job("Senior Data Analyst", "https://acme.example.org/careers/1")
	second := job("Senior Data Analyst", "https://acme.example.org/careers/1?utm_source=rss")

	result := validator.Validate([]*domain.Job{first, second})

	if len(result.Valid) != 1 || result.Valid[0] != first {
		t.Fatalf("valid = %d, want only the first copy", len(result.Valid))
	}
	if len(result.Invalid) != 1 || result.Invalid[0].Reason != validate.ReasonDuplicateInBatch {
		t.Fatalf("invalid = %+v, want duplicate_in_batch", result.Invalid)
	}

	blocked := result.Invalid[0].Job
	found := false
	for _, issue := range blocked.QualityIssues {
		if issue == quality.IssueDuplicateInBatch {
			found = true
		}
	}
	if !found {
		t.Errorf("QualityIssues = %v, want duplicate_in_batch", blocked.QualityIssues)
	}
	if result.Stats.Total != 2 || result.Stats.Valid != 1 || result.Stats.Invalid != 1 {
		t.Errorf("stats = %+v", result.Stats)
	}
}

func TestValidateWarningsDoNotBlock(t *testing.T) {
	t.Parallel()

	validator := validate.New(logger.NewNoOp())

	overlong := job(strings.Repeat("x", 501), "https://acme.example.org/careers/1")
	badDeadline := job("Senior Data Analyst", "https://acme.example.org/careers/2")
	badDeadline.Deadline = strPtr("rolling basis")
	suspicious := job("Apply Now", "https://acme.example.org/careers/3")
	farLocation := job("Field Coordinator", "https://acme.example.org/careers/4")
	farLocation.LocationRaw = strPtr(strings.Repeat("Lagos, ", 40))

	result := validator.Validate([]*domain.Job{overlong, badDeadline, suspicious, farLocation})

	if len(result.Valid) != 4 {
		t.Fatalf("valid = %d, want 4 (warnings must not block)", len(result.Valid))
	}
	if len(result.Warnings) != 4 {
		t.Fatalf("warnings = %v, want 4 entries", result.Warnings)
	}
	if result.Stats.Warnings != 4 {
		t.Errorf("stats.Warnings = %d, want 4", result.Stats.Warnings)
	}

	for _, fragment := range []string{"overlong title", "unparseable deadline", "suspicious title", "overlong location"} {
		found := false
		for _, warning := range result.Warnings {
			if strings.Contains(warning, fragment) {
				found = true
			}
		}
		if !found {
			t.Errorf("warnings = %v, missing %q", result.Warnings, fragment)
		}
	}
}

func TestValidateRecordsRejectionKinds(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	validator := validate.New(logger.NewNoOp())
	validator.SetMetrics(m)

	validator.Validate([]*domain.Job{
		job("", "https://acme.example.org/careers/1"),
		job("Field Coordinator", "javascript:void(0)"),
		job("Senior Data Analyst", "https://acme.example.org/careers/2"),
		job("Senior Data Analyst", "https://acme.example.org/careers/2?utm_source=feed"),
	})

	for kind, want := range map[string]float64{
		"missing_title":      1,
		"invalid_url_scheme": 1,
		"duplicate_in_batch": 1,
	} {
		if got := testutil.ToFloat64(m.ValidationFailuresTotal.WithLabelValues(kind)); got != want {
			t.Errorf("%s = %v, want %v", kind, got, want)
		}
	}
}
