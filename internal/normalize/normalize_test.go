package normalize_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/normalize"
)

// stubCompleter records prompts and returns a canned completion.
type stubCompleter struct {
	response string
	err      error
	prompts  []string
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func testSource() *domain.Source {
	return &domain.Source{ID: "src-1"}
}

// draft builds an extraction result from plain field values.
func draft(fields map[domain.FieldName]string) *domain.ExtractionResult {
	res := domain.NewExtractionResult("https://acme.example/jobs/7", "v2.1.0")
	for name, value := range fields {
		res.SetField(name, value, domain.FieldSourceJSONLD, "")
	}
	return res
}

func deref(t *testing.T, p *string) string {
	t.Helper()
	if p == nil {
		t.Fatal("expected a value, got nil")
	}
	return *p
}

func TestNormalizeDraft(t *testing.T) {
	t.Parallel()

	res := draft(map[domain.FieldName]string{
		domain.FieldTitle:          "Senior Data Analyst - Apply by 31 Dec 2025",
		domain.FieldEmployer:       "ACME Corp",
		domain.FieldApplicationURL: "https://acme.example/jobs/7/apply",
		domain.FieldLocation:       "Lagos, Nigeria",
		domain.FieldDeadline:       "31-12-2025",
		domain.FieldPostedOn:       "2025-10-01",
		domain.FieldDescription:    "<p>Analyze things.</p><p>Write &amp; present reports.</p>",
		domain.FieldSalary:         "USD 85000 per year",
		domain.FieldEmploymentType: "FULL_TIME",
	})

	norm := normalize.New(nil, logger.NewNoOp())
	job, warnings := norm.Normalize(context.Background(), testSource(), res)

	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if job.SourceID != "src-1" {
		t.Errorf("source id = %q", job.SourceID)
	}
	if job.Title != "Senior Data Analyst" {
		t.Errorf("title = %q", job.Title)
	}
	if job.ApplyURL != "https://acme.example/jobs/7/apply" {
		t.Errorf("apply url = %q", job.ApplyURL)
	}
	if got := deref(t, job.OrgName); got != "ACME Corp" {
		t.Errorf("org name = %q", got)
	}
	if got := deref(t, job.LocationRaw); got != "Lagos, Nigeria" {
		t.Errorf("location raw = %q", got)
	}
	if got := deref(t, job.City); got != "Lagos" {
		t.Errorf("city = %q", got)
	}
	if got := deref(t, job.Country); got != "Nigeria" {
		t.Errorf("country = %q", got)
	}
	if got := deref(t, job.CountryISO); got != "NG" {
		t.Errorf("country iso = %q", got)
	}
	if got := deref(t, job.Deadline); got != "2025-12-31" {
		t.Errorf("deadline = %q", got)
	}
	if got := deref(t, job.PostedOn); got != "2025-10-01" {
		t.Errorf("posted on = %q", got)
	}
	if got := deref(t, job.Description); got != "Analyze things.\nWrite & present reports." {
		t.Errorf("description = %q", got)
	}
	if got := deref(t, job.EmploymentType); got != "full_time" {
		t.Errorf("employment type = %q", got)
	}
	if got := deref(t, job.LevelNorm); got != "senior" {
		t.Errorf("level = %q", got)
	}
}

func TestNormalizeMinimal(t *testing.T) {
	t.Parallel()

	res := draft(map[domain.FieldName]string{
		domain.FieldTitle:          "Field Coordinator",
		domain.FieldApplicationURL: "https://acme.example/jobs/9/apply",
	})

	norm := normalize.New(nil, logger.NewNoOp())
	job, warnings := norm.Normalize(context.Background(), testSource(), res)

	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if job.Title != "Field Coordinator" {
		t.Errorf("title = %q", job.Title)
	}
	if job.OrgName != nil || job.Deadline != nil || job.LocationRaw != nil ||
		job.EmploymentType != nil || job.LevelNorm != nil || job.Description != nil {
		t.Error("expected absent fields to stay nil")
	}
}

func TestNormalizeUnparseableDeadline(t *testing.T) {
	t.Parallel()

	res := draft(map[domain.FieldName]string{
		domain.FieldTitle:    "Archivist",
		domain.FieldDeadline: "open until further notice",
	})

	norm := normalize.New(nil, logger.NewNoOp())
	job, warnings := norm.Normalize(context.Background(), testSource(), res)

	if job.Deadline != nil {
		t.Errorf("deadline = %q, expected unset", *job.Deadline)
	}
	if len(warnings) != 1 || domain.KindOf(warnings[0]) != domain.ErrNormalizeUnparseableDate {
		t.Fatalf("expected one unparseable_date warning, got %v", warnings)
	}
}

func TestNormalizeDeadlineEscalatesToAI(t *testing.T) {
	t.Parallel()

	ai := &stubCompleter{response: `{"date":"2025-12-31"}`}
	res := draft(map[domain.FieldName]string{
		domain.FieldTitle:    "Archivist",
		domain.FieldDeadline: "Open until 31 December",
	})

	norm := normalize.New(ai, logger.NewNoOp())
	job, warnings := norm.Normalize(context.Background(), testSource(), res)

	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if got := deref(t, job.Deadline); got != "2025-12-31" {
		t.Errorf("deadline = %q", got)
	}
	if len(ai.prompts) != 1 {
		t.Fatalf("expected one completion call, got %d", len(ai.prompts))
	}
	if !strings.Contains(ai.prompts[0], "Open until 31 December") || !strings.Contains(ai.prompts[0], "today:") {
		t.Errorf("prompt missing phrase or reference date: %q", ai.prompts[0])
	}
}

func TestNormalizeAIDateStatesNoDate(t *testing.T) {
	t.Parallel()

	ai := &stubCompleter{response: `{"date":""}`}
	res := draft(map[domain.FieldName]string{
		domain.FieldTitle:    "Archivist",
		domain.FieldDeadline: "Rolling recruitment",
	})

	norm := normalize.New(ai, logger.NewNoOp())
	job, warnings := norm.Normalize(context.Background(), testSource(), res)

	if job.Deadline != nil {
		t.Errorf("deadline = %q, expected unset", *job.Deadline)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
}

func TestNormalizeAIDateInvalidReply(t *testing.T) {
	t.Parallel()

	ai := &stubCompleter{response: "no JSON here"}
	res := draft(map[domain.FieldName]string{
		domain.FieldTitle:    "Archivist",
		domain.FieldDeadline: "Open until 31 December",
	})

	norm := normalize.New(ai, logger.NewNoOp())
	job, warnings := norm.Normalize(context.Background(), testSource(), res)

	if job.Deadline != nil {
		t.Errorf("deadline = %q, expected unset", *job.Deadline)
	}
	if len(warnings) != 1 || domain.KindOf(warnings[0]) != domain.ErrNormalizeUnparseableDate {
		t.Fatalf("expected one unparseable_date warning, got %v", warnings)
	}
}

func TestNormalizeAmbiguousLocationEscalates(t *testing.T) {
	t.Parallel()

	ai := &stubCompleter{response: `{"city":"Lagos","country_iso":"NG"}`}
	res := draft(map[domain.FieldName]string{
		domain.FieldTitle:    "Archivist",
		domain.FieldLocation: "Lagos / Remote",
	})

	norm := normalize.New(ai, logger.NewNoOp())
	job, warnings := norm.Normalize(context.Background(), testSource(), res)

	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if got := deref(t, job.LocationRaw); got != "Lagos / Remote" {
		t.Errorf("location raw = %q", got)
	}
	if got := deref(t, job.City); got != "Lagos" {
		t.Errorf("city = %q", got)
	}
	if got := deref(t, job.Country); got != "Nigeria" {
		t.Errorf("country = %q", got)
	}
	if got := deref(t, job.CountryISO); got != "NG" {
		t.Errorf("country iso = %q", got)
	}
	if len(ai.prompts) != 1 || !strings.Contains(ai.prompts[0], "Lagos / Remote") {
		t.Errorf("expected one location prompt, got %v", ai.prompts)
	}
}

func TestNormalizeAmbiguousLocationWithoutAI(t *testing.T) {
	t.Parallel()

	res := draft(map[domain.FieldName]string{
		domain.FieldTitle:    "Archivist",
		domain.FieldLocation: "Nairobi; Kampala",
	})

	norm := normalize.New(nil, logger.NewNoOp())
	job, warnings := norm.Normalize(context.Background(), testSource(), res)

	if got := deref(t, job.LocationRaw); got != "Nairobi; Kampala" {
		t.Errorf("location raw = %q", got)
	}
	if job.City != nil || job.Country != nil || job.CountryISO != nil {
		t.Error("expected unresolved location fields to stay nil")
	}
	if len(warnings) != 1 || domain.KindOf(warnings[0]) != domain.ErrNormalizeUnresolvedLocation {
		t.Fatalf("expected one unresolved_location warning, got %v", warnings)
	}
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"<p>First.</p><p>Second.</p>", "First.\nSecond."},
		{"<ul><li>Plan</li><li>Deliver</li></ul>", "Plan\nDeliver"},
		{"Line<br>Break", "Line\nBreak"},
		{"Tight &amp; tidy", "Tight & tidy"},
		{"<script>track()</script><p>Body</p>", "Body"},
		{"Plain   text", "Plain text"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalize.StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}
