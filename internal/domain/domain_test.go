package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestParseAPIHint(t *testing.T) {
	t.Parallel()

	hint := `{"v":1,"base_url":"https://api.example.org","path":"/v2/jobs","auth":{"header":"X-Api-Key","value":"SECRET:EXAMPLE_KEY"},"map":{"title":"name","apply_url":"url","location":"duty_station","deadline":"closing_date"}}`

	source := &domain.Source{
		SourceType: domain.SourceTypeAPI,
		ParserHint: strPtr(hint),
	}

	parsed, err := source.ParseAPIHint()
	require.NoError(t, err)
	assert.Equal(t, 1, parsed.Version)
	assert.Equal(t, "https://api.example.org", parsed.BaseURL)
	assert.Equal(t, "name", parsed.Map.Title)
	assert.Equal(t, "SECRET:EXAMPLE_KEY", parsed.Auth["value"])
}

func TestParseAPIHint_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hint *string
	}{
		{"nil hint", nil},
		{"empty hint", strPtr("")},
		{"wrong version", strPtr(`{"v":2,"base_url":"https://x","map":{"title":"t","apply_url":"u"}}`)},
		{"missing map", strPtr(`{"v":1,"base_url":"https://x"}`)},
		{"free-form selector hint", strPtr("div.job-card")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			source := &domain.Source{ParserHint: tt.hint}
			_, err := source.ParseAPIHint()
			assert.Error(t, err)
		})
	}
}

func TestSourceIsDue(t *testing.T) {
	t.Parallel()

	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		source domain.Source
		want   bool
	}{
		{"active never run", domain.Source{Status: domain.SourceStatusActive}, true},
		{"active due", domain.Source{Status: domain.SourceStatusActive, NextRunAt: &past}, true},
		{"active not due", domain.Source{Status: domain.SourceStatusActive, NextRunAt: &future}, false},
		{"paused", domain.Source{Status: domain.SourceStatusPaused, NextRunAt: &past}, false},
		{"deleted", domain.Source{Status: domain.SourceStatusDeleted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.source.IsDue(now))
		})
	}
}

func TestCoverageLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ok", domain.CoverageLevel(0.0))
	assert.Equal(t, "ok", domain.CoverageLevel(0.05))
	assert.Equal(t, "warning", domain.CoverageLevel(0.07))
	assert.Equal(t, "warning", domain.CoverageLevel(0.10))
	assert.Equal(t, "critical", domain.CoverageLevel(0.11))
}

func TestRunReportSetMessage_Truncates(t *testing.T) {
	t.Parallel()

	report := &domain.RunReport{}
	report.SetMessage(strings.Repeat("x", 500))

	assert.Len(t, report.Message, 200)
	assert.True(t, strings.HasSuffix(report.Message, "..."))

	report.SetMessage("short")
	assert.Equal(t, "short", report.Message)
}

func TestValidationPayload(t *testing.T) {
	t.Parallel()

	job := &domain.Job{
		Title:    "",
		ApplyURL: "https://x/y",
		SourceID: "src-1",
	}

	payload := domain.ValidationPayload(job, "Missing required field: title")

	assert.Equal(t, "Missing required field: title", payload[domain.ValidationErrorKey])
	assert.Equal(t, "https://x/y", payload["apply_url"])
}

func TestPipelineError_KindAndRetriable(t *testing.T) {
	t.Parallel()

	err := domain.NewPipelineError(domain.ErrFetchHTTP5xx, true, assert.AnError)

	assert.Equal(t, domain.ErrFetchHTTP5xx, domain.KindOf(err))
	assert.True(t, domain.IsRetriable(err))
	assert.ErrorIs(t, err, assert.AnError)

	perm := domain.NewPipelineError(domain.ErrFetchRobotsDenied, false, nil)
	assert.False(t, domain.IsRetriable(perm))
	assert.Contains(t, perm.Error(), "fetch.robots_denied")
}
