// Package quality scores stored jobs for completeness and flags rows
// that need human review.
package quality

import (
	"math"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lib/pq"

	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/normalize"
)

// Factor weights. They sum to 1.0, so a fully populated, fully valid
// job scores exactly 1.0.
const (
	weightTitle       = 0.20
	weightApplyURL    = 0.20
	weightLocation    = 0.15
	weightDeadline    = 0.15
	weightDescription = 0.10
	weightOrgName     = 0.10
	weightGeocoding   = 0.05
	weightCountry     = 0.05
)

// Validity bounds.
const (
	minTitleRunes       = 5
	maxTitleRunes       = 500
	minDescriptionRunes = 50
)

// Issue labels stored on jobs.quality_issues.
const (
	IssueInvalidURL       = "invalid_url"
	IssueDeadlineInPast   = "deadline_in_past"
	IssueTitleMetadata    = "title_contains_metadata"
	IssueDuplicateInBatch = "duplicate_in_batch"
)

// IssueMissing labels an absent field.
func IssueMissing(field string) string { return "missing:" + field }

// IssueShort labels a present but too-short field.
func IssueShort(field string) string { return "short:" + field }

// Scorer stamps the quality columns onto normalized jobs.
type Scorer struct {
	now func() time.Time
}

// NewScorer returns a scorer on wall-clock time.
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Score computes the weighted completeness score and stamps score,
// grade, per-factor contributions, issues, the review flag, and the
// scoring timestamp. Each factor earns its weight only when the field
// is present and valid; a short description earns half.
func (s *Scorer) Score(job *domain.Job) {
	var (
		issues         []string
		invalidURL     bool
		deadlineInPast bool
	)
	factors := domain.JSONBMap{}

	titleCredit := 0.0
	titleLen := utf8.RuneCountInString(job.Title)
	switch {
	case job.Title == "":
		issues = append(issues, IssueMissing("title"))
	case titleLen < minTitleRunes:
		issues = append(issues, IssueShort("title"))
	case titleLen <= maxTitleRunes:
		titleCredit = weightTitle
	}
	factors["title"] = titleCredit
	if job.Title != "" && titleContainsMetadata(job.Title) {
		issues = append(issues, IssueTitleMetadata)
	}

	urlCredit := 0.0
	switch {
	case job.ApplyURL == "":
		issues = append(issues, IssueMissing("apply_url"))
	case validApplyURL(job.ApplyURL):
		urlCredit = weightApplyURL
	default:
		issues = append(issues, IssueInvalidURL)
		invalidURL = true
	}
	factors["apply_url"] = urlCredit

	// A remote posting counts as located.
	locationCredit := 0.0
	if job.IsRemote || strValue(job.LocationRaw) != "" || strValue(job.City) != "" {
		locationCredit = weightLocation
	} else {
		issues = append(issues, IssueMissing("location"))
	}
	factors["location"] = locationCredit

	// A past deadline keeps its credit; the review flag carries it.
	deadlineCredit := 0.0
	if deadline := strValue(job.Deadline); deadline == "" {
		issues = append(issues, IssueMissing("deadline"))
	} else if when, err := normalize.ParseDate(deadline); err == nil {
		deadlineCredit = weightDeadline
		if dateOnly(when).Before(dateOnly(s.now().UTC())) {
			deadlineInPast = true
			issues = append(issues, IssueDeadlineInPast)
		}
	}
	factors["deadline"] = deadlineCredit

	descriptionCredit := 0.0
	switch desc := strValue(job.Description); {
	case desc == "":
		issues = append(issues, IssueMissing("description"))
	case utf8.RuneCountInString(desc) >= minDescriptionRunes:
		descriptionCredit = weightDescription
	default:
		descriptionCredit = weightDescription / 2
		issues = append(issues, IssueShort("description"))
	}
	factors["description"] = descriptionCredit

	orgCredit := 0.0
	if strValue(job.OrgName) != "" {
		orgCredit = weightOrgName
	} else {
		issues = append(issues, IssueMissing("org_name"))
	}
	factors["org_name"] = orgCredit

	geoCredit := 0.0
	if job.GeocodingSource != nil {
		geoCredit = weightGeocoding
	}
	factors["geocoding_present"] = geoCredit

	countryCredit := 0.0
	if strValue(job.CountryISO) != "" || strValue(job.Country) != "" {
		countryCredit = weightCountry
	}
	factors["country_present"] = countryCredit

	score := titleCredit + urlCredit + locationCredit + deadlineCredit +
		descriptionCredit + orgCredit + geoCredit + countryCredit
	score = math.Round(score*100) / 100
	grade := gradeFor(score)

	job.QualityScore = score
	job.QualityGrade = grade
	job.QualityFactors = factors
	job.QualityIssues = pq.StringArray(issues)
	job.NeedsReview = grade == domain.QualityGradeLow ||
		grade == domain.QualityGradeVeryLow ||
		invalidURL || deadlineInPast

	at := s.now().UTC()
	job.QualityScoredAt = &at
}

func gradeFor(score float64) string {
	switch {
	case score >= 0.85:
		return domain.QualityGradeHigh
	case score >= 0.70:
		return domain.QualityGradeMedium
	case score >= 0.50:
		return domain.QualityGradeLow
	default:
		return domain.QualityGradeVeryLow
	}
}

func validApplyURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// titleMetadataHints catch contaminants sitting mid-title, where the
// end-anchored normalizer cleaner cannot strip them.
var titleMetadataHints = []string{
	"apply by", "apply before", "apply now", "apply online",
	"deadline", "closing date",
}

func titleContainsMetadata(title string) bool {
	low := strings.ToLower(title)
	for _, hint := range titleMetadataHints {
		if strings.Contains(low, hint) {
			return true
		}
	}
	return normalize.TitleHasMetadata(title)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
