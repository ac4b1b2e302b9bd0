package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// jobPostingType is the schema.org type the stage recognizes.
const jobPostingType = "JobPosting"

// extractJSONLD parses every ld+json block in the document and returns
// one candidate per JobPosting found. Malformed blocks are reported and
// skipped; the remaining blocks still contribute.
func extractJSONLD(doc *goquery.Document, pageURL, version string, out *Output) []*domain.ExtractionResult {
	var candidates []*domain.ExtractionResult

	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, sel *goquery.Selection) {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return
		}

		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			out.addStageError("jsonld", domain.NewPipelineError(
				domain.ErrParseMalformedLDJSON,
				false,
				fmt.Errorf("block %d: %w", i, err),
			))
			return
		}

		for _, posting := range collectJobPostings(decoded) {
			candidates = append(candidates, postingToCandidate(posting, pageURL, version))
		}
	})

	return candidates
}

// collectJobPostings walks a decoded ld+json value and gathers every
// JobPosting object, looking through arrays, @graph containers, and
// itemListElement lists (ListItem wrappers included).
func collectJobPostings(node any) []map[string]any {
	var postings []map[string]any

	switch v := node.(type) {
	case []any:
		for _, item := range v {
			postings = append(postings, collectJobPostings(item)...)
		}
	case map[string]any:
		if hasType(v, jobPostingType) {
			postings = append(postings, v)
		}
		if graph, ok := v["@graph"]; ok {
			postings = append(postings, collectJobPostings(graph)...)
		}
		if list, ok := v["itemListElement"]; ok {
			postings = append(postings, collectJobPostings(list)...)
		}
		if item, ok := v["item"]; ok {
			postings = append(postings, collectJobPostings(item)...)
		}
	}

	return postings
}

// hasType checks @type, which may be a string or an array of strings.
func hasType(obj map[string]any, want string) bool {
	switch t := obj["@type"].(type) {
	case string:
		return t == want
	case []any:
		for _, entry := range t {
			if s, ok := entry.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

// postingToCandidate maps one JobPosting object onto a candidate.
func postingToCandidate(posting map[string]any, pageURL, version string) *domain.ExtractionResult {
	result := domain.NewExtractionResult(pageURL, version)
	result.IsJob = true

	set := func(name domain.FieldName, value string) {
		result.SetField(name, strings.TrimSpace(value), domain.FieldSourceJSONLD, "")
	}

	set(domain.FieldTitle, stringValue(posting["title"]))
	set(domain.FieldEmployer, nameOrString(posting["hiringOrganization"]))
	set(domain.FieldLocation, jobLocationString(posting["jobLocation"]))
	set(domain.FieldDeadline, isoDate(stringValue(posting["validThrough"])))
	set(domain.FieldPostedOn, isoDate(stringValue(posting["datePosted"])))
	set(domain.FieldDescription, stringValue(posting["description"]))
	set(domain.FieldSalary, salaryString(posting["baseSalary"]))
	set(domain.FieldEmploymentType, employmentTypeString(posting["employmentType"]))
	set(domain.FieldApplicationURL, stringValue(posting["url"]))

	return result
}

// stringValue renders scalars; non-strings come back empty except
// numbers, which are formatted plainly.
func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return trimFloat(s)
	default:
		return ""
	}
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// nameOrString handles {name: ...} objects and bare strings (hiringOrganization, addressCountry).
func nameOrString(v any) string {
	switch org := v.(type) {
	case string:
		return org
	case map[string]any:
		return stringValue(org["name"])
	default:
		return ""
	}
}

// jobLocationString renders jobLocation as "City, Country". Accepts a
// single place, an array of places, or a bare string.
func jobLocationString(v any) string {
	switch loc := v.(type) {
	case string:
		return loc
	case []any:
		parts := make([]string, 0, len(loc))
		for _, entry := range loc {
			if s := jobLocationString(entry); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		if addr, ok := loc["address"].(map[string]any); ok {
			return joinNonEmpty(", ",
				stringValue(addr["addressLocality"]),
				stringValue(addr["addressRegion"]),
				nameOrString(addr["addressCountry"]), // string or {name: ...}
			)
		}
		return stringValue(loc["name"])
	default:
		return ""
	}
}

// salaryString renders baseSalary compactly: value or min-max range plus
// currency and unit when present.
func salaryString(v any) string {
	salary, ok := v.(map[string]any)
	if !ok {
		return stringValue(v)
	}

	currency := stringValue(salary["currency"])

	switch value := salary["value"].(type) {
	case map[string]any:
		amount := stringValue(value["value"])
		if amount == "" {
			minV := stringValue(value["minValue"])
			maxV := stringValue(value["maxValue"])
			amount = joinNonEmpty("-", minV, maxV)
		}
		unit := stringValue(value["unitText"])
		rendered := joinNonEmpty(" ", currency, amount)
		if unit != "" && rendered != "" {
			rendered += " per " + strings.ToLower(unit)
		}
		return rendered
	default:
		return joinNonEmpty(" ", currency, stringValue(value))
	}
}

// employmentTypeString joins schema.org employmentType values, which may
// be a string or an array.
func employmentTypeString(v any) string {
	switch et := v.(type) {
	case string:
		return et
	case []any:
		parts := make([]string, 0, len(et))
		for _, entry := range et {
			if s, ok := entry.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// isoDate reduces a date or datetime string to YYYY-MM-DD when it parses
// as one of the common ISO shapes; otherwise the raw string is kept for
// the normalizer.
func isoDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return raw
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, sep)
}
