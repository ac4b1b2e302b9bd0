package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
)

// recordArrayKeys are the envelope keys tried when a JSON response wraps its
// records in an object.
var recordArrayKeys = []string{"jobs", "results", "data", "items", "vacancies", "postings", "positions"}

// apiFieldKeys are generic record keys tried when the hint leaves a field
// unmapped.
var apiFieldKeys = []struct {
	field domain.FieldName
	keys  []string
}{
	{domain.FieldTitle, []string{"title", "name", "position"}},
	{domain.FieldApplicationURL, []string{"apply_url", "absolute_url", "url", "link"}},
	{domain.FieldLocation, []string{"location", "duty_station", "city"}},
	{domain.FieldDeadline, []string{"deadline", "closing_date", "valid_through", "end_date"}},
	{domain.FieldEmployer, []string{"company", "organization", "employer"}},
	{domain.FieldDescription, []string{"description", "content", "summary"}},
	{domain.FieldPostedOn, []string{"posted_on", "published_at", "date_posted", "created_at"}},
}

// apiExtractor adapts JSON endpoints to the cascade. The source's v:1 hint
// maps record keys to fields; generic key guesses cover the rest, and the
// label, regex, and AI stages run over each record's description fragment.
type apiExtractor struct {
	filler  *gapFiller
	version string
	log     logger.Interface
}

func (a *apiExtractor) extract(ctx context.Context, in Input) *Output {
	out := &Output{}

	hint, err := in.Source.ParseAPIHint()
	if err != nil {
		// Extraction still runs on generic keys; the invalid hint is
		// surfaced so the source config gets fixed.
		out.addStageError("api", domain.NewPipelineError(domain.ErrParseSchemaMismatch, false, err))
	}

	var root any
	if err := json.Unmarshal(in.Body, &root); err != nil {
		out.addStageError("api", domain.NewPipelineError(domain.ErrParseMalformedJSON, false, err))
		return out
	}

	records, found := locateRecords(root)
	if !found {
		out.addStageError("api", domain.NewPipelineError(domain.ErrParseSchemaMismatch, false, errors.New("no record array in response")))
		return out
	}

	base := pageBaseURL(in.URL)
	cands := make([]*candidate, 0, len(records))
	for _, record := range records {
		cands = append(cands, apiCandidate(record, hint, base, in.URL, a.version))
	}

	a.filler.fill(ctx, nil, base, cands, out)

	for _, cand := range cands {
		cand.result.IsJob = true
		out.Candidates = append(out.Candidates, cand.result)
	}

	return out
}

// locateRecords finds the record array: the root itself, a known envelope
// key, or the lexically first array value so lookup order is deterministic.
func locateRecords(root any) ([]map[string]any, bool) {
	switch v := root.(type) {
	case []any:
		return recordMaps(v), true
	case map[string]any:
		for _, key := range recordArrayKeys {
			if arr, ok := v[key].([]any); ok {
				return recordMaps(arr), true
			}
		}

		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if arr, ok := v[key].([]any); ok {
				return recordMaps(arr), true
			}
		}
	}

	return nil, false
}

// recordMaps keeps the object elements of a record array.
func recordMaps(arr []any) []map[string]any {
	records := make([]map[string]any, 0, len(arr))
	for _, elem := range arr {
		if record, ok := elem.(map[string]any); ok {
			records = append(records, record)
		}
	}

	return records
}

// apiCandidate maps one record to a candidate. Hinted fields are set first;
// generic keys fill the rest under first-wins fusion.
func apiCandidate(record map[string]any, hint *domain.APIHint, base *url.URL, pageURL, version string) *candidate {
	result := domain.NewExtractionResult(pageURL, version)

	if hint != nil {
		result.SetField(domain.FieldTitle, apiValue(dotLookup(record, hint.Map.Title)), domain.FieldSourceDOM, hint.Map.Title)
		result.SetField(domain.FieldApplicationURL, resolveURL(base, apiValue(dotLookup(record, hint.Map.ApplyURL))), domain.FieldSourceDOM, hint.Map.ApplyURL)
		if hint.Map.Location != "" {
			result.SetField(domain.FieldLocation, apiValue(dotLookup(record, hint.Map.Location)), domain.FieldSourceDOM, hint.Map.Location)
		}
		if hint.Map.Deadline != "" {
			result.SetField(domain.FieldDeadline, apiValue(dotLookup(record, hint.Map.Deadline)), domain.FieldSourceDOM, hint.Map.Deadline)
		}
	}

	for _, fk := range apiFieldKeys {
		if result.Has(fk.field) {
			continue
		}
		for _, key := range fk.keys {
			value := apiValue(record[key])
			if fk.field == domain.FieldApplicationURL {
				value = resolveURL(base, value)
			}
			if result.SetField(fk.field, value, domain.FieldSourceDOM, key) {
				break
			}
		}
	}

	if applyURL := result.Get(domain.FieldApplicationURL); applyURL != "" {
		result.URL = applyURL
	}

	return &candidate{result: result, scope: descriptionScope(result.Get(domain.FieldDescription))}
}

// descriptionScope parses a record's description as an HTML fragment for the
// label and regex stages. Records without a description still get a valid
// empty scope.
func descriptionScope(description string) *goquery.Selection {
	frag, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		return nil
	}

	return frag.Selection
}

// dotLookup walks a dot path through nested JSON objects. Numeric segments
// index into arrays, so "offices.0.name" reaches into lists.
func dotLookup(record map[string]any, path string) any {
	if path == "" {
		return nil
	}

	var cur any = record
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[seg]
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			cur = node[idx]
		default:
			return nil
		}
	}

	return cur
}

// apiValue renders a JSON value as a field string: scalars directly, and
// {name: ...} objects by their name.
func apiValue(v any) string {
	if s := stringValue(v); s != "" {
		return s
	}

	return nameOrString(v)
}
