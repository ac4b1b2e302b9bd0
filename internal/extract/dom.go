package extract

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// maxSnippetLen caps raw snippets recorded alongside field values.
const maxSnippetLen = 160

// selectorHint is the optional selector map an html source may carry in its
// parser hint: {"list": <container css>, "fields": {<field>: <css[@attr]>}}.
// Hints that do not parse as this shape are ignored by the DOM stage.
type selectorHint struct {
	List   string            `json:"list"`
	Fields map[string]string `json:"fields"`
}

// parseSelectorHint parses a parser hint as a selector map. The hint column
// is free-form for html sources, so anything that is not JSON of this shape
// simply reports false.
func parseSelectorHint(raw string) (*selectorHint, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "{") {
		return nil, false
	}

	var hint selectorHint
	if err := json.Unmarshal([]byte(raw), &hint); err != nil {
		return nil, false
	}
	if hint.List == "" && len(hint.Fields) == 0 {
		return nil, false
	}

	return &hint, true
}

// cardSelectors lists generic job-card containers tried in order when a
// source has no selector hint. The first selector with matches wins.
var cardSelectors = []string{
	".job-card",
	".job-listing",
	".job-item",
	".vacancy-item",
	"li.job",
	"li.vacancy",
	"article.job",
	"[class*='job-card']",
	"[class*='job-listing']",
	"[class*='vacancy']",
	"ul.jobs > li",
	"div.jobs > div",
}

// cardFieldSelectors maps fields to selectors tried inside one card when the
// source supplies no field map.
var cardFieldSelectors = []struct {
	field domain.FieldName
	expr  string
}{
	{domain.FieldTitle, "h1, h2, h3, h4, .title, .job-title, a"},
	{domain.FieldApplicationURL, "a@href"},
	{domain.FieldLocation, ".location, .job-location, [class*='location']"},
	{domain.FieldDeadline, ".deadline, .closing-date, [class*='deadline'], [class*='closing']"},
	{domain.FieldEmployer, ".company, .employer, .organization, [class*='company']"},
}

// hintFieldNames maps selector-map keys to field names, accepting the common
// aliases admins use in hints.
var hintFieldNames = map[string]domain.FieldName{
	"title":           domain.FieldTitle,
	"employer":        domain.FieldEmployer,
	"company":         domain.FieldEmployer,
	"location":        domain.FieldLocation,
	"deadline":        domain.FieldDeadline,
	"description":     domain.FieldDescription,
	"requirements":    domain.FieldRequirements,
	"application_url": domain.FieldApplicationURL,
	"apply_url":       domain.FieldApplicationURL,
	"url":             domain.FieldApplicationURL,
	"salary":          domain.FieldSalary,
	"employment_type": domain.FieldEmploymentType,
	"posted_on":       domain.FieldPostedOn,
}

// discoverCards finds job-card candidates in the document, preferring the
// source's selector hint over the generic card library. Each card becomes a
// candidate scoped to its own selection.
func discoverCards(doc *goquery.Document, src *domain.Source, base *url.URL, pageURL, version string) []*candidate {
	var hint *selectorHint
	if src != nil && src.ParserHint != nil {
		hint, _ = parseSelectorHint(*src.ParserHint)
	}

	list := findCardList(doc, hint)
	if list == nil || list.Length() == 0 {
		return nil
	}

	cands := make([]*candidate, 0, list.Length())
	list.Each(func(_ int, card *goquery.Selection) {
		cand := &candidate{
			result: domain.NewExtractionResult(pageURL, version),
			scope:  card,
		}
		if hint != nil && len(hint.Fields) > 0 {
			fillFromHint(cand, hint.Fields, base)
		} else {
			fillFromCard(cand, base)
		}
		cands = append(cands, cand)
	})

	return cands
}

// findCardList returns the card selection for the hint's list selector, or
// the first generic selector with matches.
func findCardList(doc *goquery.Document, hint *selectorHint) *goquery.Selection {
	if hint != nil && hint.List != "" {
		return doc.Find(hint.List)
	}

	for _, selector := range cardSelectors {
		if list := doc.Find(selector); list.Length() > 0 {
			return list
		}
	}

	return nil
}

// fillFromHint applies a hinted field map inside one card.
func fillFromHint(cand *candidate, fields map[string]string, base *url.URL) {
	for key, expr := range fields {
		name, ok := hintFieldNames[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			continue
		}
		value, raw := selectValue(cand.scope, expr, base, name == domain.FieldApplicationURL)
		cand.result.SetField(name, value, domain.FieldSourceDOM, raw)
	}
}

// fillFromCard applies the generic in-card selectors.
func fillFromCard(cand *candidate, base *url.URL) {
	for _, fs := range cardFieldSelectors {
		value, raw := selectValue(cand.scope, fs.expr, base, fs.field == domain.FieldApplicationURL)
		cand.result.SetField(fs.field, value, domain.FieldSourceDOM, raw)
	}
}

// fillFromPage fills a page-level candidate from the document's own heading.
// Meta, label, and regex stages cover the remaining fields.
func fillFromPage(doc *goquery.Document, cand *candidate) {
	if doc == nil {
		return
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	cand.result.SetField(domain.FieldTitle, title, domain.FieldSourceDOM, "")
}

// selectValue evaluates a "css" or "css@attr" expression against a scope.
// URL values are resolved against the page URL; denied schemes come back
// empty. Returns the trimmed value and a capped raw snippet.
func selectValue(scope *goquery.Selection, expr string, base *url.URL, isURL bool) (string, string) {
	selector := expr
	attr := ""
	if at := strings.LastIndex(expr, "@"); at > 0 {
		selector, attr = expr[:at], expr[at+1:]
	}
	if isURL && attr == "" {
		attr = "href"
	}

	found := scope.Find(selector).First()
	if found.Length() == 0 {
		return "", ""
	}

	var value string
	if attr != "" {
		value, _ = found.Attr(attr)
	} else {
		value = found.Text()
	}
	value = strings.TrimSpace(value)

	if isURL {
		return resolveURL(base, value), truncateSnippet(value)
	}

	return value, truncateSnippet(found.Text())
}

// resolveURL resolves an href against the page URL. Anchors and non-HTTP
// schemes (mailto, tel, javascript, data) yield "".
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || deniedHref(href) {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}

	return ref.String()
}

// deniedHref reports whether an href can never be an application URL.
func deniedHref(href string) bool {
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "#") {
		return true
	}
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}

	return false
}

// truncateSnippet caps a raw snippet for storage in field provenance.
func truncateSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxSnippetLen {
		return s[:maxSnippetLen]
	}

	return s
}
