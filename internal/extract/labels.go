package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

const (
	// maxHeaderScanRows bounds the search for a header row in tables
	// without a thead.
	maxHeaderScanRows = 10

	// maxLabelTextLen bounds inline "Label: value" scanning so container
	// elements wrapping whole sections are not mistaken for labeled rows.
	maxLabelTextLen = 200
)

// labelFields maps the labels seen on posting pages to fields. Matching is
// case-insensitive on the label prefix.
var labelFields = []struct {
	field  domain.FieldName
	labels []string
}{
	{domain.FieldLocation, []string{"duty station", "location"}},
	{domain.FieldDeadline, []string{"application deadline", "closing date", "deadline", "apply by"}},
	{domain.FieldEmployer, []string{"organization", "organisation", "employer", "company"}},
	{domain.FieldPostedOn, []string{"date posted", "posted", "published"}},
	{domain.FieldEmploymentType, []string{"employment type", "contract type", "job type"}},
	{domain.FieldSalary, []string{"salary", "compensation"}},
}

// columnKeywords maps table header text to fields by fuzzy containment.
// When a header matches words from several fields, the longest word wins,
// so "Job Location" maps to location rather than title.
var columnKeywords = []struct {
	field domain.FieldName
	words []string
}{
	{domain.FieldTitle, []string{"title", "position", "role", "vacancy", "job"}},
	{domain.FieldLocation, []string{"duty station", "location", "station", "city", "country"}},
	{domain.FieldDeadline, []string{"application deadline", "closing date", "deadline", "closing", "apply by"}},
	{domain.FieldEmployer, []string{"organization", "organisation", "employer", "company", "agency"}},
	{domain.FieldPostedOn, []string{"date posted", "posted", "published"}},
}

// fillFromLabels scans a scope for labeled values: definition lists, two-cell
// table rows, and inline "Label: value" text.
func fillFromLabels(root *goquery.Selection, cand *candidate) {
	if root == nil {
		return
	}

	root.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		field, rest, ok := matchLabel(dt.Text())
		if !ok {
			return
		}
		if rest == "" {
			rest = strings.TrimSpace(dt.NextFiltered("dd").First().Text())
		}
		cand.result.SetField(field, rest, domain.FieldSourceHeuristic, truncateSnippet(dt.Text()))
	})

	root.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("th, td")
		if cells.Length() != 2 {
			return
		}
		field, rest, ok := matchLabel(cells.Eq(0).Text())
		if !ok {
			return
		}
		if rest == "" {
			rest = strings.TrimSpace(cells.Eq(1).Text())
		}
		cand.result.SetField(field, rest, domain.FieldSourceHeuristic, truncateSnippet(tr.Text()))
	})

	root.Find("p, li, span, strong, b").Each(func(_ int, el *goquery.Selection) {
		text := strings.TrimSpace(el.Text())
		if text == "" || len(text) > maxLabelTextLen || !strings.Contains(text, ":") {
			return
		}
		field, rest, ok := matchLabel(text)
		if !ok || rest == "" {
			return
		}
		cand.result.SetField(field, rest, domain.FieldSourceHeuristic, truncateSnippet(text))
	})
}

// matchLabel matches text against the known labels and returns the field and
// whatever follows the label with separators stripped.
func matchLabel(text string) (domain.FieldName, string, bool) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	for _, lf := range labelFields {
		for _, label := range lf.labels {
			if !strings.HasPrefix(lower, label) {
				continue
			}
			rest := strings.TrimSpace(trimmed[len(label):])
			rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
			return lf.field, rest, true
		}
	}

	return "", "", false
}

// tableCandidates extracts one candidate per data row from job tables. The
// header row is located in thead first, then among the first rows, and its
// columns are mapped to fields by fuzzy keyword match.
func tableCandidates(doc *goquery.Document, base *url.URL, pageURL, version string) []*candidate {
	var cands []*candidate

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := tableRows(table)
		cols, headerIdx := findHeaderRow(rows)
		if cols == nil {
			return
		}

		for _, row := range rows[headerIdx+1:] {
			if row.Find("td").Length() == 0 {
				// Repeated header row.
				continue
			}
			if cand := rowCandidate(row, cols, base, pageURL, version); cand != nil {
				cands = append(cands, cand)
			}
		}
	})

	return cands
}

// tableRows returns a table's rows in document order.
func tableRows(table *goquery.Selection) []*goquery.Selection {
	var rows []*goquery.Selection
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		rows = append(rows, tr)
	})

	return rows
}

// findHeaderRow locates the header row: thead rows first, then the first
// rows of the table. A header must map at least two columns, one of them the
// title, before the table is treated as a job table.
func findHeaderRow(rows []*goquery.Selection) (map[int]domain.FieldName, int) {
	for i, row := range rows {
		if row.ParentsFiltered("thead").Length() == 0 {
			continue
		}
		if cols := mapColumns(row); headerLike(cols) {
			return cols, i
		}
	}

	for i, row := range rows {
		if i >= maxHeaderScanRows {
			break
		}
		if cols := mapColumns(row); headerLike(cols) {
			return cols, i
		}
	}

	return nil, -1
}

// mapColumns maps a row's cell indexes to fields by fuzzy keyword match.
func mapColumns(row *goquery.Selection) map[int]domain.FieldName {
	cols := make(map[int]domain.FieldName)
	row.Find("th, td").Each(func(i int, cell *goquery.Selection) {
		if field, ok := columnField(cell.Text()); ok {
			cols[i] = field
		}
	})

	return cols
}

// headerLike reports whether mapped columns plausibly form a job-table
// header.
func headerLike(cols map[int]domain.FieldName) bool {
	if len(cols) < 2 {
		return false
	}
	for _, field := range cols {
		if field == domain.FieldTitle {
			return true
		}
	}

	return false
}

// columnField matches header text against the column keywords, preferring
// the longest matching word.
func columnField(header string) (domain.FieldName, bool) {
	lower := strings.ToLower(strings.TrimSpace(header))
	if lower == "" {
		return "", false
	}

	var (
		best    domain.FieldName
		bestLen int
	)
	for _, ck := range columnKeywords {
		for _, word := range ck.words {
			if len(word) > bestLen && strings.Contains(lower, word) {
				best, bestLen = ck.field, len(word)
			}
		}
	}

	return best, bestLen > 0
}

// rowCandidate builds a candidate from one data row, or nil when no mapped
// cell holds a value.
func rowCandidate(row *goquery.Selection, cols map[int]domain.FieldName, base *url.URL, pageURL, version string) *candidate {
	cells := row.Find("th, td")
	cand := &candidate{
		result: domain.NewExtractionResult(pageURL, version),
		scope:  row,
	}

	set := false
	for idx, field := range cols {
		if idx >= cells.Length() {
			continue
		}
		value := strings.TrimSpace(cells.Eq(idx).Text())
		if cand.result.SetField(field, value, domain.FieldSourceHeuristic, truncateSnippet(value)) {
			set = true
		}
	}
	if !set {
		return nil
	}

	if href, exists := row.Find("a").First().Attr("href"); exists {
		cand.result.SetField(domain.FieldApplicationURL, resolveURL(base, href), domain.FieldSourceHeuristic, truncateSnippet(href))
	}

	return cand
}
