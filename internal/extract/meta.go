package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// fillFromMeta fills missing title and description from OpenGraph and meta
// tags. These describe the page rather than a specific posting, so they only
// apply when the page itself is the candidate; card and row candidates keep
// their scoped values.
func fillFromMeta(doc *goquery.Document, cand *candidate) {
	if doc == nil || cand.scope != nil {
		return
	}

	if title := metaContent(doc, "meta[property='og:title']"); title != "" {
		cand.result.SetField(domain.FieldTitle, title, domain.FieldSourceMeta, "")
	}

	desc := metaContent(doc, "meta[property='og:description']")
	if desc == "" {
		desc = metaContent(doc, "meta[name='description']")
	}
	if desc != "" {
		cand.result.SetField(domain.FieldDescription, desc, domain.FieldSourceMeta, "")
	}
}

// metaContent returns the trimmed content attribute of the first element
// matching the selector.
func metaContent(doc *goquery.Document, selector string) string {
	if content, exists := doc.Find(selector).First().Attr("content"); exists {
		return strings.TrimSpace(content)
	}

	return ""
}
