package normalize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// blockBreaks marks block-level boundaries ahead of text extraction;
// goquery's Text() otherwise glues adjacent blocks together.
var blockBreaks = regexp.MustCompile(`(?i)<br\s*/?>|</(?:p|div|li|tr|h[1-6])>`)

// StripHTML reduces markup to plain text, one line per block. Strings
// without markup pass through with whitespace collapsed.
func StripHTML(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return collapseSpace(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(blockBreaks.ReplaceAllString(s, "\n")))
	if err != nil {
		return collapseSpace(s)
	}
	doc.Find("script, style").Remove()

	lines := strings.Split(doc.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = collapseSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// collapseSpace reduces runs of whitespace to single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// optional returns nil for empty strings so the column stays NULL.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
