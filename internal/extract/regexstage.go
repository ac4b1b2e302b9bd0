package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

const (
	// dateContextWindow is how far after a keyword a date may appear and
	// still be attributed to it. Without the keyword guard this stage
	// would grab copyright years and publication dates.
	dateContextWindow = 120

	// maxRegexScanLen bounds the text handed to the date patterns.
	maxRegexScanLen = 1 << 15
)

// Date patterns recognized by the last-resort stage. Values are kept raw;
// the normalizer parses them.
var (
	dateISO     = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	dateNumeric = regexp.MustCompile(`\b\d{1,2}[-/.]\d{1,2}[-/.]\d{4}\b`)
	dateWritten = regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?,?\s+\d{4}\b`)
)

var (
	deadlineKeywords = []string{"deadline", "closing date", "closes", "apply by", "apply before", "applications close"}
	postedKeywords   = []string{"posted", "published", "date posted"}
)

// fillFromRegex fills missing dates from keyword-adjacent date patterns and
// a missing application URL from apply-styled anchors. Anchors with denied
// schemes (mailto, tel, javascript) are filtered out.
func fillFromRegex(root *goquery.Selection, base *url.URL, cand *candidate) {
	if root == nil {
		return
	}

	text := root.Text()
	if len(text) > maxRegexScanLen {
		text = text[:maxRegexScanLen]
	}

	if !cand.result.Has(domain.FieldDeadline) {
		if value, snippet, ok := dateNearKeyword(text, deadlineKeywords); ok {
			cand.result.SetField(domain.FieldDeadline, value, domain.FieldSourceRegex, snippet)
		}
	}
	if !cand.result.Has(domain.FieldPostedOn) {
		if value, snippet, ok := dateNearKeyword(text, postedKeywords); ok {
			cand.result.SetField(domain.FieldPostedOn, value, domain.FieldSourceRegex, snippet)
		}
	}
	if !cand.result.Has(domain.FieldApplicationURL) {
		if href, snippet, ok := applyAnchor(root, base); ok {
			cand.result.SetField(domain.FieldApplicationURL, href, domain.FieldSourceRegex, snippet)
		}
	}
}

// dateNearKeyword returns the first date appearing within the context window
// after any of the keywords.
func dateNearKeyword(text string, keywords []string) (string, string, bool) {
	lower := strings.ToLower(text)

	for _, keyword := range keywords {
		offset := 0
		for {
			idx := strings.Index(lower[offset:], keyword)
			if idx < 0 {
				break
			}
			start := offset + idx
			end := start + len(keyword) + dateContextWindow
			if end > len(text) {
				end = len(text)
			}
			window := text[start:end]
			if date, ok := firstDate(window); ok {
				return date, truncateSnippet(window), true
			}
			offset = start + len(keyword)
		}
	}

	return "", "", false
}

// firstDate returns the earliest date match in s across all patterns.
func firstDate(s string) (string, bool) {
	best := -1
	value := ""
	for _, re := range []*regexp.Regexp{dateISO, dateNumeric, dateWritten} {
		loc := re.FindStringIndex(s)
		if loc == nil {
			continue
		}
		if best < 0 || loc[0] < best {
			best, value = loc[0], s[loc[0]:loc[1]]
		}
	}

	return value, best >= 0
}

// applyAnchor returns the first anchor that looks like an application link.
func applyAnchor(root *goquery.Selection, base *url.URL) (string, string, bool) {
	var (
		href    string
		snippet string
	)
	root.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		raw, exists := a.Attr("href")
		if !exists || deniedHref(raw) {
			return true
		}
		text := strings.ToLower(a.Text())
		if !strings.Contains(text, "apply") && !strings.Contains(strings.ToLower(raw), "apply") {
			return true
		}
		if resolved := resolveURL(base, raw); resolved != "" {
			href, snippet = resolved, truncateSnippet(a.Text())
			return false
		}
		return true
	})

	return href, snippet, href != ""
}
