package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

// titleContaminants match deadline and application fragments that list
// pages paste into titles. Every pattern anchors to the end of the string
// and requires a separator, so mid-title words survive.
var titleContaminants = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*[-–|:(\[]+\s*apply\s+(?:by|before|now|online|here)\b[^)\]]*[)\]]?\s*$`),
	regexp.MustCompile(`(?i)\s*[-–|:(\[]+\s*(?:application\s+)?deadline\b[^)\]]*[)\]]?\s*$`),
	regexp.MustCompile(`(?i)\s*[-–|:(\[]+\s*closing\s+date\b[^)\]]*[)\]]?\s*$`),
	regexp.MustCompile(`(?i)\s*[-–|:(\[]+\s*closes?\s+(?:on\s+)?\d[^)\]]*[)\]]?\s*$`),
	regexp.MustCompile(`\s*[-–|:(\[]*\s*\d{1,2}[-/.]\d{1,2}[-/.]\d{4}\s*[)\]]?\s*$`),
	regexp.MustCompile(`\s*[-–|:(\[]*\s*\d{4}-\d{2}-\d{2}\s*[)\]]?\s*$`),
}

// CleanTitle strips trailing deadline and application fragments from a
// title. Runs to a fixed point: stripping one fragment can expose another.
func CleanTitle(s string) string {
	s = collapseSpace(s)
	for {
		out := s
		for _, re := range titleContaminants {
			out = re.ReplaceAllString(out, "")
		}
		out = strings.TrimRight(out, " -–|:,(")
		if out == s {
			return s
		}
		s = out
	}
}

// TitleHasMetadata reports whether a title carries a deadline or
// application fragment. Quality scoring flags stored titles that do.
func TitleHasMetadata(s string) bool {
	return CleanTitle(s) != collapseSpace(s)
}

// levelFromTitle infers seniority from title words. Token match, not
// substring: "International" must not read as intern.
func levelFromTitle(title string) string {
	tokens := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, tok := range tokens {
		switch tok {
		case "intern", "internship", "trainee":
			return "intern"
		case "junior", "jr":
			return "junior"
		case "senior", "sr":
			return "senior"
		case "lead", "principal":
			return "lead"
		case "head", "chief", "director":
			return "head"
		}
	}
	return ""
}
