package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Classifier scores whether a page is a job listing. An ML scorer can be
// substituted at runtime; the interface is identical.
type Classifier interface {
	Classify(pageURL string, doc *goquery.Document) (isJob bool, score float64)
}

// notJobCutoff is the score at or below which a negative classification
// is confident enough to end extraction with no candidates.
const notJobCutoff = 0.2

var positiveKeywords = []string{"title", "apply", "deadline", "duty station", "vacancy", "job", "career", "position", "recruit"}

var negativeKeywords = []string{"login", "category", "tag", "about", "privacy"}

// RuleClassifier is the default keyword scorer: positive keywords in the
// URL path and page text raise the score, negative keywords in the URL
// path and title lower it.
type RuleClassifier struct{}

// NewRuleClassifier returns the rule-based default.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

// Classify scores the page in [0,1]; isJob is score >= 0.5. An unknown
// page scores 0.5 so the cascade still gets a chance.
func (c *RuleClassifier) Classify(pageURL string, doc *goquery.Document) (bool, float64) {
	const (
		base           = 0.5
		positiveWeight = 0.15
		negativeWeight = 0.25
		maxPositives   = 3
	)

	path := strings.ToLower(pageURL)
	pageText := strings.ToLower(docProbeText(doc))
	title := strings.ToLower(doc.Find("title").First().Text())

	positives := 0
	for _, keyword := range positiveKeywords {
		if strings.Contains(path, keyword) || strings.Contains(pageText, keyword) {
			positives++
		}
	}
	if positives > maxPositives {
		positives = maxPositives
	}

	negatives := 0
	for _, keyword := range negativeKeywords {
		if strings.Contains(path, keyword) || strings.Contains(title, keyword) {
			negatives++
		}
	}

	score := base + positiveWeight*float64(positives) - negativeWeight*float64(negatives)
	score = clamp01(score)

	return score >= 0.5, score
}

// docProbeText samples headings and table headers, which carry the job
// signal, instead of the full body text.
func docProbeText(doc *goquery.Document) string {
	var sb strings.Builder
	doc.Find("h1, h2, h3, th, dt, label, .job-title, [class*=vacanc]").Each(func(_ int, sel *goquery.Selection) {
		if sb.Len() > 4096 {
			return
		}
		sb.WriteString(sel.Text())
		sb.WriteByte(' ')
	})
	return sb.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ Classifier = (*RuleClassifier)(nil)
