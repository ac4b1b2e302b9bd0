package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// isoLayout is the stored date format.
const isoLayout = "2006-01-02"

// ordinalSuffix strips "31st" down to "31"; dateparse rejects ordinals.
var ordinalSuffix = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\b`)

// ParseDate parses a free-form date string. Failed parses retry with
// day-first preference: source sites overwhelmingly write 31-12-2025,
// not 12-31-2025.
func ParseDate(s string) (time.Time, error) {
	s = strings.Trim(ordinalSuffix.ReplaceAllString(s, "$1"), " .,;")
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}

	t, err := dateparse.ParseAny(s)
	if err == nil {
		return t, nil
	}
	return dateparse.ParseAny(s, dateparse.PreferMonthFirst(false), dateparse.RetryAmbiguousDateWithSwap(true))
}

// datePromptHeader is the fixed prefix of every date prompt. The prompt
// must stay deterministic for a given phrase so responses cache well.
const datePromptHeader = `Convert a deadline phrase from a job posting to an ISO date.
Respond with a single JSON object with key "date" holding YYYY-MM-DD, or
"" when the text states no date.

Example:
Text: Closing 31 December (today: 2025-10-01)
Answer: {"date":"2025-12-31"}

Example:
Text: Rolling basis (today: 2025-10-01)
Answer: {"date":""}

`

// normalizeDate renders a date string as ISO. Heuristics first; phrases
// they cannot parse (a date without a year, prose) go to the completer.
// An empty result with nil error means the phrase states no date.
func (n *Normalizer) normalizeDate(ctx context.Context, raw string) (string, error) {
	if t, err := ParseDate(raw); err == nil {
		return t.Format(isoLayout), nil
	}
	if n.ai == nil {
		return "", fmt.Errorf("no parseable date in %q", raw)
	}
	return n.aiDate(ctx, raw)
}

// aiDate escalates a date phrase to the completer. The response must be a
// strict JSON object holding an ISO date; anything else is an error.
func (n *Normalizer) aiDate(ctx context.Context, raw string) (string, error) {
	reply, err := n.ai.Complete(ctx, datePrompt(raw, n.now()))
	if err != nil {
		return "", err
	}

	var parsed struct {
		Date string `json:"date"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply)), &parsed); err != nil {
		return "", domain.NewPipelineError(domain.ErrAIInvalidJSONResponse, false, errors.New("completion is not a JSON date object"))
	}
	if parsed.Date == "" {
		return "", nil
	}
	if _, err := time.Parse(isoLayout, parsed.Date); err != nil {
		return "", fmt.Errorf("completion date %q is not ISO", parsed.Date)
	}
	return parsed.Date, nil
}

// datePrompt builds the deterministic prompt for one phrase. The current
// date is included so the model can supply a missing year.
func datePrompt(raw string, today time.Time) string {
	return fmt.Sprintf("%sText: %s (today: %s)\nAnswer:", datePromptHeader, collapseSpace(raw), today.UTC().Format(isoLayout))
}
