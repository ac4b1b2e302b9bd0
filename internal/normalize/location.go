package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// Location is a structured parse of a location string.
type Location struct {
	City       string
	Country    string
	CountryISO string
}

// remoteWords are location strings that name no place at all. Remote
// detection itself happens during enrichment, off the raw string.
var remoteWords = map[string]bool{
	"anywhere":       true,
	"global":         true,
	"home based":     true,
	"home-based":     true,
	"remote":         true,
	"telecommute":    true,
	"virtual":        true,
	"work from home": true,
	"worldwide":      true,
}

// parenPart captures a parenthesized trailer like "Nairobi (Kenya)".
var parenPart = regexp.MustCompile(`\(([^)]*)\)`)

// ParseLocation splits a "City, Country" style string. ok=false flags an
// ambiguous string (slash or semicolon lists, unresolved multi-part
// forms) that needs the AI normalizer.
func ParseLocation(raw string) (Location, bool) {
	s := collapseSpace(raw)
	if s == "" {
		return Location{}, true
	}

	low := strings.ToLower(s)
	if remoteWords[low] {
		return Location{}, true
	}
	if rest, found := strings.CutPrefix(low, "remote"); found {
		rest = strings.Trim(rest, " -,()")
		if rest == "" {
			return Location{}, true
		}
		if iso, ok := ISOForCountry(rest); ok {
			return Location{Country: countryNames[iso], CountryISO: iso}, true
		}
		return Location{}, false
	}

	if iso, ok := ISOForCountry(s); ok {
		return Location{Country: countryNames[iso], CountryISO: iso}, true
	}

	for _, sep := range []string{"/", ";", " or "} {
		if strings.Contains(low, sep) {
			return Location{}, false
		}
	}

	if m := parenPart.FindStringSubmatch(s); m != nil {
		if iso, ok := ISOForCountry(strings.TrimSpace(m[1])); ok {
			city := strings.Trim(collapseSpace(strings.Replace(s, m[0], "", 1)), " ,")
			return Location{City: city, Country: countryNames[iso], CountryISO: iso}, true
		}
	}

	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if len(parts) == 1 {
		return Location{City: parts[0]}, true
	}

	tail := parts[len(parts)-1]
	if iso, ok := ISOForCountry(tail); ok {
		return Location{City: parts[0], Country: countryNames[iso], CountryISO: iso}, true
	}
	if len(parts) == 2 {
		// "Austin, TX": the region does not resolve, the city stands.
		return Location{City: parts[0]}, true
	}
	return Location{}, false
}

// locationPromptHeader is the fixed prefix of every location prompt.
const locationPromptHeader = `Extract the primary place from a job location string.
When several places are listed, use the first. Respond with a single JSON
object with keys "city" and "country_iso" (ISO-3166 alpha-2). Use "" for
anything the text does not state.

Example:
Text: Lagos / Remote
Answer: {"city":"Lagos","country_iso":"NG"}

Example:
Text: Geneva or New York
Answer: {"city":"Geneva","country_iso":"CH"}

`

// resolveLocation escalates an ambiguous location string to the completer.
func (n *Normalizer) resolveLocation(ctx context.Context, raw string) (Location, error) {
	if n.ai == nil {
		return Location{}, fmt.Errorf("ambiguous location %q", raw)
	}

	reply, err := n.ai.Complete(ctx, locationPrompt(raw))
	if err != nil {
		return Location{}, err
	}

	var parsed struct {
		City       string `json:"city"`
		CountryISO string `json:"country_iso"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply)), &parsed); err != nil {
		return Location{}, domain.NewPipelineError(domain.ErrAIInvalidJSONResponse, false, errors.New("completion is not a JSON location object"))
	}

	loc := Location{City: strings.TrimSpace(parsed.City)}
	if iso, ok := ISOForCountry(parsed.CountryISO); ok {
		loc.CountryISO = iso
		loc.Country = countryNames[iso]
	}
	if loc.City == "" && loc.CountryISO == "" {
		return Location{}, fmt.Errorf("no place in %q", raw)
	}
	return loc, nil
}

// locationPrompt builds the deterministic prompt for one string.
func locationPrompt(raw string) string {
	return fmt.Sprintf("%sText: %s\nAnswer:", locationPromptHeader, collapseSpace(raw))
}
