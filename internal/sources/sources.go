// Package sources manages the catalog around the database repository:
// YAML bootstrap import/export and the fetch-only probes behind the
// admin test endpoints.
package sources

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// Entry is one source in a catalog file or an admin upsert request.
// Field names match the YAML bootstrap format; scheduling state never
// round-trips through either surface.
type Entry struct {
	Name               string `yaml:"name"                           json:"name"`
	CareersURL         string `yaml:"careers_url"                    json:"careers_url"`
	SourceType         string `yaml:"source_type"                    json:"source_type"`
	CrawlFrequencyDays int    `yaml:"crawl_frequency_days,omitempty" json:"crawl_frequency_days,omitempty"`
	ParserHint         string `yaml:"parser_hint,omitempty"          json:"parser_hint,omitempty"`
	RenderJS           bool   `yaml:"render_js,omitempty"            json:"render_js,omitempty"`
	DetailEnrich       bool   `yaml:"detail_enrich,omitempty"        json:"detail_enrich,omitempty"`
	IgnoreRobots       bool   `yaml:"ignore_robots,omitempty"        json:"ignore_robots,omitempty"`
	Paused             bool   `yaml:"paused,omitempty"               json:"paused,omitempty"`
}

// File is the catalog document.
type File struct {
	Sources []Entry `yaml:"sources"`
}

// Validate checks an entry before it is allowed near the database.
func (e *Entry) Validate() error {
	if e.Name == "" {
		return errors.New("name is required")
	}
	if err := validateURL(e.CareersURL); err != nil {
		return fmt.Errorf("careers_url: %w", err)
	}

	switch domain.SourceType(e.SourceType) {
	case domain.SourceTypeHTML, domain.SourceTypeRSS:
	case domain.SourceTypeAPI:
		// API sources are useless without a well-formed hint; catching it
		// at import beats one failed run per schedule.
		src := e.ToSource()
		if _, err := src.ParseAPIHint(); err != nil {
			return fmt.Errorf("parser_hint: %w", err)
		}
	default:
		return fmt.Errorf("source_type %q is not html, rss, or api", e.SourceType)
	}

	if e.CrawlFrequencyDays < 0 {
		return fmt.Errorf("crawl_frequency_days %d is negative", e.CrawlFrequencyDays)
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// ToSource builds the domain source an entry describes. The ID is left
// empty; the upsert fills it from the row.
func (e *Entry) ToSource() *domain.Source {
	src := &domain.Source{
		Name:               e.Name,
		CareersURL:         e.CareersURL,
		SourceType:         domain.SourceType(e.SourceType),
		Status:             domain.SourceStatusActive,
		CrawlFrequencyDays: e.CrawlFrequencyDays,
		RenderJS:           e.RenderJS,
		DetailEnrich:       e.DetailEnrich,
		IgnoreRobots:       e.IgnoreRobots,
	}
	if e.Paused {
		src.Status = domain.SourceStatusPaused
	}
	if src.CrawlFrequencyDays <= 0 {
		src.CrawlFrequencyDays = 1
	}
	if e.ParserHint != "" {
		hint := e.ParserHint
		src.ParserHint = &hint
	}
	return src
}

// entryFromSource renders a source for export.
func entryFromSource(src *domain.Source) Entry {
	e := Entry{
		Name:               src.Name,
		CareersURL:         src.CareersURL,
		SourceType:         string(src.SourceType),
		CrawlFrequencyDays: src.CrawlFrequencyDays,
		RenderJS:           src.RenderJS,
		DetailEnrich:       src.DetailEnrich,
		IgnoreRobots:       src.IgnoreRobots,
		Paused:             src.Status == domain.SourceStatusPaused,
	}
	if src.ParserHint != nil {
		e.ParserHint = *src.ParserHint
	}
	return e
}
