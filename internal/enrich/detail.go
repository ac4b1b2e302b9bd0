package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/extract"
	"github.com/jonesrussell/jobcrawl/internal/fetch"
	"github.com/jonesrussell/jobcrawl/internal/logger"
)

const (
	defaultDetailFetches = 50
	defaultDetailBodyMax = 5 << 20
	defaultDetailDelay   = time.Second
)

// RobotsPolicy is the slice of the robots gate the detail hop consults.
type RobotsPolicy interface {
	Check(ctx context.Context, rawURL string) error
	CrawlDelay(host string) time.Duration
}

var _ RobotsPolicy = (*fetch.RobotsGate)(nil)

// DetailConfig bounds the one-hop detail pass.
type DetailConfig struct {
	UserAgent   string
	MaxFetches  int           // detail pages fetched per run
	MaxBodySize int           // bytes read per page
	Delay       time.Duration // floor between hops on one host
}

// DetailEnricher visits the apply page of candidates the listing pass
// left incomplete and re-runs extraction there. One hop only: links
// found on detail pages are never followed.
type DetailEnricher struct {
	extractor extract.Extractor
	robots    RobotsPolicy
	cfg       DetailConfig
	log       logger.Interface
}

// NewDetailEnricher builds the detail pass around an extractor,
// typically one composed without the AI stage.
func NewDetailEnricher(extractor extract.Extractor, robots RobotsPolicy, cfg DetailConfig, log logger.Interface) *DetailEnricher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "JobCrawl/1.0"
	}
	if cfg.MaxFetches <= 0 {
		cfg.MaxFetches = defaultDetailFetches
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultDetailBodyMax
	}
	if cfg.Delay <= 0 {
		cfg.Delay = defaultDetailDelay
	}
	return &DetailEnricher{extractor: extractor, robots: robots, cfg: cfg, log: log}
}

// Enrich fetches apply pages for candidates still missing location or
// deadline and merges the detail fields under first-wins fusion. It
// returns the number of pages fetched and the per-page errors; both
// feed the run's extraction log.
func (d *DetailEnricher) Enrich(ctx context.Context, src *domain.Source, cands []*domain.ExtractionResult) (int, []error) {
	collector := colly.NewCollector(
		colly.UserAgent(d.cfg.UserAgent),
		colly.MaxBodySize(d.cfg.MaxBodySize),
		colly.MaxDepth(1),
		colly.StdlibContext(ctx),
	)

	// Visits are synchronous, so one set of capture slots serves all of
	// them; each loop turn resets the slots before calling Visit.
	var (
		body     []byte
		finalURL string
		visitErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
		finalURL = r.Request.URL.String()
	})
	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		visitErr = classifyDetailError(status, err)
	})

	var (
		fetched int
		errs    []error
		limited = make(map[string]bool)
		pages   = make(map[string]*domain.ExtractionResult)
	)

	for _, cand := range cands {
		if ctx.Err() != nil {
			break
		}
		if !needsDetail(cand) {
			continue
		}

		target := strings.TrimSpace(cand.Get(domain.FieldApplicationURL))
		parsed, err := url.Parse(target)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			continue
		}

		// Candidates sharing an apply URL share the fetched page, hit
		// or miss, without spending budget twice.
		if detail, seen := pages[target]; seen {
			if detail != nil {
				mergeDetail(cand, detail)
			}
			continue
		}

		if fetched >= d.cfg.MaxFetches {
			continue
		}

		if d.robots != nil && !src.IgnoreRobots {
			if err := d.robots.Check(ctx, target); err != nil {
				errs = append(errs, err)
				continue
			}
		}

		d.limitHost(collector, parsed.Host, limited)

		body, finalURL, visitErr = nil, target, nil
		fetched++
		if err := collector.Visit(target); err != nil {
			if visitErr == nil {
				visitErr = classifyDetailError(0, err)
			}
			errs = append(errs, fmt.Errorf("detail %s: %w", target, visitErr))
			pages[target] = nil
			continue
		}
		if len(body) == 0 {
			pages[target] = nil
			continue
		}

		out := d.extractor.Extract(ctx, extract.Input{Source: src, URL: finalURL, Body: body})
		var detail *domain.ExtractionResult
		if len(out.Candidates) > 0 {
			detail = out.Candidates[0]
		}
		pages[target] = detail
		if detail == nil {
			continue
		}

		filled := mergeDetail(cand, detail)
		d.log.Debug("Merged detail page fields",
			"source_id", src.ID,
			"url", target,
			"filled", filled,
		)
	}

	return fetched, errs
}

// limitHost registers a one-request-at-a-time rule for a host on first
// sight, honoring the host's robots crawl-delay when it is longer than
// the configured floor.
func (d *DetailEnricher) limitHost(collector *colly.Collector, host string, limited map[string]bool) {
	if limited[host] {
		return
	}
	limited[host] = true

	delay := d.cfg.Delay
	if d.robots != nil {
		if robotsDelay := d.robots.CrawlDelay(host); robotsDelay > delay {
			delay = robotsDelay
		}
	}

	rule := &colly.LimitRule{
		DomainGlob:  "*" + host + "*",
		Delay:       delay,
		Parallelism: 1,
	}
	if err := collector.Limit(rule); err != nil {
		d.log.Warn("Failed to register detail crawl limit",
			"host", host,
			"error", err,
		)
	}
}

// needsDetail reports whether a candidate is worth a detail fetch.
func needsDetail(cand *domain.ExtractionResult) bool {
	return !cand.Has(domain.FieldLocation) || !cand.Has(domain.FieldDeadline)
}

// mergeDetail copies detail-page fields into the listing candidate.
// SetField keeps listing values, so the detail page only fills gaps.
func mergeDetail(listing, detail *domain.ExtractionResult) int {
	filled := 0
	for name, fv := range detail.Fields {
		if listing.SetField(name, fv.Value, fv.Source, fv.RawSnippet) {
			filled++
		}
	}
	return filled
}

// classifyDetailError maps colly-transported failures onto the fetch
// taxonomy; only the status code survives the trip.
func classifyDetailError(status int, err error) error {
	switch {
	case status >= 500:
		return domain.NewPipelineError(domain.ErrFetchHTTP5xx, true, err)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return domain.NewPipelineError(domain.ErrFetchHTTP4xx, true, err)
	case status >= 400:
		return domain.NewPipelineError(domain.ErrFetchHTTP4xx, false, err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return domain.NewPipelineError(domain.ErrFetchTimeout, true, err)
	default:
		return domain.NewPipelineError(domain.ErrFetchTCP, true, err)
	}
}
