package sources

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/extract"
	"github.com/jonesrussell/jobcrawl/internal/fetch"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/normalize"
	"github.com/jonesrussell/jobcrawl/internal/quality"
	"github.com/jonesrussell/jobcrawl/internal/secrets"
)

// Normalizer converts a candidate into a job draft for the simulation
// sample.
type Normalizer interface {
	Normalize(ctx context.Context, src *domain.Source, res *domain.ExtractionResult) (*domain.Job, []error)
}

// Scorer stamps quality columns onto sample jobs.
type Scorer interface {
	Score(job *domain.Job)
}

var (
	_ Normalizer = (*normalize.Normalizer)(nil)
	_ Scorer     = (*quality.Scorer)(nil)
)

// sampleSize is how many jobs a simulation returns.
const sampleSize = 3

// ProbeReport answers "can we reach this source right now".
type ProbeReport struct {
	OK               bool              `json:"ok"`
	Status           int               `json:"status"`
	Host             string            `json:"host"`
	Size             int               `json:"size"`
	ETag             *string           `json:"etag,omitempty"`
	LastModified     *string           `json:"last_modified,omitempty"`
	MissingSecrets   []string          `json:"missing_secrets,omitempty"`
	HeadersSanitized map[string]string `json:"headers_sanitized,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// SimulationReport answers "what would a run extract", without writing
// anything.
type SimulationReport struct {
	OK            bool          `json:"ok"`
	Count         int           `json:"count"`
	Sample        []*domain.Job `json:"sample,omitempty"`
	Error         string        `json:"error,omitempty"`
	ErrorCategory string        `json:"error_category,omitempty"`
}

// ProberParams collects the prober's collaborators. Browser is
// optional; without it render_js sources probe over plain HTTP.
type ProberParams struct {
	HTTP       fetch.Fetcher
	Browser    fetch.Fetcher
	Extractor  extract.Extractor
	Normalizer Normalizer
	Scorer     Scorer
	Secrets    secrets.Resolver
	Log        logger.Interface
}

// Prober serves the admin test endpoints and the sources test command.
// Probes fetch unconditionally: the point is the live status and
// validators, not a 304 against whatever a previous run stored.
type Prober struct {
	http       fetch.Fetcher
	browser    fetch.Fetcher
	extractor  extract.Extractor
	normalizer Normalizer
	scorer     Scorer
	secrets    secrets.Resolver
	log        logger.Interface
}

// NewProber builds a prober.
func NewProber(p ProberParams) *Prober {
	resolver := p.Secrets
	if resolver == nil {
		resolver = secrets.NewEnvResolver()
	}

	return &Prober{
		http:       p.HTTP,
		browser:    p.Browser,
		extractor:  p.Extractor,
		normalizer: p.Normalizer,
		scorer:     p.Scorer,
		secrets:    resolver,
		log:        p.Log,
	}
}

// Probe performs a fetch-only check of a source. It never touches the
// database or the raw store.
func (p *Prober) Probe(ctx context.Context, src *domain.Source) *ProbeReport {
	target, headers, missing, err := p.resolve(src)
	report := &ProbeReport{Host: hostname(target)}
	if len(missing) > 0 {
		report.MissingSecrets = missing
		return report
	}
	if err != nil {
		report.Error = err.Error()
		return report
	}

	res, err := p.fetch(ctx, src, target, headers)
	if err != nil {
		report.Status = fetch.StatusOf(err)
		report.Error = err.Error()
		return report
	}

	report.OK = true
	report.Status = res.Status
	report.Size = len(res.Body)
	report.ETag = res.ETag
	report.LastModified = res.LastModified
	report.HeadersSanitized = fetch.SanitizeHeaders(res.Headers)
	if res.FinalURL != "" {
		report.Host = hostname(res.FinalURL)
	}
	return report
}

// SimulateExtract fetches and extracts without upserting. The sample
// is normalized and scored so it looks like what a real run would
// commit; everything past the sample is only counted.
func (p *Prober) SimulateExtract(ctx context.Context, src *domain.Source) *SimulationReport {
	target, headers, missing, err := p.resolve(src)
	if len(missing) > 0 {
		return &SimulationReport{
			Error: fmt.Sprintf("missing secrets: %s", strings.Join(missing, ", ")),
		}
	}
	if err != nil {
		return &SimulationReport{Error: err.Error()}
	}

	res, err := p.fetch(ctx, src, target, headers)
	if err != nil {
		return &SimulationReport{
			Error:         err.Error(),
			ErrorCategory: string(domain.KindOf(err)),
		}
	}

	pageURL := res.FinalURL
	if pageURL == "" {
		pageURL = target
	}
	out := p.extractor.Extract(ctx, extract.Input{Source: src, URL: pageURL, Body: res.Body})
	for _, se := range out.StageErrors {
		p.log.Debug("Simulation stage error", "source_id", src.ID, "stage", se.Stage, "error", se.Err.Error())
	}

	report := &SimulationReport{OK: true, Count: len(out.Candidates)}
	for _, cand := range out.Candidates {
		if len(report.Sample) == sampleSize {
			break
		}
		job, warnings := p.normalizer.Normalize(ctx, src, cand)
		for _, w := range warnings {
			p.log.Debug("Simulation normalize warning", "source_id", src.ID, "error", w.Error())
		}
		p.scorer.Score(job)
		report.Sample = append(report.Sample, job)
	}
	return report
}

// resolve mirrors the run path's target resolution, with one
// difference: a bad api hint is reported instead of falling back to
// careers_url, because surfacing the broken config is the probe's job.
func (p *Prober) resolve(src *domain.Source) (target string, headers map[string]string, missing []string, err error) {
	if src.SourceType != domain.SourceTypeAPI {
		return src.CareersURL, nil, nil, nil
	}

	hint, err := src.ParseAPIHint()
	if err != nil {
		return src.CareersURL, nil, nil, fmt.Errorf("parser_hint: %w", err)
	}

	target = strings.TrimRight(hint.BaseURL, "/")
	if hint.Path != "" {
		target += "/" + strings.TrimLeft(hint.Path, "/")
	}

	if len(hint.Auth) == 0 {
		return target, nil, nil, nil
	}

	values := make([]string, 0, len(hint.Auth))
	for _, value := range hint.Auth {
		values = append(values, value)
	}
	if missing = secrets.MissingRefs(p.secrets, values...); len(missing) > 0 {
		sort.Strings(missing)
		return target, nil, missing, nil
	}

	headers = make(map[string]string, len(hint.Auth))
	for name, value := range hint.Auth {
		resolved, expandErr := secrets.Expand(p.secrets, value)
		if expandErr != nil {
			return "", nil, nil, fmt.Errorf("auth header %s: %w", name, expandErr)
		}
		headers[name] = resolved
	}
	return target, headers, nil, nil
}

func (p *Prober) fetch(ctx context.Context, src *domain.Source, target string, headers map[string]string) (*fetch.Result, error) {
	req := fetch.Request{
		URL:     target,
		Kind:    kindFor(src.SourceType),
		Headers: headers,
	}
	if src.RenderJS && p.browser != nil {
		return p.browser.Fetch(ctx, req)
	}
	return p.http.Fetch(ctx, req)
}

func kindFor(t domain.SourceType) fetch.Kind {
	switch t {
	case domain.SourceTypeRSS:
		return fetch.KindFeed
	case domain.SourceTypeAPI:
		return fetch.KindAPI
	default:
		return fetch.KindPage
	}
}

func hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
