// Package enrich completes normalized jobs: remote detection, geocoding
// through a shared rate-limited provider, and an optional second
// extraction pass over apply pages for sources that opt in.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/jobcrawl/internal/config"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/metrics"
)

const (
	defaultCacheSize = 2048
	defaultRate      = 1.0
	defaultMaxWait   = 5 * time.Second

	// heuristicSource marks jobs located without a provider call.
	heuristicSource = "heuristic"
)

// Lookup outcome labels.
const (
	outcomeOK          = "ok"
	outcomeCacheHit    = "cache_hit"
	outcomeHeuristic   = "heuristic"
	outcomeRateLimited = "rate_limited"
	outcomeNoResult    = "no_result"
	outcomeError       = "error"
)

// remoteKeywords flag a location as remote without geocoding it.
var remoteKeywords = []string{"remote", "work from home", "anywhere", "telecommute"}

// Enricher resolves job locations to coordinates through a shared,
// rate-limited geocoder. One Enricher serves all pipeline workers, so
// the provider sees a single request stream regardless of concurrency.
type Enricher struct {
	geo     Geocoder
	limiter *rate.Limiter
	cache   *lru.Cache[string, *Result]
	maxWait time.Duration
	metrics *metrics.Metrics
	log     logger.Interface
	now     func() time.Time
}

// New builds an enricher. A nil geocoder disables provider lookups;
// remote detection still runs.
func New(geo Geocoder, cfg *config.GeocodeConfig, log logger.Interface) (*Enricher, error) {
	rps := defaultRate
	maxWait := defaultMaxWait
	cacheSize := defaultCacheSize
	if cfg != nil {
		if cfg.RatePerSec > 0 {
			rps = cfg.RatePerSec
		}
		if cfg.MaxWait > 0 {
			maxWait = cfg.MaxWait
		}
		if cfg.CacheSize > 0 {
			cacheSize = cfg.CacheSize
		}
	}

	cache, err := lru.New[string, *Result](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("geocode cache: %w", err)
	}

	return &Enricher{
		geo:     geo,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cache:   cache,
		maxWait: maxWait,
		log:     log,
		now:     time.Now,
	}, nil
}

// SetMetrics attaches lookup instrumentation. Call before the first
// Enrich; leaving it unset disables recording.
func (e *Enricher) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Enrich fills the geocoding columns of one job in place. Errors are
// non-fatal: the job ships without coordinates and the error lands in
// the run warnings.
func (e *Enricher) Enrich(ctx context.Context, job *domain.Job) error {
	if job.LocationRaw == nil || strings.TrimSpace(*job.LocationRaw) == "" {
		return nil
	}

	if isRemoteLocation(*job.LocationRaw) {
		job.IsRemote = true
		source := heuristicSource
		job.GeocodingSource = &source
		e.record(outcomeHeuristic)
		return nil
	}

	if e.geo == nil {
		return nil
	}
	if job.Latitude != nil && job.Longitude != nil {
		return nil
	}

	query := geocodeQuery(job)
	key := cacheKey(query)

	if cached, ok := e.cache.Get(key); ok {
		e.record(outcomeCacheHit)
		if cached == nil {
			return domain.NewPipelineError(domain.ErrGeocodeNoResult, false,
				fmt.Errorf("geocode: no match for %q (cached)", query))
		}
		e.apply(job, cached)
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.maxWait)
	defer cancel()
	if err := e.limiter.Wait(waitCtx); err != nil {
		e.record(outcomeRateLimited)
		return domain.NewPipelineError(domain.ErrGeocodeRateLimited, true,
			fmt.Errorf("geocode: no request slot within %s: %w", e.maxWait, err))
	}

	result, err := e.geo.Geocode(ctx, query)
	if err != nil {
		// A definitive miss is cacheable; provider trouble is not.
		switch domain.KindOf(err) {
		case domain.ErrGeocodeNoResult:
			e.cache.Add(key, nil)
			e.record(outcomeNoResult)
		case domain.ErrGeocodeRateLimited:
			e.record(outcomeRateLimited)
		default:
			e.record(outcomeError)
		}
		return err
	}

	e.cache.Add(key, result)
	e.record(outcomeOK)
	e.apply(job, result)
	return nil
}

// record counts one lookup by outcome.
func (e *Enricher) record(outcome string) {
	if e.metrics != nil {
		e.metrics.GeocodeTotal.WithLabelValues(outcome).Inc()
	}
}

// apply copies a geocode result onto the job. Place names from the
// normalizer outrank the provider's, so those fill only when missing.
func (e *Enricher) apply(job *domain.Job, res *Result) {
	lat, lon := res.Latitude, res.Longitude
	job.Latitude = &lat
	job.Longitude = &lon

	at := e.now().UTC()
	job.GeocodedAt = &at
	provider := res.Provider
	job.GeocodingSource = &provider

	if job.City == nil && res.City != "" {
		city := res.City
		job.City = &city
	}
	if job.Country == nil && res.Country != "" {
		country := res.Country
		job.Country = &country
	}
	if job.CountryISO == nil && res.CountryISO != "" {
		iso := res.CountryISO
		job.CountryISO = &iso
	}
}

// geocodeQuery prefers the normalized city/country pair over the raw
// location string.
func geocodeQuery(job *domain.Job) string {
	if job.City != nil && *job.City != "" {
		if job.Country != nil && *job.Country != "" {
			return *job.City + ", " + *job.Country
		}
		return *job.City
	}
	return strings.TrimSpace(*job.LocationRaw)
}

func cacheKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func isRemoteLocation(raw string) bool {
	low := strings.ToLower(raw)
	for _, keyword := range remoteKeywords {
		if strings.Contains(low, keyword) {
			return true
		}
	}
	return false
}
