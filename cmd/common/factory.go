package common

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/jobcrawl/internal/ai"
	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/enrich"
	"github.com/jonesrussell/jobcrawl/internal/extract"
	"github.com/jonesrussell/jobcrawl/internal/fetch"
	"github.com/jonesrussell/jobcrawl/internal/metrics"
	"github.com/jonesrussell/jobcrawl/internal/normalize"
	"github.com/jonesrussell/jobcrawl/internal/pipeline"
	"github.com/jonesrussell/jobcrawl/internal/quality"
	"github.com/jonesrussell/jobcrawl/internal/rawstore"
	"github.com/jonesrussell/jobcrawl/internal/search"
	"github.com/jonesrussell/jobcrawl/internal/secrets"
	"github.com/jonesrussell/jobcrawl/internal/sources"
	"github.com/jonesrussell/jobcrawl/internal/validate"
)

const (
	robotsClientTimeout = 10 * time.Second
	ensureIndexTimeout  = 30 * time.Second
)

// Repositories bundles the database repositories.
type Repositories struct {
	Sources  *database.SourceRepository
	Jobs     *database.JobRepository
	RawPages *database.RawPageRepository
	Logs     *database.ExtractionLogRepository
	Failures *database.FailedInsertRepository
}

// OpenDatabase connects to PostgreSQL with the pool settings applied.
func OpenDatabase(deps *CommandDeps) (*sqlx.DB, error) {
	db, err := database.NewPostgresConnection(&deps.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// NewRepositories builds the repository set over one connection pool.
func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		Sources:  database.NewSourceRepository(db),
		Jobs:     database.NewJobRepository(db),
		RawPages: database.NewRawPageRepository(db),
		Logs:     database.NewExtractionLogRepository(db),
		Failures: database.NewFailedInsertRepository(db),
	}
}

// Pipeline bundles a fully wired run pipeline with the capabilities it
// carries. Browser and AI are nil when disabled in config.
type Pipeline struct {
	Runner     *pipeline.Runner
	Sink       *search.Sink
	Store      rawstore.Store
	Browser    *fetch.BrowserFetcher
	AI         *ai.Client
	Extractor  extract.Extractor
	Normalizer *normalize.Normalizer
	Scorer     *quality.Scorer
	Secrets    secrets.Resolver
}

// BuildPipeline wires every pipeline stage from config. The search
// index is ensured best-effort: a sink with a down backend still queues
// and retries, so an unreachable Elasticsearch does not block startup.
// A nil metrics handle leaves the stages uninstrumented, which the
// one-shot commands use.
func BuildPipeline(deps *CommandDeps, repos *Repositories, m *metrics.Metrics) (*Pipeline, error) {
	cfg := deps.Config
	log := deps.Logger
	resolver := secrets.NewEnvResolver()

	httpFetcher := fetch.NewHTTPFetcher(&cfg.Fetch, log)

	var browser *fetch.BrowserFetcher
	if cfg.Browser.Enabled {
		browser = fetch.NewBrowserFetcher(&cfg.Browser, cfg.Fetch.UserAgent, log)
	}

	var robots *fetch.RobotsGate
	if cfg.Fetch.RespectRobots {
		robots = fetch.NewRobotsGate(&http.Client{Timeout: robotsClientTimeout}, cfg.Fetch.UserAgent)
	}

	store, err := rawstore.New(&cfg.RawStore, log)
	if err != nil {
		return nil, fmt.Errorf("raw-page store: %w", err)
	}

	var aiClient *ai.Client
	if cfg.AI.Enabled {
		aiClient, err = ai.New(&cfg.AI, resolver, log)
		if err != nil {
			return nil, fmt.Errorf("ai client: %w", err)
		}
	}

	registry := extract.NewRegistry()
	registry.Register(extract.NewGreenhousePlugin())

	// The detail pass re-runs extraction on apply pages; it gets a
	// cascade without the AI stage so detail pages never spend budget.
	var completer extract.Completer
	if aiClient != nil {
		completer = aiClient
	}
	extractor := extract.New(registry, completer, nil, cfg.App.PipelineVersion, log)
	detailExtractor := extract.New(registry, nil, nil, cfg.App.PipelineVersion, log)

	var detailRobots enrich.RobotsPolicy
	if robots != nil {
		detailRobots = robots
	}
	detail := enrich.NewDetailEnricher(detailExtractor, detailRobots, enrich.DetailConfig{
		UserAgent:  cfg.Fetch.UserAgent,
		MaxFetches: cfg.Extraction.DetailFetchCap,
	}, log)

	var normCompleter normalize.Completer
	if aiClient != nil {
		normCompleter = aiClient
	}
	normalizer := normalize.New(normCompleter, log)

	var geo enrich.Geocoder
	if cfg.Geocode.Enabled {
		geo = enrich.NewNominatimClient(&cfg.Geocode, cfg.Fetch.UserAgent, log)
	}
	enricher, err := enrich.New(geo, &cfg.Geocode, log)
	if err != nil {
		return nil, fmt.Errorf("enricher: %w", err)
	}

	scorer := quality.NewScorer()
	validator := validate.New(log)

	esClient, err := search.NewClient(&cfg.Elasticsearch, resolver, log)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	sink := search.NewSink(esClient, &cfg.Elasticsearch, log)

	ensureCtx, cancel := context.WithTimeout(context.Background(), ensureIndexTimeout)
	defer cancel()
	if ensureErr := sink.EnsureIndex(ensureCtx); ensureErr != nil {
		log.Warn("Failed to ensure search index; sink will retry deliveries", "error", ensureErr.Error())
	}

	if m != nil {
		httpFetcher.SetMetrics(m)
		if browser != nil {
			browser.SetMetrics(m)
		}
		if aiClient != nil {
			aiClient.SetMetrics(m)
		}
		enricher.SetMetrics(m)
		validator.SetMetrics(m)
		sink.SetMetrics(m)
	}

	params := pipeline.Params{
		HTTP:      httpFetcher,
		Store:     store,
		Extractor: extractor,
		Detail:    detail,

		Normalizer: normalizer,
		Enricher:   enricher,
		Scorer:     scorer,
		Validator:  validator,
		Sink:       sink,

		Jobs:     repos.Jobs,
		RawPages: repos.RawPages,
		Logs:     repos.Logs,
		Failures: repos.Failures,

		Secrets: resolver,
		Log:     log,
	}
	if browser != nil {
		params.Browser = browser
	}
	if robots != nil {
		params.Robots = robots
	}

	return &Pipeline{
		Runner:     pipeline.New(params),
		Sink:       sink,
		Store:      store,
		Browser:    browser,
		AI:         aiClient,
		Extractor:  extractor,
		Normalizer: normalizer,
		Scorer:     scorer,
		Secrets:    resolver,
	}, nil
}

// Close flushes the sink and tears down the browser pool.
func (p *Pipeline) Close() {
	if p.Sink != nil {
		p.Sink.Close()
	}
	if p.Browser != nil {
		p.Browser.Shutdown()
	}
}

// BuildProber assembles the source prober from pipeline capabilities.
// Probes get their own no-retry fetcher so a failing source reports its
// first error instead of sitting out the backoff schedule.
func BuildProber(deps *CommandDeps, pl *Pipeline) *sources.Prober {
	probeCfg := deps.Config.Fetch
	probeCfg.MaxRetries = -1

	params := sources.ProberParams{
		HTTP:       fetch.NewHTTPFetcher(&probeCfg, deps.Logger),
		Extractor:  pl.Extractor,
		Normalizer: pl.Normalizer,
		Scorer:     pl.Scorer,
		Secrets:    pl.Secrets,
		Log:        deps.Logger,
	}
	if pl.Browser != nil {
		params.Browser = pl.Browser
	}
	return sources.NewProber(params)
}
