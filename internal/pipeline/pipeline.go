// Package pipeline runs one source end to end: fetch, archive, extract,
// detail-enrich, normalize, geocode, score, validate, upsert, index. The
// Runner owns run-level semantics (the status verdict, the one-per-run
// extraction log, the failure ledger) while each stage package owns its
// own mechanics. Stage trouble degrades the run; only a fetch that
// produces no body, cancellation, or an unavailable database abort it.
package pipeline

import (
	"context"
	"time"

	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/enrich"
	"github.com/jonesrussell/jobcrawl/internal/extract"
	"github.com/jonesrussell/jobcrawl/internal/fetch"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/normalize"
	"github.com/jonesrussell/jobcrawl/internal/quality"
	"github.com/jonesrussell/jobcrawl/internal/rawstore"
	"github.com/jonesrussell/jobcrawl/internal/search"
	"github.com/jonesrussell/jobcrawl/internal/secrets"
	"github.com/jonesrussell/jobcrawl/internal/validate"
)

// Normalizer converts one extraction candidate into a job draft.
type Normalizer interface {
	Normalize(ctx context.Context, src *domain.Source, res *domain.ExtractionResult) (*domain.Job, []error)
}

// Enricher fills the geocoding columns of a job in place.
type Enricher interface {
	Enrich(ctx context.Context, job *domain.Job) error
}

// Scorer stamps the quality columns onto a job.
type Scorer interface {
	Score(job *domain.Job)
}

// Validator gates normalized jobs before the upsert engine.
type Validator interface {
	Validate(jobs []*domain.Job) *validate.Result
}

// DetailFetcher is the one-hop pass over apply pages for sources that
// opt in.
type DetailFetcher interface {
	Enrich(ctx context.Context, src *domain.Source, cands []*domain.ExtractionResult) (int, []error)
}

// Indexer receives committed jobs for the search index. Enqueues never
// block.
type Indexer interface {
	Upsert(job *domain.Job)
}

// RobotsPolicy gates listing fetches.
type RobotsPolicy interface {
	Check(ctx context.Context, rawURL string) error
}

// JobStore is the slice of the jobs repository the pipeline writes to.
type JobStore interface {
	UpsertBatch(ctx context.Context, jobs []*domain.Job) (*database.UpsertStats, error)
	List(ctx context.Context, filters database.JobFilters) ([]*domain.Job, int, error)
}

// RawPageWriter records fetch sidecars.
type RawPageWriter interface {
	Create(ctx context.Context, page *domain.RawPage) error
}

// RunLogWriter appends run summaries.
type RunLogWriter interface {
	Create(ctx context.Context, log *domain.ExtractionLog) error
}

// FailureLedger appends per-job failure rows.
type FailureLedger interface {
	CreateBatch(ctx context.Context, failures []*domain.FailedInsert) error
}

// Interface conformance checks.
var (
	_ Normalizer    = (*normalize.Normalizer)(nil)
	_ Enricher      = (*enrich.Enricher)(nil)
	_ Scorer        = (*quality.Scorer)(nil)
	_ Validator     = (*validate.Validator)(nil)
	_ DetailFetcher = (*enrich.DetailEnricher)(nil)
	_ Indexer       = (*search.Sink)(nil)
	_ RobotsPolicy  = (*fetch.RobotsGate)(nil)

	_ JobStore      = (*database.JobRepository)(nil)
	_ RawPageWriter = (*database.RawPageRepository)(nil)
	_ RunLogWriter  = (*database.ExtractionLogRepository)(nil)
	_ FailureLedger = (*database.FailedInsertRepository)(nil)
)

// Params collects the Runner's collaborators. HTTP, Store, Extractor,
// Normalizer, Scorer, Validator, and the four stores are required.
// Browser, Robots, Detail, Enricher, and Sink are optional and disable
// their stage when nil; a nil Secrets resolver falls back to the
// process environment.
type Params struct {
	HTTP      fetch.Fetcher
	Browser   fetch.Fetcher
	Robots    RobotsPolicy
	Store     rawstore.Store
	Extractor extract.Extractor
	Detail    DetailFetcher

	Normalizer Normalizer
	Enricher   Enricher
	Scorer     Scorer
	Validator  Validator
	Sink       Indexer

	Jobs     JobStore
	RawPages RawPageWriter
	Logs     RunLogWriter
	Failures FailureLedger

	Secrets secrets.Resolver
	Log     logger.Interface
}

// Runner executes source runs. One Runner serves all scheduler workers
// concurrently; per-run state lives on the stack of each Run call.
type Runner struct {
	http      fetch.Fetcher
	browser   fetch.Fetcher
	robots    RobotsPolicy
	store     rawstore.Store
	extractor extract.Extractor
	detail    DetailFetcher

	normalizer Normalizer
	enricher   Enricher
	scorer     Scorer
	validator  Validator
	sink       Indexer

	jobs     JobStore
	rawPages RawPageWriter
	logs     RunLogWriter
	failures FailureLedger

	secrets secrets.Resolver
	log     logger.Interface
	now     func() time.Time
}

// New builds a Runner from its collaborators.
func New(p Params) *Runner {
	resolver := p.Secrets
	if resolver == nil {
		resolver = secrets.NewEnvResolver()
	}

	return &Runner{
		http:       p.HTTP,
		browser:    p.Browser,
		robots:     p.Robots,
		store:      p.Store,
		extractor:  p.Extractor,
		detail:     p.Detail,
		normalizer: p.Normalizer,
		enricher:   p.Enricher,
		scorer:     p.Scorer,
		validator:  p.Validator,
		sink:       p.Sink,
		jobs:       p.Jobs,
		rawPages:   p.RawPages,
		logs:       p.Logs,
		failures:   p.Failures,
		secrets:    resolver,
		log:        p.Log,
		now:        time.Now,
	}
}

// Result is what one run hands back to the scheduler: the user-visible
// report plus the conditional validators observed on the wire.
type Result struct {
	Report *domain.RunReport

	// SetConditional is true when the fetch observed a fresh body and the
	// stored validators should be replaced with ETag/LastModified (either
	// may be nil when the server stopped sending one). Error runs and 304
	// revalidations leave the stored validators untouched.
	SetConditional bool
	ETag           *string
	LastModified   *string
}
