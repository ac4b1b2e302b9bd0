// Package scheduler dispatches due sources to the pipeline and owns
// everything around a run: DB leases, the per-domain gate, post-run
// rescheduling with backoff, and the failure circuit breaker.
package scheduler

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/jobcrawl/internal/config"
	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/metrics"
	"github.com/jonesrussell/jobcrawl/internal/pipeline"
)

const (
	// detachedWriteTimeout bounds lease releases and schedule writes that
	// must survive scheduler shutdown.
	detachedWriteTimeout = 10 * time.Second
)

// SourceRunner executes one source end to end.
type SourceRunner interface {
	Run(ctx context.Context, src *domain.Source) (*pipeline.Result, error)
}

// SourceStore is the slice of the source repository the scheduler drives.
type SourceStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Source, error)
	AcquireLease(ctx context.Context, id, workerID string, until time.Time) (bool, error)
	ReleaseLease(ctx context.Context, id, workerID string) error
	UpdateSchedule(ctx context.Context, id string, upd database.ScheduleUpdate) error
}

// BudgetResetter opens a fresh AI spending window each tick.
type BudgetResetter interface {
	ResetBudget()
	Spent() int64
}

var (
	_ SourceRunner = (*pipeline.Runner)(nil)
	_ SourceStore  = (*database.SourceRepository)(nil)
)

// Params collects the scheduler's collaborators. Sources, Runner,
// Config, and Log are required; AI and Metrics are optional.
type Params struct {
	Sources SourceStore
	Runner  SourceRunner
	AI      BudgetResetter
	Metrics *metrics.Metrics
	Config  *config.SchedulerConfig
	Log     logger.Interface

	// AIBudget is the per-tick call ceiling, for the remaining-budget
	// gauge. Zero disables the gauge.
	AIBudget int
}

// Scheduler runs the tick loop and the worker pool. One instance per
// process; the worker id scopes its leases so several instances can
// share a database.
type Scheduler struct {
	sources SourceStore
	runner  SourceRunner
	ai      BudgetResetter
	metrics *metrics.Metrics
	cfg     *config.SchedulerConfig
	log     logger.Interface

	workerID string
	aiBudget int
	domains  *domainGate
	queue    chan *domain.Source

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	active   map[string]context.CancelFunc
	activeMu sync.Mutex

	now func() time.Time
}

// New builds a scheduler. Start launches it.
func New(p Params) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		sources:  p.Sources,
		runner:   p.Runner,
		ai:       p.AI,
		metrics:  p.Metrics,
		cfg:      p.Config,
		log:      p.Log,
		workerID: uuid.New().String(),
		aiBudget: p.AIBudget,
		domains:  newDomainGate(p.Config.PerDomainConcurrency),
		queue:    make(chan *domain.Source, p.Config.MaxDueSources),
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[string]context.CancelFunc),
		now:      time.Now,
	}
}

// Start launches the worker pool and the tick loop.
func (s *Scheduler) Start() {
	for i := 0; i < s.cfg.GlobalConcurrency; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.wg.Add(1)
	go s.loop()

	s.log.Info("Scheduler started",
		"worker_id", s.workerID,
		"workers", s.cfg.GlobalConcurrency,
		"tick_interval", s.cfg.TickInterval.String(),
		"run_timeout", s.cfg.RunTimeout.String(),
	)
}

// Stop cancels in-flight runs and waits for the workers to drain.
// Interrupted runs flush what they committed and reschedule normally.
func (s *Scheduler) Stop() {
	s.log.Info("Scheduler stopping")
	s.cancel()
	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick closes the previous AI spending window, lists due sources, and
// feeds them to the workers oldest-due first.
func (s *Scheduler) tick() {
	if s.ai != nil {
		if s.metrics != nil && s.aiBudget > 0 {
			s.metrics.AIBudgetRemaining.Set(float64(int64(s.aiBudget) - s.ai.Spent()))
		}
		s.ai.ResetBudget()
	}

	due, err := s.sources.ListDue(s.ctx, s.now(), s.cfg.MaxDueSources)
	if err != nil {
		s.log.Error("Due-source query failed", "error", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.SourcesDue.Set(float64(len(due)))
	}
	if len(due) == 0 {
		return
	}

	s.log.Debug("Dispatching due sources", "count", len(due))
	for _, src := range due {
		select {
		case s.queue <- src:
		default:
			// Workers saturated. Stop here so later sources cannot jump
			// the queue; everything not dispatched stays due for the
			// next tick.
			s.log.Debug("Dispatch queue full", "source_id", src.ID)
			return
		}
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case src := <-s.queue:
			s.dispatch(src)
		}
	}
}

// dispatch runs one due source under the domain gate and a DB lease.
// Either gate failing leaves the source due; a later tick retries it.
func (s *Scheduler) dispatch(src *domain.Source) {
	host := hostOf(src.CareersURL)
	release, ok := s.domains.Acquire(s.ctx, host, s.cfg.TickInterval)
	if !ok {
		s.log.Debug("Domain busy", "source_id", src.ID, "host", host)
		return
	}
	defer release()

	until := s.now().Add(time.Duration(s.cfg.LeaseFactor) * s.cfg.RunTimeout)
	acquired, err := s.sources.AcquireLease(s.ctx, src.ID, s.workerID, until)
	if err != nil {
		s.log.Error("Lease acquisition failed", "source_id", src.ID, "error", err.Error())
		return
	}
	if !acquired {
		if s.metrics != nil {
			s.metrics.LeaseConflicts.Inc()
		}
		s.log.Debug("Source leased elsewhere", "source_id", src.ID)
		return
	}
	defer s.releaseLease(src.ID)

	s.runSource(src)
}

// releaseLease clears our lease on a detached context so shutdown does
// not strand sources until the reaper finds them.
func (s *Scheduler) releaseLease(sourceID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), detachedWriteTimeout)
	defer cancel()

	if err := s.sources.ReleaseLease(ctx, sourceID, s.workerID); err != nil {
		s.log.Error("Lease release failed", "source_id", sourceID, "error", err.Error())
	}
}

func (s *Scheduler) runSource(src *domain.Source) {
	runCtx, cancel := context.WithTimeout(s.ctx, s.cfg.RunTimeout)
	defer cancel()

	s.track(src.ID, cancel)
	defer s.untrack(src.ID)

	if s.metrics != nil {
		s.metrics.RunsInFlight.Inc()
		defer s.metrics.RunsInFlight.Dec()
	}

	s.log.Info("Run starting", "source_id", src.ID, "name", src.Name)
	started := s.now()
	res, runErr := s.runner.Run(runCtx, src)

	s.reschedule(src, res, runErr)
	s.observeRun(src, res, runErr, started)
}

// observeRun records the run outcome in Prometheus.
func (s *Scheduler) observeRun(src *domain.Source, res *pipeline.Result, runErr error, started time.Time) {
	if s.metrics == nil {
		return
	}

	status := domain.CrawlStatusError
	if runErr == nil && res != nil && res.Report != nil {
		status = string(res.Report.Status)
	}
	s.metrics.RunsTotal.WithLabelValues(status, src.ID).Inc()
	s.metrics.RunDurationSeconds.WithLabelValues(src.ID).Observe(s.now().Sub(started).Seconds())

	if res == nil || res.Report == nil {
		return
	}
	rep := res.Report
	s.metrics.JobsExtractedTotal.WithLabelValues(src.ID).Add(float64(rep.Found))
	s.metrics.JobsUpsertedTotal.WithLabelValues("inserted").Add(float64(rep.Inserted))
	s.metrics.JobsUpsertedTotal.WithLabelValues("updated").Add(float64(rep.Updated))
	s.metrics.JobsUpsertedTotal.WithLabelValues("skipped").Add(float64(rep.Skipped))
	s.metrics.JobsUpsertedTotal.WithLabelValues("failed").Add(float64(rep.Failed))
}

func (s *Scheduler) track(sourceID string, cancel context.CancelFunc) {
	s.activeMu.Lock()
	s.active[sourceID] = cancel
	s.activeMu.Unlock()
}

func (s *Scheduler) untrack(sourceID string) {
	s.activeMu.Lock()
	delete(s.active, sourceID)
	s.activeMu.Unlock()
}

// Cancel stops the running run for a source. Cancellation is
// cooperative: the pipeline notices at its next stage boundary, flushes
// nothing new, and the source reschedules without failure accounting.
func (s *Scheduler) Cancel(sourceID string) error {
	s.activeMu.Lock()
	cancel, ok := s.active[sourceID]
	s.activeMu.Unlock()

	if !ok {
		return fmt.Errorf("source not running: %s", sourceID)
	}

	s.log.Info("Cancelling run", "source_id", sourceID)
	cancel()
	return nil
}

// Running lists the ids of sources with a run in flight, sorted for
// stable output.
func (s *Scheduler) Running() []string {
	s.activeMu.Lock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	s.activeMu.Unlock()

	sort.Strings(ids)
	return ids
}

// hostOf keys the per-domain gate. Unparseable URLs share one slot
// rather than escaping the cap.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
