package scheduler

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/pipeline"
)

const (
	hoursPerDay   = 24
	jitterSpread  = 0.10
	maxNochange   = 2 // quiet runs counted toward the frequency stretch
	frequencyStep = 0.5
)

// reschedule applies the post-run transition and persists it. The
// grouping: a clean report reschedules by status, an operator cancel
// keeps the schedule untouched, everything else is a failure with
// exponential backoff and, past the threshold, the breaker.
func (s *Scheduler) reschedule(src *domain.Source, res *pipeline.Result, runErr error) {
	now := s.now()
	upd := database.ScheduleUpdate{
		LastCrawledAt:       now,
		ConsecutiveFailures: src.ConsecutiveFailures,
		ConsecutiveNochange: src.ConsecutiveNochange,
	}
	if res != nil {
		upd.SetConditional = res.SetConditional
		upd.ETag = res.ETag
		upd.LastModified = res.LastModified
	}

	switch {
	case errors.Is(runErr, context.Canceled):
		// Operator cancel or shutdown. Not the source's fault: no
		// failure accounting, plain revisit.
		upd.LastCrawlStatus = domain.CrawlStatusError
		upd.NextRunAt = now.Add(s.frequency(src))

	case runErr != nil:
		upd.LastCrawlStatus = domain.CrawlStatusError
		if res != nil && res.Report != nil && res.Report.Status == domain.RunStatusDBFail {
			upd.LastCrawlStatus = domain.CrawlStatusDBFail
		}
		upd.ConsecutiveFailures = src.ConsecutiveFailures + 1
		upd.NextRunAt = now.Add(s.backoff(upd.ConsecutiveFailures))
		if upd.ConsecutiveFailures >= s.cfg.AutoPauseThreshold {
			upd.Pause = true
			s.alertAutoPause(src, upd.ConsecutiveFailures, runErr)
		}

	default:
		rep := res.Report
		upd.LastCrawlStatus = string(rep.Status)
		if rep.Status == domain.RunStatusOK {
			upd.ConsecutiveFailures = 0
			if rep.Inserted+rep.Updated == 0 {
				upd.ConsecutiveNochange = src.ConsecutiveNochange + 1
			} else {
				upd.ConsecutiveNochange = 0
			}
			upd.NextRunAt = now.Add(s.scaledFrequency(src, upd.ConsecutiveNochange))
		} else {
			// PARTIAL and EMPTY reschedule plainly. Neither counts toward
			// the failure streak, and the nochange streak holds.
			upd.NextRunAt = now.Add(s.frequency(src))
		}
	}

	// The write must land even when the run context (or the scheduler)
	// was just canceled, or the source would go stale at its old
	// next_run_at forever.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), detachedWriteTimeout)
	defer cancel()

	if err := s.sources.UpdateSchedule(ctx, src.ID, upd); err != nil {
		s.log.Error("Schedule update failed", "source_id", src.ID, "error", err.Error())
		return
	}

	s.log.Info("Source rescheduled",
		"source_id", src.ID,
		"status", upd.LastCrawlStatus,
		"next_run_at", upd.NextRunAt.UTC().Format(time.RFC3339),
		"failures", upd.ConsecutiveFailures,
		"nochange", upd.ConsecutiveNochange,
		"paused", upd.Pause,
	)
}

// frequency is the source's configured revisit interval.
func (s *Scheduler) frequency(src *domain.Source) time.Duration {
	days := src.CrawlFrequencyDays
	if days <= 0 {
		days = 1
	}
	return time.Duration(days) * hoursPerDay * time.Hour
}

// scaledFrequency stretches the revisit interval for sources whose
// catalog keeps coming back unchanged: once the quiet streak reaches
// the threshold, each further quiet run adds half the base interval,
// topping out at twice the base and never past the frequency cap.
func (s *Scheduler) scaledFrequency(src *domain.Source, nochange int) time.Duration {
	base := s.frequency(src)
	if s.cfg.NochangeThreshold <= 0 || nochange < s.cfg.NochangeThreshold {
		return base
	}

	quiet := nochange - s.cfg.NochangeThreshold + 1
	factor := 1 + frequencyStep*math.Min(float64(quiet), maxNochange)
	scaled := time.Duration(float64(base) * factor)

	if s.cfg.MaxFrequencyDays > 0 {
		limit := time.Duration(s.cfg.MaxFrequencyDays) * hoursPerDay * time.Hour
		if scaled > limit {
			scaled = limit
		}
	}
	return scaled
}

// backoff is the failure delay: base doubled per consecutive failure,
// capped, with ±10% jitter so a provider outage does not make every
// affected source due again in the same tick.
func (s *Scheduler) backoff(failures int) time.Duration {
	base := s.cfg.BackoffBase
	if base <= 0 {
		base = 30 * time.Minute
	}
	limit := s.cfg.BackoffMax
	if limit <= 0 {
		limit = hoursPerDay * time.Hour
	}

	delay := base
	for i := 0; i < failures && delay < limit; i++ {
		delay *= 2
	}
	if delay > limit {
		delay = limit
	}

	jitter := 1 + jitterSpread*(2*rand.Float64()-1)
	return time.Duration(float64(delay) * jitter)
}

// alertAutoPause emits the breaker alert. The log line is the alert
// hook: stable message, machine-readable fields.
func (s *Scheduler) alertAutoPause(src *domain.Source, failures int, runErr error) {
	if s.metrics != nil {
		s.metrics.SourcesAutoPaused.Inc()
	}
	s.log.Error("Source auto-paused after repeated failures",
		"source_id", src.ID,
		"name", src.Name,
		"consecutive_failures", failures,
		"kind", string(domain.KindOf(runErr)),
		"error", runErr.Error(),
	)
}
