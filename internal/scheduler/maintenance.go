package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/rawstore"
)

const (
	// Reap often: a reclaimed source is schedulable again at the next tick.
	leaseReapSchedule = "* * * * *"
	// Sweep nightly, off-peak.
	retentionSchedule = "20 3 * * *"

	maintenanceTimeout = 2 * time.Minute
	sweepTimeout       = 15 * time.Minute
)

// LeaseReaper clears leases whose deadline has passed.
type LeaseReaper interface {
	ReapExpiredLeases(ctx context.Context) (int, error)
}

// PageRetirer removes raw-page sidecar rows past the retention cutoff.
type PageRetirer interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}

var (
	_ LeaseReaper = (*database.SourceRepository)(nil)
	_ PageRetirer = (*database.RawPageRepository)(nil)
)

// Maintenance owns the cron jobs around the scheduler: the stale-lease
// reaper recovers sources abandoned by crashed workers, and the
// retention sweep removes archived pages past their window. It runs in
// the same process as the scheduler but has its own lifecycle so the
// httpd can host it too.
type Maintenance struct {
	cron      *cron.Cron
	sources   LeaseReaper
	pages     PageRetirer
	store     rawstore.Store
	retention time.Duration
	log       logger.Interface
	now       func() time.Time
}

// NewMaintenance builds the cron host. pages and store may be nil when
// retentionDays is zero (retention disabled).
func NewMaintenance(sources LeaseReaper, pages PageRetirer, store rawstore.Store, retentionDays int, log logger.Interface) *Maintenance {
	return &Maintenance{
		cron:      cron.New(),
		sources:   sources,
		pages:     pages,
		store:     store,
		retention: time.Duration(retentionDays) * hoursPerDay * time.Hour,
		log:       log,
		now:       time.Now,
	}
}

// Start registers and launches the cron entries.
func (m *Maintenance) Start() error {
	if _, err := m.cron.AddFunc(leaseReapSchedule, m.reapLeases); err != nil {
		return fmt.Errorf("register lease reaper: %w", err)
	}
	if m.retention > 0 && m.pages != nil && m.store != nil {
		if _, err := m.cron.AddFunc(retentionSchedule, m.sweepRawPages); err != nil {
			return fmt.Errorf("register retention sweep: %w", err)
		}
	}

	m.cron.Start()
	m.log.Info("Maintenance cron started", "retention", m.retention.String())
	return nil
}

// Stop halts the cron and waits for any running entry to finish.
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
	m.log.Info("Maintenance cron stopped")
}

func (m *Maintenance) reapLeases() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	reaped, err := m.sources.ReapExpiredLeases(ctx)
	if err != nil {
		m.log.Error("Lease reap failed", "error", err.Error())
		return
	}
	if reaped > 0 {
		// A reclaimed lease means a worker died or overran its deadline.
		m.log.Warn("Reclaimed expired leases", "count", reaped)
	}
}

// sweepRawPages drops sidecar rows past retention, then the blobs. The
// blob sweep works by date directory, so it also collects orphans whose
// sidecar insert failed at write time.
func (m *Maintenance) sweepRawPages() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	cutoff := m.now().UTC().Add(-m.retention)

	paths, err := m.pages.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		m.log.Error("Raw page row sweep failed", "error", err.Error())
		return
	}

	blobs, err := m.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		m.log.Error("Raw page blob sweep failed", "error", err.Error())
	}

	if len(paths) > 0 || blobs > 0 {
		m.log.Info("Retention sweep finished",
			"rows", len(paths),
			"blobs", blobs,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
}
