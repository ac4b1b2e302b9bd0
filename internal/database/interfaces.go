package database

import (
	"context"
	"time"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// SourceRepositoryInterface defines the contract for source data access.
type SourceRepositoryInterface interface {
	// Basic CRUD operations
	Create(ctx context.Context, source *domain.Source) error
	CreateOrUpdate(ctx context.Context, source *domain.Source) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Source, error)
	GetByName(ctx context.Context, name string) (*domain.Source, error)
	List(ctx context.Context, filters SourceFilters) ([]*domain.Source, int, error)
	Update(ctx context.Context, source *domain.Source) error
	SoftDelete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error

	// Scheduler operations
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Source, error)
	AcquireLease(ctx context.Context, id, workerID string, until time.Time) (bool, error)
	ReleaseLease(ctx context.Context, id, workerID string) error
	ReapExpiredLeases(ctx context.Context) (int, error)
	UpdateSchedule(ctx context.Context, id string, upd ScheduleUpdate) error

	// Control operations
	MarkRunNow(ctx context.Context, id string) (bool, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error

	// Analytics
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// JobRepositoryInterface defines the contract for job data access.
type JobRepositoryInterface interface {
	UpsertBatch(ctx context.Context, jobs []*domain.Job) (*UpsertStats, error)
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	GetByCanonical(ctx context.Context, sourceID, canonicalHash string) (*domain.Job, error)
	List(ctx context.Context, filters JobFilters) ([]*domain.Job, int, error)
	SoftDelete(ctx context.Context, id, deletedBy, reason string) error
	Restore(ctx context.Context, id string) error
	HardDelete(ctx context.Context, id, reason string) error
	Stats(ctx context.Context) (*JobStats, error)
}

// RawPageRepositoryInterface defines the contract for raw page sidecars.
type RawPageRepositoryInterface interface {
	Create(ctx context.Context, page *domain.RawPage) error
	GetByID(ctx context.Context, id string) (*domain.RawPage, error)
	ListBySource(ctx context.Context, sourceID string, limit int) ([]*domain.RawPage, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}

// ExtractionLogRepositoryInterface defines the contract for run summaries.
type ExtractionLogRepositoryInterface interface {
	Create(ctx context.Context, log *domain.ExtractionLog) error
	ListBySource(ctx context.Context, sourceID string, limit int) ([]*domain.ExtractionLog, error)
	Coverage(ctx context.Context, since time.Time) ([]*domain.CoverageRow, error)
}

// FailedInsertRepositoryInterface defines the contract for the failure ledger.
type FailedInsertRepositoryInterface interface {
	Create(ctx context.Context, failure *domain.FailedInsert) error
	CreateBatch(ctx context.Context, failures []*domain.FailedInsert) error
	List(ctx context.Context, filters FailedInsertFilters) ([]*domain.FailedInsert, error)
	Resolve(ctx context.Context, id, notes string) error
	CountByOperation(ctx context.Context, since time.Time) (map[string]int, error)
}

// Interface conformance checks.
var (
	_ SourceRepositoryInterface        = (*SourceRepository)(nil)
	_ JobRepositoryInterface           = (*JobRepository)(nil)
	_ RawPageRepositoryInterface       = (*RawPageRepository)(nil)
	_ ExtractionLogRepositoryInterface = (*ExtractionLogRepository)(nil)
	_ FailedInsertRepositoryInterface  = (*FailedInsertRepository)(nil)
)
