package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// upsertReturnColumns are the columns of the upsert RETURNING clause.
var upsertReturnColumns = []string{"id", "is_insert"}

func newJobRepo(t *testing.T) (*database.JobRepository, sqlmock.Sqlmock, func()) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	db := sqlx.NewDb(mockDB, "postgres")
	repo := database.NewJobRepository(db)

	return repo, mock, func() { mockDB.Close() }
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func testJob(title, applyURL string) *domain.Job {
	return &domain.Job{
		ID:            uuid.New().String(),
		SourceID:      "source-1",
		CanonicalHash: domain.CanonicalHash(title, applyURL),
		Title:         title,
		ApplyURL:      applyURL,
		QualityScore:  0.8,
		QualityGrade:  domain.QualityGradeMedium,
	}
}

func TestJobRepository_UpsertBatch_InsertsNewRows(t *testing.T) {
	repo, mock, cleanup := newJobRepo(t)
	defer cleanup()

	ctx := context.Background()
	jobs := []*domain.Job{
		testJob("Data Analyst", "https://acme.org/jobs/42"),
		testJob("Program Officer", "https://acme.org/jobs/43"),
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO jobs").
		WillReturnRows(sqlmock.NewRows(upsertReturnColumns).AddRow(jobs[0].ID, true))
	mock.ExpectQuery("INSERT INTO jobs").
		WillReturnRows(sqlmock.NewRows(upsertReturnColumns).AddRow(jobs[1].ID, true))
	mock.ExpectCommit()

	stats, err := repo.UpsertBatch(ctx, jobs)
	if err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}

	if stats.Inserted != 2 {
		t.Errorf("expected Inserted=2, got %d", stats.Inserted)
	}
	if stats.Updated != 0 || stats.Skipped != 0 || stats.Failed != 0 {
		t.Errorf("unexpected counts: updated=%d skipped=%d failed=%d",
			stats.Updated, stats.Skipped, stats.Failed)
	}
	if len(stats.InsertedIDs) != 2 {
		t.Errorf("expected 2 inserted IDs, got %d", len(stats.InsertedIDs))
	}

	expectationsMet(t, mock)
}

func TestJobRepository_UpsertBatch_CountsUpdatesAndSkips(t *testing.T) {
	repo, mock, cleanup := newJobRepo(t)
	defer cleanup()

	ctx := context.Background()
	jobs := []*domain.Job{
		testJob("Changed Title", "https://acme.org/jobs/1"),
		testJob("Unchanged Title", "https://acme.org/jobs/2"),
		testJob("Brand New", "https://acme.org/jobs/3"),
	}

	mock.ExpectBegin()
	// Existing row with changed content: DO UPDATE fires, xmax != 0.
	mock.ExpectQuery("INSERT INTO jobs").
		WillReturnRows(sqlmock.NewRows(upsertReturnColumns).AddRow("existing-id-1", false))
	// Unchanged row: the guard blocks the update, so no row comes back.
	mock.ExpectQuery("INSERT INTO jobs").
		WillReturnRows(sqlmock.NewRows(upsertReturnColumns))
	mock.ExpectQuery("INSERT INTO jobs").
		WillReturnRows(sqlmock.NewRows(upsertReturnColumns).AddRow(jobs[2].ID, true))
	mock.ExpectCommit()

	stats, err := repo.UpsertBatch(ctx, jobs)
	if err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}

	if stats.Inserted != 1 {
		t.Errorf("expected Inserted=1, got %d", stats.Inserted)
	}
	if stats.Updated != 1 {
		t.Errorf("expected Updated=1, got %d", stats.Updated)
	}
	if stats.Skipped != 1 {
		t.Errorf("expected Skipped=1, got %d", stats.Skipped)
	}
	if jobs[0].ID != "existing-id-1" {
		t.Errorf("expected updated job to adopt existing row id, got %s", jobs[0].ID)
	}
	if len(stats.UpdatedIDs) != 1 || stats.UpdatedIDs[0] != "existing-id-1" {
		t.Errorf("expected UpdatedIDs=[existing-id-1], got %v", stats.UpdatedIDs)
	}

	expectationsMet(t, mock)
}

func TestJobRepository_UpsertBatch_RetriesChunkRowsIndividually(t *testing.T) {
	repo, mock, cleanup := newJobRepo(t)
	defer cleanup()

	ctx := context.Background()
	jobs := []*domain.Job{
		testJob("Poison Row", "https://acme.org/jobs/bad"),
		testJob("Good Row", "https://acme.org/jobs/good"),
	}

	// The first statement fails, aborting the chunk transaction.
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO jobs").
		WillReturnError(&pq.Error{Code: "22001", Message: "value too long"})
	mock.ExpectRollback()

	// Per-row retry: the poison row fails again and is classified, the
	// good row lands.
	mock.ExpectQuery("INSERT INTO jobs").
		WillReturnError(&pq.Error{Code: "22001", Message: "value too long"})
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO jobs").
		WillReturnRows(sqlmock.NewRows(upsertReturnColumns).AddRow(jobs[1].ID, true))

	stats, err := repo.UpsertBatch(ctx, jobs)
	if err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}

	if stats.Inserted != 1 {
		t.Errorf("expected Inserted=1, got %d", stats.Inserted)
	}
	if stats.Failed != 1 {
		t.Errorf("expected Failed=1, got %d", stats.Failed)
	}
	if len(stats.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(stats.Failures))
	}
	if stats.Failures[0].Operation != domain.OperationInsert {
		t.Errorf("expected operation=insert, got %s", stats.Failures[0].Operation)
	}
	if stats.Failures[0].Job.Title != "Poison Row" {
		t.Errorf("expected failed job to be the poison row, got %s", stats.Failures[0].Job.Title)
	}

	expectationsMet(t, mock)
}

func TestJobRepository_UpsertBatch_ClassifiesUpdateFailure(t *testing.T) {
	repo, mock, cleanup := newJobRepo(t)
	defer cleanup()

	ctx := context.Background()
	jobs := []*domain.Job{testJob("Existing Row", "https://acme.org/jobs/1")}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO jobs").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	mock.ExpectQuery("INSERT INTO jobs").
		WillReturnError(errors.New("deadlock detected"))
	// The conflict target already exists, so this was an update attempt.
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	stats, err := repo.UpsertBatch(ctx, jobs)
	if err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}

	if stats.Failed != 1 {
		t.Fatalf("expected Failed=1, got %d", stats.Failed)
	}
	if stats.Failures[0].Operation != domain.OperationUpdate {
		t.Errorf("expected operation=update, got %s", stats.Failures[0].Operation)
	}

	expectationsMet(t, mock)
}

func TestJobRepository_UpsertBatch_EmptyInput(t *testing.T) {
	repo, mock, cleanup := newJobRepo(t)
	defer cleanup()

	stats, err := repo.UpsertBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}
	if stats.Inserted != 0 || stats.Updated != 0 || stats.Skipped != 0 || stats.Failed != 0 {
		t.Errorf("expected zero stats for empty input, got %+v", stats)
	}

	expectationsMet(t, mock)
}

func TestJobRepository_UpsertBatch_BeginFailureSurfaces(t *testing.T) {
	repo, mock, cleanup := newJobRepo(t)
	defer cleanup()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := repo.UpsertBatch(context.Background(), []*domain.Job{
		testJob("Any", "https://acme.org/jobs/1"),
	})
	if err == nil {
		t.Fatal("UpsertBatch() expected error when transaction cannot begin, got nil")
	}

	expectationsMet(t, mock)
}

func TestJobRepository_SoftDelete(t *testing.T) {
	repo, mock, cleanup := newJobRepo(t)
	defer cleanup()

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", "admin@example.org", "expired posting").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SoftDelete(context.Background(), "job-1", "admin@example.org", "expired posting")
	if err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestJobRepository_SoftDelete_AlreadyDeleted(t *testing.T) {
	repo, mock, cleanup := newJobRepo(t)
	defer cleanup()

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", "admin@example.org", "reason").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SoftDelete(context.Background(), "job-1", "admin@example.org", "reason")
	if !errors.Is(err, database.ErrJobNotFound) {
		t.Fatalf("SoftDelete() expected ErrJobNotFound, got %v", err)
	}

	expectationsMet(t, mock)
}

func TestJobRepository_Restore(t *testing.T) {
	repo, mock, cleanup := newJobRepo(t)
	defer cleanup()

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Restore(context.Background(), "job-1"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestJobRepository_HardDelete_RequiresReason(t *testing.T) {
	repo, mock, cleanup := newJobRepo(t)
	defer cleanup()

	err := repo.HardDelete(context.Background(), "job-1", "   ")
	if !errors.Is(err, database.ErrDeletionReasonRequired) {
		t.Fatalf("HardDelete() expected ErrDeletionReasonRequired, got %v", err)
	}

	expectationsMet(t, mock)
}

func TestJobRepository_HardDelete(t *testing.T) {
	repo, mock, cleanup := newJobRepo(t)
	defer cleanup()

	mock.ExpectExec("DELETE FROM jobs").
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.HardDelete(context.Background(), "job-1", "spam source"); err != nil {
		t.Fatalf("HardDelete() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestJobRepository_GetByID_NotFound(t *testing.T) {
	repo, mock, cleanup := newJobRepo(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .+ FROM jobs").
		WithArgs("missing-id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "missing-id")
	if !errors.Is(err, database.ErrJobNotFound) {
		t.Fatalf("GetByID() expected ErrJobNotFound, got %v", err)
	}

	expectationsMet(t, mock)
}

func TestJobRepository_Stats(t *testing.T) {
	repo, mock, cleanup := newJobRepo(t)
	defer cleanup()

	mock.ExpectQuery("SELECT quality_grade").
		WillReturnRows(
			sqlmock.NewRows([]string{"quality_grade", "total", "needs_review", "remote"}).
				AddRow("high", 40, 0, 5).
				AddRow("medium", 25, 2, 3).
				AddRow("low", 10, 10, 0),
		)

	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	if stats.Total != 75 {
		t.Errorf("expected Total=75, got %d", stats.Total)
	}
	if stats.NeedsReview != 12 {
		t.Errorf("expected NeedsReview=12, got %d", stats.NeedsReview)
	}
	if stats.Remote != 8 {
		t.Errorf("expected Remote=8, got %d", stats.Remote)
	}
	if stats.ByGrade["high"] != 40 {
		t.Errorf("expected ByGrade[high]=40, got %d", stats.ByGrade["high"])
	}

	expectationsMet(t, mock)
}
