package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/domain"
)

func newRawPageRepo(t *testing.T) (*database.RawPageRepository, sqlmock.Sqlmock, func()) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	db := sqlx.NewDb(mockDB, "postgres")
	repo := database.NewRawPageRepository(db)

	return repo, mock, func() { mockDB.Close() }
}

func TestRawPageRepository_Create(t *testing.T) {
	repo, mock, cleanup := newRawPageRepo(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO raw_pages").
		WillReturnResult(sqlmock.NewResult(0, 1))

	page := &domain.RawPage{
		ID:            "raw-1",
		SourceID:      "source-1",
		URL:           "https://acme.example.org/careers",
		Status:        200,
		HTTPHeaders:   domain.JSONBMap{"content-type": "text/html"},
		StoragePath:   "acme.example.org/2026-08-25/abc123.html",
		ContentLength: 20480,
		ContentHash:   "abc123",
		FetchedAt:     time.Now(),
	}

	if err := repo.Create(context.Background(), page); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestRawPageRepository_GetByID_NotFound(t *testing.T) {
	repo, mock, cleanup := newRawPageRepo(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .+ FROM raw_pages").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, database.ErrRawPageNotFound) {
		t.Fatalf("GetByID() expected ErrRawPageNotFound, got %v", err)
	}

	expectationsMet(t, mock)
}

func TestRawPageRepository_DeleteOlderThan(t *testing.T) {
	repo, mock, cleanup := newRawPageRepo(t)
	defer cleanup()

	cutoff := time.Now().Add(-90 * 24 * time.Hour)

	mock.ExpectQuery("DELETE FROM raw_pages").
		WithArgs(cutoff).
		WillReturnRows(
			sqlmock.NewRows([]string{"storage_path"}).
				AddRow("acme.example.org/2026-05-01/aaa.html").
				AddRow("acme.example.org/2026-05-02/bbb.html"),
		)

	paths, err := repo.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 storage paths, got %d", len(paths))
	}
	if paths[0] != "acme.example.org/2026-05-01/aaa.html" {
		t.Errorf("unexpected first path: %s", paths[0])
	}

	expectationsMet(t, mock)
}
