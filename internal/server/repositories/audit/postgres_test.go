package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmitrijs2005/resumepress/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCountSince(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	since := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery(`SELECT count\(\*\) FROM audit_events`).
		WithArgs("u1", "upload", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	got, err := repo.CountSince(context.Background(), "u1", "upload", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5 {
		t.Fatalf("want 5, got %d", got)
	}
}

func TestOldestSince_NoEvents(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	since := time.Now().Add(-time.Hour)

	// min() over zero rows yields NULL, not ErrNoRows.
	mock.ExpectQuery(`SELECT min\(created_at\) FROM audit_events`).
		WithArgs("u1", "upload", since).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

	_, err := repo.OldestSince(context.Background(), "u1", "upload", since)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRecord(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO audit_events`).
		WithArgs("203.0.113.9", "upload").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Record(context.Background(), "203.0.113.9", "upload"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cutoff := time.Now().Add(-48 * time.Hour)

	mock.ExpectExec(`DELETE FROM audit_events WHERE created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 17))

	n, err := repo.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 17 {
		t.Fatalf("want 17 deleted, got %d", n)
	}
}
