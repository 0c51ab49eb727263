package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmitrijs2005/resumepress/internal/common"
	"github.com/dmitrijs2005/resumepress/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestGetByHandle(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"owner_id", "handle", "content", "published_at"}).
		AddRow("u1", "anna-dev", []byte(`{"full_name":"Anna"}`), time.Now())

	mock.ExpectQuery(`SELECT .* FROM snapshots WHERE handle=\$1`).
		WithArgs("anna-dev").
		WillReturnRows(rows)

	got, err := repo.GetByHandle(context.Background(), "anna-dev")
	if err != nil {
		t.Fatalf("GetByHandle error: %v", err)
	}
	if got.OwnerID != "u1" || string(got.Content) != `{"full_name":"Anna"}` {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestGetByHandle_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM snapshots WHERE handle=\$1`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByHandle(context.Background(), "nobody")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected common.ErrNotFound, got %v", err)
	}
}

func TestUpsert(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)INSERT INTO snapshots .*ON CONFLICT \(owner_id\)`).
		WithArgs("u1", "anna-dev", []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.Snapshot{
		OwnerID: "u1", Handle: "anna-dev", Content: []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteByOwner(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM snapshots WHERE owner_id=\$1`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteByOwner(context.Background(), "u1"); err != nil {
		t.Fatalf("DeleteByOwner error: %v", err)
	}
}
