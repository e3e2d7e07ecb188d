package files

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/amirhossein-khalili/FIM/internal/common"
	"github.com/amirhossein-khalili/FIM/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var recordColumns = []string{
	"id", "external_ref", "owner_id", "original_name", "storage_key", "status", "error_message", "created_at",
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+files\b.*RETURNING\s+id,\s*created_at$`

	now := time.Now()
	mock.ExpectQuery(q).
		WithArgs("ref-1", "alice", "report.pdf", "files/alice/report.pdf", string(models.StatusPending)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))

	rec := &models.FileRecord{
		ExternalRef:  "ref-1",
		OwnerID:      "alice",
		OriginalName: "report.pdf",
		StorageKey:   "files/alice/report.pdf",
		Status:       models.StatusPending,
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != 7 {
		t.Fatalf("want id 7, got %d", rec.ID)
	}
	if !rec.CreatedAt.Equal(now) {
		t.Fatalf("created_at not filled in")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_UniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+files\b`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "files_owner_name_unique"})

	err := repo.Create(context.Background(), &models.FileRecord{
		ExternalRef:  "ref-1",
		OwnerID:      "alice",
		OriginalName: "report.pdf",
		StorageKey:   "files/alice/report.pdf",
		Status:       models.StatusPending,
	})
	if !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\b.*FROM\s+files\s+WHERE\s+id=\$1$`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 42)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGetByID_FailedRecordCarriesMessage(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\b.*FROM\s+files\s+WHERE\s+id=\$1$`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow(int64(5), "ref-5", "alice", "a.txt", "files/alice/a.txt",
				string(models.StatusFailed), "upload failed", time.Now()))

	rec, err := repo.GetByID(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != models.StatusFailed {
		t.Fatalf("want FAILED, got %s", rec.Status)
	}
	if rec.ErrorMessage == nil || *rec.ErrorMessage != "upload failed" {
		t.Fatalf("want error message preserved, got %v", rec.ErrorMessage)
	}
}

func TestGetByExternalRef_ScopedToOwnerAndCompleted(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\b.*FROM\s+files\s+WHERE\s+external_ref=\$1\s+AND\s+owner_id=\$2\s+AND\s+status=\$3$`

	mock.ExpectQuery(q).
		WithArgs("ref-1", "bob", string(models.StatusCompleted)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByExternalRef(context.Background(), "ref-1", "bob")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound for another owner's ref, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListCompleted(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\b.*FROM\s+files\s+WHERE\s+owner_id=\$1\s+AND\s+status=\$2\s+ORDER\s+BY\s+created_at\s+DESC$`

	mock.ExpectQuery(q).
		WithArgs("alice", string(models.StatusCompleted)).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow(int64(2), "ref-2", "alice", "b.txt", "files/alice/b.txt",
				string(models.StatusCompleted), nil, time.Now()).
			AddRow(int64(1), "ref-1", "alice", "a.txt", "files/alice/a.txt",
				string(models.StatusCompleted), nil, time.Now()))

	recs, err := repo.ListCompleted(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("want 2 records, got %d", len(recs))
	}
	if recs[0].ErrorMessage != nil {
		t.Fatalf("completed record must carry no error message")
	}
}

func TestUpdateStatus_FailedStoresMessage(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+files\s+SET\s+status=\$2,\s*error_message=\$3\s+WHERE\s+id=\$1$`

	mock.ExpectExec(q).
		WithArgs(int64(3), string(models.StatusFailed), sql.NullString{String: "upload failed", Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), 3, models.StatusFailed, "upload failed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateStatus_NonFailedClearsMessage(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+files\s+SET\s+status=\$2,\s*error_message=\$3\s+WHERE\s+id=\$1$`

	// Even if a caller passes a message, it must not survive a transition
	// out of FAILED.
	mock.ExpectExec(q).
		WithArgs(int64(3), string(models.StatusProcessing), sql.NullString{}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), 3, models.StatusProcessing, "stale message")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateStatus_RecordGone(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+files\b`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), 99, models.StatusProcessing, "")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
