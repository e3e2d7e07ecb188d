package worker

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/amirhossein-khalili/FIM/internal/server/models"
)

func fileRow(status models.FileStatus, msg any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "external_ref", "owner_id", "original_name", "storage_key",
		"status", "error_message", "created_at",
	}).AddRow(int64(1), "ref", "alice", "report.pdf", "files/alice/report.pdf",
		string(status), msg, time.Now())
}

func TestDBRecordsTransition_RefetchesThenUpdates(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^SELECT\b.*FROM\s+files\s+WHERE\s+id=\$1$`).
		WithArgs(int64(1)).
		WillReturnRows(fileRow(models.StatusPending, nil))
	mock.ExpectExec(`(?s)^UPDATE\s+files\s+SET\s+status=\$2,\s*error_message=\$3\s+WHERE\s+id=\$1$`).
		WithArgs(int64(1), string(models.StatusProcessing), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	records := NewDBRecords(db)
	if err := records.Transition(context.Background(), 1, models.StatusProcessing, ""); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDBRecordsTransition_NeverDowngradesCompleted(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	// The re-fetch finds COMPLETED, so no UPDATE is issued.
	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^SELECT\b.*FROM\s+files\s+WHERE\s+id=\$1$`).
		WithArgs(int64(1)).
		WillReturnRows(fileRow(models.StatusCompleted, nil))
	mock.ExpectCommit()

	records := NewDBRecords(db)
	if err := records.Transition(context.Background(), 1, models.StatusFailed, "late failure"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
