// Package worker implements the asynchronous ingestion side: a bounded pool
// consuming jobs from the durable queue, moving spooled bytes into object
// storage, and driving each record through its status lifecycle.
package worker

import (
	"context"
	"database/sql"

	"github.com/amirhossein-khalili/FIM/internal/dbx"
	"github.com/amirhossein-khalili/FIM/internal/server/models"
	"github.com/amirhossein-khalili/FIM/internal/server/repositories/files"
)

// Records is the slice of the record store the worker needs. Transition
// implementations must re-read the record immediately before writing so that
// concurrent duplicate job runs converge instead of clobbering each other.
type Records interface {
	GetByID(ctx context.Context, id int64) (*models.FileRecord, error)
	Transition(ctx context.Context, id int64, status models.FileStatus, errorMessage string) error
}

// DBRecords is the production Records implementation: each transition is one
// short transaction that re-fetches the row and then updates it.
type DBRecords struct {
	db *sql.DB
}

func NewDBRecords(db *sql.DB) *DBRecords {
	return &DBRecords{db: db}
}

func (r *DBRecords) GetByID(ctx context.Context, id int64) (*models.FileRecord, error) {
	return files.NewPostgresRepository(r.db).GetByID(ctx, id)
}

func (r *DBRecords) Transition(ctx context.Context, id int64, status models.FileStatus, errorMessage string) error {
	return dbx.WithTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := files.NewPostgresRepository(tx)

		rec, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		// A completed record is a sink; never downgrade it.
		if rec.Status == models.StatusCompleted {
			return nil
		}

		return repo.UpdateStatus(ctx, id, status, errorMessage)
	})
}
