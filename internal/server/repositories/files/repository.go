// Package files implements the durable metadata repository for file records.
package files

import (
	"context"

	"github.com/amirhossein-khalili/FIM/internal/server/models"
)

// Repository is the file record store contract. All writes either commit or
// return an error; no status transition is ever silently dropped.
type Repository interface {
	// Create inserts a new record and fills in its ID and CreatedAt.
	// Returns common.ErrAlreadyExists when the (owner, name) pair is taken.
	Create(ctx context.Context, rec *models.FileRecord) error

	// GetByID fetches a record by primary key. Returns common.ErrNotFound
	// when the record does not exist.
	GetByID(ctx context.Context, id int64) (*models.FileRecord, error)

	// GetByOwnerAndName fetches a record regardless of status. Used by the
	// intake dedup check.
	GetByOwnerAndName(ctx context.Context, ownerID, name string) (*models.FileRecord, error)

	// GetByExternalRef is the read-path lookup: scoped to the owner and to
	// COMPLETED records only. A ref belonging to another owner yields
	// common.ErrNotFound, never a hint that the file exists.
	GetByExternalRef(ctx context.Context, externalRef, ownerID string) (*models.FileRecord, error)

	// ListCompleted returns the owner's COMPLETED records, newest first.
	ListCompleted(ctx context.Context, ownerID string) ([]*models.FileRecord, error)

	// UpdateStatus sets the record status. errorMessage is stored only when
	// status is FAILED and cleared otherwise, keeping the column and the
	// status in lockstep. Returns common.ErrNotFound when the record is gone.
	UpdateStatus(ctx context.Context, id int64, status models.FileStatus, errorMessage string) error
}
