// Package models defines the data model persisted by the ingestion pipeline.
package models

import (
	"fmt"
	"time"
)

// FileStatus is the lifecycle state of an uploaded file.
//
// Transitions are monotonic forward: PENDING -> PROCESSING -> COMPLETED or
// FAILED. A FAILED record may re-enter PROCESSING on a retry; COMPLETED and
// terminally FAILED records are sinks.
type FileStatus string

const (
	StatusPending    FileStatus = "PENDING"
	StatusProcessing FileStatus = "PROCESSING"
	StatusCompleted  FileStatus = "COMPLETED"
	StatusFailed     FileStatus = "FAILED"
)

// FileRecord is the central entity of the pipeline: durable metadata about
// one uploaded file. The bytes themselves live in the local spool until the
// worker moves them into object storage under StorageKey.
type FileRecord struct {
	// ID is the internal primary key. Never exposed to clients.
	ID int64
	// ExternalRef is the public random identifier (UUID) clients use.
	ExternalRef string
	// OwnerID identifies the principal the file belongs to. Immutable.
	OwnerID string
	// OriginalName is the client-supplied filename, unique per owner.
	OriginalName string
	// StorageKey is the object-storage key, derived from owner and name
	// at creation time. Immutable.
	StorageKey string

	Status FileStatus
	// ErrorMessage is set only while Status is FAILED.
	ErrorMessage *string

	CreatedAt time.Time
}

// StorageKeyFor derives the object-storage key for an owner's file. The
// derivation is deterministic so that retried submissions of the same file
// target the same key.
func StorageKeyFor(ownerID, filename string) string {
	return fmt.Sprintf("files/%s/%s", ownerID, filename)
}
