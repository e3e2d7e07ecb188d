// Package jobs implements the durable, database-backed job queue feeding the
// ingestion worker pool. Delivery is at-least-once: a job rescheduled after a
// failure runs again from scratch, and the worker's entry guard makes the
// duplicate run harmless.
package jobs

import (
	"context"
	"time"

	"github.com/amirhossein-khalili/FIM/internal/server/models"
)

// Repository is the queue contract.
type Repository interface {
	// Enqueue adds a job for the record. Enqueuing is idempotent per record:
	// while a queued or running job exists for the record, further enqueues
	// are no-ops.
	Enqueue(ctx context.Context, recordID int64) error

	// DequeueDue claims up to limit due jobs, marking them running. Claimed
	// jobs are invisible to concurrent consumers (SKIP LOCKED).
	DequeueDue(ctx context.Context, limit int) ([]models.Job, error)

	// Reschedule returns a failed job to the queue after delay, counting
	// the failed attempt.
	Reschedule(ctx context.Context, id int64, delay time.Duration) error

	// Complete marks a job done.
	Complete(ctx context.Context, id int64) error

	// Abandon marks a job dead after the retry budget is exhausted.
	Abandon(ctx context.Context, id int64) error

	// ReleaseStale returns running jobs untouched for longer than age to the
	// queue, recovering claims stranded by a crashed or interrupted consumer.
	// Returns the number of jobs released.
	ReleaseStale(ctx context.Context, age time.Duration) (int64, error)

	// RequeueOrphans enqueues jobs for PENDING records older than age that
	// have no live job, reconciling records stranded by an enqueue failure.
	// Returns the number of jobs created.
	RequeueOrphans(ctx context.Context, age time.Duration) (int64, error)
}
