// Package services holds the synchronous application services: the upload
// intake handler and the access/listing facade. The transport layer in front
// of them (HTTP, gRPC, anything) lives outside this repository.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/amirhossein-khalili/FIM/internal/audit"
	"github.com/amirhossein-khalili/FIM/internal/common"
	"github.com/amirhossein-khalili/FIM/internal/logging"
	"github.com/amirhossein-khalili/FIM/internal/server/identity"
	"github.com/amirhossein-khalili/FIM/internal/server/metrics"
	"github.com/amirhossein-khalili/FIM/internal/server/models"
	"github.com/amirhossein-khalili/FIM/internal/server/notify"
	"github.com/amirhossein-khalili/FIM/internal/server/repositories/files"
	"github.com/amirhossein-khalili/FIM/internal/server/spool"
)

// JobEnqueuer is the slice of the job queue the intake handler needs.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, recordID int64) error
}

// SubmitResult reports the outcome of an upload submission.
type SubmitResult struct {
	ExternalRef string
	// AlreadyExists marks an idempotent re-submission: the ref belongs to
	// the previously created record and no new job was enqueued.
	AlreadyExists bool
}

// IntakeService is the synchronous upload boundary. It records the file,
// spools its bytes locally, and hands the transfer to the background worker.
// It never talks to the object store itself, so request latency does not
// depend on the storage backend.
type IntakeService struct {
	records  files.Repository
	queue    JobEnqueuer
	spool    *spool.Store
	notifier notify.Notifier
	audit    *audit.Recorder
	logger   logging.Logger
}

func NewIntakeService(records files.Repository, queue JobEnqueuer, sp *spool.Store,
	notifier notify.Notifier, auditRec *audit.Recorder, logger logging.Logger) *IntakeService {
	return &IntakeService{
		records:  records,
		queue:    queue,
		spool:    sp,
		notifier: notifier,
		audit:    auditRec,
		logger:   logger.With("module", "intake"),
	}
}

// Submit accepts an upload for the owner. Duplicate (owner, filename) pairs
// return the existing record's ref without enqueuing anything. On success,
// exactly one job has been enqueued for the new record.
func (s *IntakeService) Submit(ctx context.Context, owner identity.Principal, filename string, r io.Reader) (*SubmitResult, error) {

	start := time.Now()

	if r == nil || filename == "" {
		return nil, fmt.Errorf("missing file stream or name: %w", common.ErrInvalidInput)
	}
	// Names must be plain: keys embed them in a path.
	if filepath.Base(filename) != filename || filename == "." || filename == ".." {
		return nil, fmt.Errorf("unacceptable filename %q: %w", filename, common.ErrInvalidInput)
	}

	existing, err := s.records.GetByOwnerAndName(ctx, owner.ID, filename)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		s.writeAudit("duplicate", owner.ID, existing.ExternalRef, filename, start)
		return &SubmitResult{ExternalRef: existing.ExternalRef, AlreadyExists: true}, nil
	}

	key := models.StorageKeyFor(owner.ID, filename)

	// Bytes go to a private staging file first. The final key belongs to
	// whichever submission wins the record insert, so a race loser can never
	// clobber the winner's spooled bytes.
	staged, n, err := s.spool.Stage(r)
	if err != nil {
		return nil, fmt.Errorf("spool stage: %w", err)
	}
	if n == 0 {
		_ = s.spool.Discard(staged)
		return nil, fmt.Errorf("empty file stream: %w", common.ErrInvalidInput)
	}
	metrics.IntakeBytes.Add(float64(n))

	rec := &models.FileRecord{
		ExternalRef:  uuid.NewString(),
		OwnerID:      owner.ID,
		OriginalName: filename,
		StorageKey:   key,
		Status:       models.StatusPending,
	}

	if err := s.records.Create(ctx, rec); err != nil {
		_ = s.spool.Discard(staged)
		if errors.Is(err, common.ErrAlreadyExists) {
			// Lost a concurrent race for the same (owner, name). The winner
			// owns the record, the spool key, and the job.
			winner, err := s.records.GetByOwnerAndName(ctx, owner.ID, filename)
			if err != nil {
				return nil, fmt.Errorf("winner lookup after conflict: %w", err)
			}
			s.writeAudit("duplicate", owner.ID, winner.ExternalRef, filename, start)
			return &SubmitResult{ExternalRef: winner.ExternalRef, AlreadyExists: true}, nil
		}
		return nil, fmt.Errorf("record create: %w", err)
	}

	if err := s.spool.Promote(staged, key); err != nil {
		// The record exists but its bytes do not; the sweep will enqueue it
		// and the worker settles it as FAILED.
		_ = s.spool.Discard(staged)
		return nil, fmt.Errorf("spool promote: %w", err)
	}

	if err := s.queue.Enqueue(ctx, rec.ID); err != nil {
		// The record stays PENDING; the orphan sweep will pick it up.
		s.logger.Error(ctx, "enqueue failed, record left pending",
			"record_id", rec.ID, "ref", rec.ExternalRef, "error", err.Error())
		s.writeAudit("enqueue_failed", owner.ID, rec.ExternalRef, filename, start)
		return nil, fmt.Errorf("enqueue record %d: %w", rec.ID, common.ErrQueueUnavailable)
	}

	s.notifier.FileAccepted(ctx, owner.ID, rec.ExternalRef, filename)
	s.logger.Info(ctx, "upload accepted",
		"record_id", rec.ID, "ref", rec.ExternalRef, "owner", owner.ID, "bytes", n)
	s.writeAudit("accepted", owner.ID, rec.ExternalRef, filename, start)

	return &SubmitResult{ExternalRef: rec.ExternalRef}, nil
}

func (s *IntakeService) writeAudit(stage, owner, ref, detail string, start time.Time) {
	err := s.audit.Write("intake", audit.Event{
		Stage:   stage,
		Owner:   owner,
		Ref:     ref,
		Detail:  detail,
		Elapsed: time.Since(start),
	})
	if err != nil {
		s.logger.Warn(context.Background(), "audit write failed", "error", err.Error())
	}
}
