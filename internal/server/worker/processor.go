package worker

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/amirhossein-khalili/FIM/internal/audit"
	"github.com/amirhossein-khalili/FIM/internal/common"
	"github.com/amirhossein-khalili/FIM/internal/logging"
	"github.com/amirhossein-khalili/FIM/internal/server/models"
	"github.com/amirhossein-khalili/FIM/internal/server/notify"
	"github.com/amirhossein-khalili/FIM/internal/server/spool"
	"github.com/amirhossein-khalili/FIM/internal/server/storage"
)

// maxErrorMessageLen bounds stored error messages.
const maxErrorMessageLen = 255

// Processor runs a single ingestion job. A nil return means the job is
// finished for good (success, already handled, or unrecoverable); a non-nil
// return asks the pool to apply the retry policy.
type Processor struct {
	records  Records
	store    storage.ObjectStore
	spool    *spool.Store
	notifier notify.Notifier
	audit    *audit.Recorder
	logger   logging.Logger
}

func NewProcessor(records Records, store storage.ObjectStore, sp *spool.Store,
	notifier notify.Notifier, auditRec *audit.Recorder, logger logging.Logger) *Processor {
	return &Processor{
		records:  records,
		store:    store,
		spool:    sp,
		notifier: notifier,
		audit:    auditRec,
		logger:   logger.With("module", "processor"),
	}
}

// Run executes the job state machine from entry guard to final status. Every
// record write re-reads the row first (see Records), so a duplicate delivery
// of the same job converges on the entry guard.
func (p *Processor) Run(ctx context.Context, job models.Job) (err error) {

	// Whatever goes wrong below this point must never crash the pool. A
	// panic becomes a FAILED record and a retryable error.
	defer func() {
		if r := recover(); r != nil {
			msg := truncate(fmt.Sprintf("unexpected processing error: %v", r), maxErrorMessageLen)
			if terr := p.records.Transition(ctx, job.RecordID, models.StatusFailed, msg); terr != nil {
				p.logger.Error(ctx, "failed to record panic outcome",
					"record_id", job.RecordID, "error", terr.Error())
			}
			err = fmt.Errorf("job for record %d panicked: %w", job.RecordID, common.ErrTransferFailed)
		}
	}()

	log := p.logger.With("record_id", job.RecordID, "attempt", job.Attempts)

	// Entry guard: duplicate deliveries of an already-settled record are
	// silent no-ops, as is a record that vanished underneath the queue.
	// A retry delivery is the one exception: it expects the record in
	// FAILED from its own previous run and resumes through PROCESSING.
	rec, err := p.records.GetByID(ctx, job.RecordID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			log.Warn(ctx, "record vanished, dropping job")
			return nil
		}
		return fmt.Errorf("entry guard fetch: %w", err)
	}
	if rec.Status == models.StatusCompleted ||
		(rec.Status == models.StatusFailed && job.Attempts == 0) {
		log.Warn(ctx, "record already settled, skipping", "status", string(rec.Status))
		return nil
	}

	if err := p.records.Transition(ctx, rec.ID, models.StatusProcessing, ""); err != nil {
		return fmt.Errorf("transition to processing: %w", err)
	}
	log.Info(ctx, "processing started", "key", rec.StorageKey)

	f, err := p.spool.Open(rec.StorageKey)
	if err != nil {
		if os.IsNotExist(err) {
			// The spooled bytes are gone; no retry can bring them back.
			p.fail(ctx, rec, "file reference missing in local spool")
			log.Error(ctx, "spool file missing, giving up", "key", rec.StorageKey)
			return nil
		}
		p.fail(ctx, rec, truncate("cannot read spooled file: "+err.Error(), maxErrorMessageLen))
		return fmt.Errorf("open spool %s: %w", rec.StorageKey, err)
	}
	defer f.Close()

	if err := p.store.Put(ctx, rec.StorageKey, f); err != nil {
		p.fail(ctx, rec, "upload failed")
		log.Error(ctx, "object store put failed", "key", rec.StorageKey, "error", err.Error())
		return fmt.Errorf("put %s: %w", rec.StorageKey, common.ErrTransferFailed)
	}

	if err := p.records.Transition(ctx, rec.ID, models.StatusCompleted, ""); err != nil {
		return fmt.Errorf("transition to completed: %w", err)
	}

	if err := p.spool.Remove(rec.StorageKey); err != nil {
		log.Warn(ctx, "spool cleanup failed", "key", rec.StorageKey, "error", err.Error())
	}

	p.notifier.FileCompleted(ctx, rec.OwnerID, rec.ExternalRef, rec.OriginalName)
	p.writeAudit("completed", rec, "")
	log.Info(ctx, "processing completed", "key", rec.StorageKey)

	return nil
}

// fail is the best-effort FAILED transition; the caller decides whether the
// job is retried. Transition errors are logged, not propagated, so the
// original failure drives the retry policy.
func (p *Processor) fail(ctx context.Context, rec *models.FileRecord, msg string) {
	if err := p.records.Transition(ctx, rec.ID, models.StatusFailed, msg); err != nil {
		p.logger.Error(ctx, "failed to mark record FAILED",
			"record_id", rec.ID, "error", err.Error())
		return
	}
	p.notifier.FileFailed(ctx, rec.OwnerID, rec.ExternalRef, rec.OriginalName, msg)
	p.writeAudit("failed", rec, msg)
}

func (p *Processor) writeAudit(stage string, rec *models.FileRecord, detail string) {
	if err := p.audit.Write("worker", audit.Event{
		Stage:  stage,
		Owner:  rec.OwnerID,
		Ref:    rec.ExternalRef,
		Detail: detail,
	}); err != nil {
		p.logger.Warn(context.Background(), "audit write failed", "error", err.Error())
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
