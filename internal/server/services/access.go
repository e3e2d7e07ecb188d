package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirhossein-khalili/FIM/internal/audit"
	"github.com/amirhossein-khalili/FIM/internal/common"
	"github.com/amirhossein-khalili/FIM/internal/logging"
	"github.com/amirhossein-khalili/FIM/internal/server/identity"
	"github.com/amirhossein-khalili/FIM/internal/server/models"
	"github.com/amirhossein-khalili/FIM/internal/server/repositories/files"
	"github.com/amirhossein-khalili/FIM/internal/server/storage"
)

// AccessService is the read path: listing a principal's completed files and
// resolving one to a short-lived signed URL. Records that are not COMPLETED
// are invisible here, so clients can never observe a partial upload.
type AccessService struct {
	records files.Repository
	store   storage.ObjectStore
	ttl     time.Duration
	audit   *audit.Recorder
	logger  logging.Logger
}

func NewAccessService(records files.Repository, store storage.ObjectStore, ttl time.Duration,
	auditRec *audit.Recorder, logger logging.Logger) *AccessService {
	return &AccessService{
		records: records,
		store:   store,
		ttl:     ttl,
		audit:   auditRec,
		logger:  logger.With("module", "access"),
	}
}

// ListFiles returns the owner's COMPLETED records.
func (s *AccessService) ListFiles(ctx context.Context, owner identity.Principal) ([]*models.FileRecord, error) {
	recs, err := s.records.ListCompleted(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list files for %s: %w", owner.ID, err)
	}
	return recs, nil
}

// ResolveURL turns an externalRef into a signed URL. The lookup is scoped to
// the owner and fails closed: another owner's ref yields ErrNotFound. A
// gateway failure yields ErrStorageUnavailable, never a crash.
func (s *AccessService) ResolveURL(ctx context.Context, owner identity.Principal, externalRef string) (string, error) {

	start := time.Now()

	rec, err := s.records.GetByExternalRef(ctx, externalRef, owner.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("resolve %s: %w", externalRef, err)
	}

	url, err := s.store.SignedURL(ctx, rec.StorageKey, s.ttl)
	if err != nil {
		s.logger.Error(ctx, "signed URL generation failed",
			"ref", externalRef, "key", rec.StorageKey, "error", err.Error())
		return "", fmt.Errorf("sign %s: %w", externalRef, common.ErrStorageUnavailable)
	}

	if err := s.audit.Write("access", audit.Event{
		Stage:   "resolved",
		Owner:   owner.ID,
		Ref:     externalRef,
		Detail:  rec.OriginalName,
		Elapsed: time.Since(start),
	}); err != nil {
		s.logger.Warn(ctx, "audit write failed", "error", err.Error())
	}

	return url, nil
}
