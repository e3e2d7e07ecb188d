// Package notify is the fire-and-forget side channel for file lifecycle
// events. The pipeline never depends on a notification succeeding; the
// Notifier interface therefore returns nothing.
package notify

import (
	"context"
	"sync"

	"github.com/amirhossein-khalili/FIM/internal/logging"
)

// Notifier receives lifecycle events. Implementations must not block for
// long and must swallow their own failures.
type Notifier interface {
	FileAccepted(ctx context.Context, ownerID, externalRef, name string)
	FileCompleted(ctx context.Context, ownerID, externalRef, name string)
	FileFailed(ctx context.Context, ownerID, externalRef, name, reason string)
}

// LogNotifier emits events as structured log lines. External dispatchers
// (telegram bots, mail, webhooks) tail these events; formatting and delivery
// are outside this repository.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notify")}
}

func (n *LogNotifier) FileAccepted(ctx context.Context, ownerID, externalRef, name string) {
	n.logger.Info(ctx, "file accepted", "owner", ownerID, "ref", externalRef, "name", name)
}

func (n *LogNotifier) FileCompleted(ctx context.Context, ownerID, externalRef, name string) {
	n.logger.Info(ctx, "file completed", "owner", ownerID, "ref", externalRef, "name", name)
}

func (n *LogNotifier) FileFailed(ctx context.Context, ownerID, externalRef, name, reason string) {
	n.logger.Warn(ctx, "file failed", "owner", ownerID, "ref", externalRef, "name", name, "reason", reason)
}

// Recorder collects events in memory. Test double.
type Recorder struct {
	mu     sync.Mutex
	Events []RecordedEvent
}

type RecordedEvent struct {
	Kind        string
	OwnerID     string
	ExternalRef string
	Name        string
	Reason      string
}

func (r *Recorder) record(ev RecordedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, ev)
}

func (r *Recorder) FileAccepted(_ context.Context, ownerID, externalRef, name string) {
	r.record(RecordedEvent{Kind: "accepted", OwnerID: ownerID, ExternalRef: externalRef, Name: name})
}

func (r *Recorder) FileCompleted(_ context.Context, ownerID, externalRef, name string) {
	r.record(RecordedEvent{Kind: "completed", OwnerID: ownerID, ExternalRef: externalRef, Name: name})
}

func (r *Recorder) FileFailed(_ context.Context, ownerID, externalRef, name, reason string) {
	r.record(RecordedEvent{Kind: "failed", OwnerID: ownerID, ExternalRef: externalRef, Name: name, Reason: reason})
}
