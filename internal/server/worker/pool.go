package worker

import (
	"context"
	"sync"
	"time"

	"github.com/amirhossein-khalili/FIM/internal/logging"
	"github.com/amirhossein-khalili/FIM/internal/server/metrics"
	"github.com/amirhossein-khalili/FIM/internal/server/models"
)

// Queue is the slice of the job queue the pool needs.
type Queue interface {
	DequeueDue(ctx context.Context, limit int) ([]models.Job, error)
	Reschedule(ctx context.Context, id int64, delay time.Duration) error
	Complete(ctx context.Context, id int64) error
	Abandon(ctx context.Context, id int64) error
}

// Options tunes the pool. Zero values fall back to defaults.
type Options struct {
	// Workers is the number of concurrent job executors.
	Workers int
	// PollInterval is how often the queue is polled for due jobs.
	PollInterval time.Duration
	// BackoffBase scales the retry delay: attempt n waits n * BackoffBase.
	BackoffBase time.Duration
	// MaxAttempts caps total runs per job; after that the job is abandoned
	// and the record stays FAILED.
	MaxAttempts int
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.PollInterval <= 0 {
		out.PollInterval = time.Second
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = time.Minute
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	return out
}

// Pool polls the durable queue and fans jobs out to a fixed set of worker
// goroutines. It owns the retry policy: a retryable failure reschedules the
// job with a delay growing with the attempt count, until the attempt budget
// is spent and the job is abandoned.
type Pool struct {
	queue  Queue
	proc   *Processor
	opts   Options
	jobs   chan models.Job
	wg     sync.WaitGroup
	logger logging.Logger
}

func NewPool(queue Queue, proc *Processor, opts Options, logger logging.Logger) *Pool {
	o := opts.withDefaults()
	return &Pool{
		queue:  queue,
		proc:   proc,
		opts:   o,
		jobs:   make(chan models.Job, o.Workers*2),
		logger: logger.With("module", "worker_pool"),
	}
}

// Run blocks until ctx is cancelled, then drains the in-flight jobs and
// returns.
func (p *Pool) Run(ctx context.Context) {
	// Workers get their own context so that jobs already dequeued still
	// finish their record and queue writes during shutdown. A job stranded
	// anyway (process kill) is recovered by the stale-claim sweep.
	drainCtx, drainCancel := context.WithCancel(context.Background())
	defer drainCancel()

	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(drainCtx)
	}

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(p.jobs)
			p.wg.Wait()
			p.logger.Info(ctx, "worker pool stopped")
			return
		case <-ticker.C:
			p.dispatch(ctx)
		}
	}
}

func (p *Pool) dispatch(ctx context.Context) {
	batch, err := p.queue.DequeueDue(ctx, cap(p.jobs))
	if err != nil {
		p.logger.Error(ctx, "dequeue failed", "error", err.Error())
		return
	}

	for _, job := range batch {
		select {
		case p.jobs <- job:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.handle(ctx, job)
	}
}

func (p *Pool) handle(ctx context.Context, job models.Job) {
	start := time.Now()
	err := p.proc.Run(ctx, job)
	metrics.JobDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		if cerr := p.queue.Complete(ctx, job.ID); cerr != nil {
			p.logger.Error(ctx, "job completion not recorded", "job_id", job.ID, "error", cerr.Error())
		}
		metrics.JobsCompleted.Inc()
		return
	}

	attempt := job.Attempts + 1
	if attempt >= p.opts.MaxAttempts {
		p.logger.Error(ctx, "retries exhausted, abandoning job",
			"job_id", job.ID, "record_id", job.RecordID, "attempts", attempt, "error", err.Error())
		if aerr := p.queue.Abandon(ctx, job.ID); aerr != nil {
			p.logger.Error(ctx, "job abandonment not recorded", "job_id", job.ID, "error", aerr.Error())
		}
		metrics.JobsAbandoned.Inc()
		return
	}

	delay := time.Duration(attempt) * p.opts.BackoffBase
	p.logger.Warn(ctx, "job failed, rescheduling",
		"job_id", job.ID, "record_id", job.RecordID, "attempt", attempt,
		"delay", delay.String(), "error", err.Error())
	if rerr := p.queue.Reschedule(ctx, job.ID, delay); rerr != nil {
		p.logger.Error(ctx, "reschedule failed", "job_id", job.ID, "error", rerr.Error())
	}
	metrics.JobsRetried.Inc()
}
