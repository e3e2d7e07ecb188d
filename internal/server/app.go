// Package server wires the ingestion pipeline together and runs it: the
// synchronous intake and access services (exposed to whatever transport the
// deployment puts in front of them) plus the background worker pool and the
// orphan sweep. It owns startup order, signal handling, and shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/amirhossein-khalili/FIM/internal/audit"
	"github.com/amirhossein-khalili/FIM/internal/logging"
	"github.com/amirhossein-khalili/FIM/internal/server/config"
	"github.com/amirhossein-khalili/FIM/internal/server/identity"
	"github.com/amirhossein-khalili/FIM/internal/server/notify"
	"github.com/amirhossein-khalili/FIM/internal/server/repositories/files"
	"github.com/amirhossein-khalili/FIM/internal/server/repositories/jobs"
	"github.com/amirhossein-khalili/FIM/internal/server/services"
	"github.com/amirhossein-khalili/FIM/internal/server/spool"
	"github.com/amirhossein-khalili/FIM/internal/server/storage"
	"github.com/amirhossein-khalili/FIM/internal/server/worker"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	audit    *audit.Recorder
	queue    *jobs.PostgresRepository
	pool     *worker.Pool
	intake   *services.IntakeService
	access   *services.AccessService
	verifier identity.Verifier
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout)

	db, err := openDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	auditRec, err := audit.New(cfg.AuditDir)
	if err != nil {
		return nil, fmt.Errorf("audit init error: %w", err)
	}

	sp, err := spool.New(cfg.SpoolDir)
	if err != nil {
		return nil, fmt.Errorf("spool init error: %w", err)
	}

	store := storage.NewS3Store(ctx, storage.Config{
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
		OpTimeout:    cfg.StorageOpTimeout,
	}, logger)

	notifier := notify.NewLogNotifier(logger)
	records := files.NewPostgresRepository(db)
	queue := jobs.NewPostgresRepository(db)

	intake := services.NewIntakeService(records, queue, sp, notifier, auditRec, logger)
	access := services.NewAccessService(records, store, cfg.SignedURLTTL, auditRec, logger)

	proc := worker.NewProcessor(worker.NewDBRecords(db), store, sp, notifier, auditRec, logger)
	pool := worker.NewPool(queue, proc, worker.Options{
		Workers:      cfg.WorkerCount,
		PollInterval: cfg.QueuePollInterval,
		BackoffBase:  cfg.RetryBackoffBase,
		MaxAttempts:  cfg.MaxJobAttempts,
	}, logger)

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		audit:    auditRec,
		queue:    queue,
		pool:     pool,
		intake:   intake,
		access:   access,
		verifier: identity.NewJWTVerifier([]byte(cfg.SecretKey)),
	}, nil
}

// Intake exposes the upload handler to the transport layer.
func (app *App) Intake() *services.IntakeService { return app.intake }

// Access exposes the read path to the transport layer.
func (app *App) Access() *services.AccessService { return app.access }

// Verifier exposes the principal token verifier to the transport layer.
func (app *App) Verifier() identity.Verifier { return app.verifier }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// sweepOrphans periodically reconciles queue state with record state: PENDING
// records whose enqueue was lost get a fresh job, and running claims stranded
// by a crashed consumer go back to queued. Both heal without operator action.
func (app *App) sweepOrphans(ctx context.Context) {
	interval := app.config.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, err := app.queue.ReleaseStale(ctx, app.config.SweepAge)
			if err != nil {
				app.logger.Error(ctx, "stale claim sweep failed", "error", err.Error())
			} else if released > 0 {
				app.logger.Warn(ctx, "released stale running jobs", "count", released)
			}

			n, err := app.queue.RequeueOrphans(ctx, app.config.SweepAge)
			if err != nil {
				app.logger.Error(ctx, "orphan sweep failed", "error", err.Error())
				continue
			}
			if n > 0 {
				app.logger.Warn(ctx, "requeued orphaned records", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.pool.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweepOrphans(ctx)
	}()

	wg.Wait()

	if err := app.audit.Close(); err != nil {
		app.logger.Error(ctx, "audit close error", "error", err.Error())
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}

	app.logger.Info(ctx, "Shutdown complete")
}
