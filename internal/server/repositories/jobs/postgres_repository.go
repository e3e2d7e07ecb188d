package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/amirhossein-khalili/FIM/internal/dbx"
	"github.com/amirhossein-khalili/FIM/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Enqueue(ctx context.Context, recordID int64) error {

	// The partial unique index on (record_id) for live jobs turns duplicate
	// enqueues into no-ops.
	query :=
		`INSERT INTO jobs (record_id) VALUES ($1)
		ON CONFLICT (record_id) WHERE state IN ('queued', 'running') DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, recordID); err != nil {
		return fmt.Errorf("failed to enqueue job for record %d: %w", recordID, err)
	}

	return nil
}

func (r *PostgresRepository) DequeueDue(ctx context.Context, limit int) ([]models.Job, error) {

	query :=
		`UPDATE jobs SET state='running', updated_at=now()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE state='queued' AND next_run_at <= now()
			ORDER BY next_run_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, record_id, attempts`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue jobs: %w", err)
	}
	defer rows.Close()

	var result []models.Job
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(&job.ID, &job.RecordID, &job.Attempts); err != nil {
			return nil, err
		}
		result = append(result, job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PostgresRepository) Reschedule(ctx context.Context, id int64, delay time.Duration) error {

	query :=
		`UPDATE jobs
		SET state='queued', attempts=attempts+1,
			next_run_at=now() + make_interval(secs => $2), updated_at=now()
		WHERE id=$1`

	if _, err := r.db.ExecContext(ctx, query, id, delay.Seconds()); err != nil {
		return fmt.Errorf("failed to reschedule job %d: %w", id, err)
	}

	return nil
}

func (r *PostgresRepository) Complete(ctx context.Context, id int64) error {

	query := `UPDATE jobs SET state='done', updated_at=now() WHERE id=$1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to complete job %d: %w", id, err)
	}

	return nil
}

func (r *PostgresRepository) Abandon(ctx context.Context, id int64) error {

	query := `UPDATE jobs SET state='dead', attempts=attempts+1, updated_at=now() WHERE id=$1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to abandon job %d: %w", id, err)
	}

	return nil
}

func (r *PostgresRepository) ReleaseStale(ctx context.Context, age time.Duration) (int64, error) {

	// A running job whose claim has not been touched for longer than age
	// belongs to a consumer that died or shut down mid-flight. Returning it
	// to queued lets another worker pick it up; the entry guard absorbs the
	// duplicate run if the original actually finished.
	query :=
		`UPDATE jobs
		SET state='queued', next_run_at=now(), updated_at=now()
		WHERE state='running' AND updated_at < now() - make_interval(secs => $1)`

	result, err := r.db.ExecContext(ctx, query, age.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to release stale jobs: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}

	return n, nil
}

func (r *PostgresRepository) RequeueOrphans(ctx context.Context, age time.Duration) (int64, error) {

	query :=
		`INSERT INTO jobs (record_id)
		SELECT f.id FROM files f
		WHERE f.status=$1 AND f.created_at < now() - make_interval(secs => $2)
		ON CONFLICT (record_id) WHERE state IN ('queued', 'running') DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, models.StatusPending, age.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to requeue orphaned records: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}

	return n, nil
}
