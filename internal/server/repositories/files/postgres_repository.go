package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/amirhossein-khalili/FIM/internal/common"
	"github.com/amirhossein-khalili/FIM/internal/dbx"
	"github.com/amirhossein-khalili/FIM/internal/server/models"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rec *models.FileRecord) error {

	query :=
		`INSERT INTO files (external_ref, owner_id, original_name, storage_key, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		rec.ExternalRef, rec.OwnerID, rec.OriginalName, rec.StorageKey, rec.Status,
	).Scan(&rec.ID, &rec.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert file record: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.FileRecord, error) {
	query :=
		`SELECT id, external_ref, owner_id, original_name, storage_key, status, error_message, created_at
		FROM files WHERE id=$1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByOwnerAndName(ctx context.Context, ownerID, name string) (*models.FileRecord, error) {
	query :=
		`SELECT id, external_ref, owner_id, original_name, storage_key, status, error_message, created_at
		FROM files WHERE owner_id=$1 AND original_name=$2`

	return r.scanOne(r.db.QueryRowContext(ctx, query, ownerID, name))
}

func (r *PostgresRepository) GetByExternalRef(ctx context.Context, externalRef, ownerID string) (*models.FileRecord, error) {
	query :=
		`SELECT id, external_ref, owner_id, original_name, storage_key, status, error_message, created_at
		FROM files WHERE external_ref=$1 AND owner_id=$2 AND status=$3`

	return r.scanOne(r.db.QueryRowContext(ctx, query, externalRef, ownerID, models.StatusCompleted))
}

func (r *PostgresRepository) ListCompleted(ctx context.Context, ownerID string) ([]*models.FileRecord, error) {
	query :=
		`SELECT id, external_ref, owner_id, original_name, storage_key, status, error_message, created_at
		FROM files WHERE owner_id=$1 AND status=$2
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerID, models.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to select file records: %w", err)
	}
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, status models.FileStatus, errorMessage string) error {

	// error_message is written only for FAILED so the column can never
	// disagree with the status.
	msg := sql.NullString{}
	if status == models.StatusFailed {
		msg = sql.NullString{String: errorMessage, Valid: true}
	}

	query := `UPDATE files SET status=$2, error_message=$3 WHERE id=$1`

	result, err := r.db.ExecContext(ctx, query, id, status, msg)
	if err != nil {
		return fmt.Errorf("failed to update file status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}

	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.FileRecord, error) {
	rec, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select file record: %w", err)
	}
	return rec, nil
}

func scanRecord(scan func(dest ...any) error) (*models.FileRecord, error) {
	rec := &models.FileRecord{}
	var msg sql.NullString

	err := scan(&rec.ID, &rec.ExternalRef, &rec.OwnerID, &rec.OriginalName,
		&rec.StorageKey, &rec.Status, &msg, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	if msg.Valid {
		rec.ErrorMessage = &msg.String
	}

	return rec, nil
}
