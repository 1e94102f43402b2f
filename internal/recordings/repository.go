package recordings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dualcast/backend/internal/models"
)

// Repository is the PostgreSQL-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const recordingColumns = `id, owner_id, title, primary_path, secondary_path,
	COALESCE(edited_path,''), duration, status, COALESCE(archive_key,''), created_at, updated_at`

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Title, &rec.PrimaryPath, &rec.SecondaryPath,
		&rec.EditedPath, &rec.Duration, &rec.Status, &rec.ArchiveKey, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Create inserts a new recording.
func (r *Repository) Create(ctx context.Context, rec *models.Recording) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	const q = `INSERT INTO recordings (id, owner_id, title, primary_path, secondary_path, edited_path, duration, status)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), $7, $8)
		RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, q, rec.ID, rec.OwnerID, rec.Title, rec.PrimaryPath, rec.SecondaryPath,
		rec.EditedPath, rec.Duration, rec.Status).
		Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

// GetByID returns a recording by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	return scanRecording(r.pool.QueryRow(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = $1`, id))
}

// ListByOwner returns all recordings owned by ownerID, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Recording, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		var rec models.Recording
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Title, &rec.PrimaryPath, &rec.SecondaryPath,
			&rec.EditedPath, &rec.Duration, &rec.Status, &rec.ArchiveKey, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// TryStartProcessing flips the recording into processing unless a job is
// already in flight. The conditional UPDATE is the whole guard: rows-affected
// zero means either the recording is missing or it is already processing.
func (r *Repository) TryStartProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE recordings SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status <> $1`
	tag, err := r.pool.Exec(ctx, q, models.RecordingStatusProcessing, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FinishProcessing records the edited asset path and marks the recording ready.
func (r *Repository) FinishProcessing(ctx context.Context, id uuid.UUID, editedPath string) error {
	const q = `UPDATE recordings SET status = $1, edited_path = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, models.RecordingStatusReady, editedPath, id)
	return err
}

// FailProcessing marks the job failed. Any previously written edited asset
// stays in place.
func (r *Repository) FailProcessing(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE recordings SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, models.RecordingStatusFailed, id)
	return err
}

// SetArchiveKey records the object storage key of an archived edited asset.
func (r *Repository) SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error {
	const q = `UPDATE recordings SET archive_key = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, key, id)
	return err
}
