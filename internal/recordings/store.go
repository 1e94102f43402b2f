package recordings

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dualcast/backend/internal/models"
)

// ErrNotFound is returned when a recording does not exist.
var ErrNotFound = errors.New("recording not found")

// Store is the persistence contract for recordings. TryStartProcessing is the
// guard-and-set primitive: it must flip the status to processing only if no job
// is in flight, in one conditional operation, so two concurrent edit requests
// can never both start a job against the same output path.
type Store interface {
	Create(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Recording, error)

	// TryStartProcessing atomically transitions the recording into processing.
	// Returns false when a job is already in flight.
	TryStartProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	// FinishProcessing records the new edited asset and marks the recording ready.
	FinishProcessing(ctx context.Context, id uuid.UUID, editedPath string) error
	// FailProcessing marks the job failed, leaving any prior edited asset untouched.
	FailProcessing(ctx context.Context, id uuid.UUID) error

	SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error
}
