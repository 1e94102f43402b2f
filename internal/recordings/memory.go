package recordings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dualcast/backend/internal/models"
)

// MemoryStore is an in-memory Store with the same conditional-update semantics
// as the PostgreSQL repository. Used in tests and for running without a
// database.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*models.Recording
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[uuid.UUID]*models.Recording)}
}

var _ Store = (*MemoryStore)(nil)

// Create inserts a new recording, assigning an ID if unset.
func (m *MemoryStore) Create(_ context.Context, rec *models.Recording) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	cp := *rec
	m.recs[rec.ID] = &cp
	return nil
}

// GetByID returns a copy of the recording.
func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// ListByOwner returns the owner's recordings, newest first.
func (m *MemoryStore) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Recording
	for _, rec := range m.recs {
		if rec.OwnerID == ownerID {
			list = append(list, *rec)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// TryStartProcessing performs the guard-and-set under the store lock, matching
// the conditional UPDATE of the SQL repository.
func (m *MemoryStore) TryStartProcessing(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok || rec.Status == models.RecordingStatusProcessing {
		return false, nil
	}
	rec.Status = models.RecordingStatusProcessing
	rec.UpdatedAt = time.Now()
	return true, nil
}

// FinishProcessing records the edited asset and marks the recording ready.
func (m *MemoryStore) FinishProcessing(_ context.Context, id uuid.UUID, editedPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = models.RecordingStatusReady
	rec.EditedPath = editedPath
	rec.UpdatedAt = time.Now()
	return nil
}

// FailProcessing marks the job failed, keeping any prior edited asset.
func (m *MemoryStore) FailProcessing(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = models.RecordingStatusFailed
	rec.UpdatedAt = time.Now()
	return nil
}

// SetArchiveKey records the archive key.
func (m *MemoryStore) SetArchiveKey(_ context.Context, id uuid.UUID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return ErrNotFound
	}
	rec.ArchiveKey = key
	rec.UpdatedAt = time.Now()
	return nil
}
