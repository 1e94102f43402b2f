package editor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dualcast/backend/internal/models"
	"github.com/dualcast/backend/internal/recordings"
	"github.com/dualcast/backend/internal/transcoder"
	"github.com/dualcast/backend/pkg/queue"
)

type fakeQueue struct {
	mu       sync.Mutex
	payloads []queue.TranscodePayload
	err      error
}

func (q *fakeQueue) EnqueueTranscode(_ context.Context, payload queue.TranscodePayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.payloads = append(q.payloads, payload)
	return nil
}

func (q *fakeQueue) enqueued() []queue.TranscodePayload {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.TranscodePayload(nil), q.payloads...)
}

type fakeTranscoder struct {
	mu         sync.Mutex
	concatSrcs [][]string
	concatErr  error
	output     []byte
}

func (f *fakeTranscoder) Transcode(context.Context, string, string, transcoder.Operation) error {
	return nil
}

func (f *fakeTranscoder) Concatenate(_ context.Context, srcs []string, dst string) error {
	f.mu.Lock()
	f.concatSrcs = append(f.concatSrcs, append([]string(nil), srcs...))
	f.mu.Unlock()
	if f.concatErr != nil {
		return f.concatErr
	}
	return os.WriteFile(dst, f.output, 0o644)
}

func (f *fakeTranscoder) Probe(context.Context, string) (float64, error) {
	return 0, errors.New("not implemented")
}

func newEditorFixture(t *testing.T) (*Service, *recordings.MemoryStore, *fakeQueue, *fakeTranscoder) {
	t.Helper()
	store := recordings.NewMemoryStore()
	q := &fakeQueue{}
	trans := &fakeTranscoder{output: []byte("merged-bytes")}
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "edited"), 0o755))
	svc := NewService(store, q, trans, dataDir, 5*time.Second, nil)
	return svc, store, q, trans
}

func seedRecording(t *testing.T, store recordings.Store, ownerID uuid.UUID, duration float64) *models.Recording {
	t.Helper()
	rec := &models.Recording{
		OwnerID:       ownerID,
		Title:         "Session",
		PrimaryPath:   "/data/raw/primary.webm",
		SecondaryPath: "/data/raw/secondary.webm",
		Duration:      duration,
		Status:        models.RecordingStatusIdle,
	}
	require.NoError(t, store.Create(context.Background(), rec))
	return rec
}

func f64(v float64) *float64 { return &v }

func TestRequestEditEnqueuesAndFlipsProcessing(t *testing.T) {
	svc, store, q, _ := newEditorFixture(t)
	owner := uuid.New()
	rec := seedRecording(t, store, owner, 120)

	err := svc.RequestEdit(context.Background(), owner, rec.ID, EditRequest{
		TrimStart: f64(10),
		TrimEnd:   f64(50),
		MuteAudio: true,
	})
	require.NoError(t, err)

	got, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusProcessing, got.Status)

	jobs := q.enqueued()
	require.Len(t, jobs, 1)
	assert.Equal(t, rec.ID, jobs[0].RecordingID)
	assert.Equal(t, rec.PrimaryPath, jobs[0].SourcePath)
	assert.True(t, strings.HasSuffix(jobs[0].OutputPath, ".mp4"))
	assert.Equal(t, 10.0, *jobs[0].TrimStart)
	assert.Equal(t, 50.0, *jobs[0].TrimEnd)
	assert.True(t, jobs[0].MuteAudio)
}

func TestRequestEditSecondarySource(t *testing.T) {
	svc, store, q, _ := newEditorFixture(t)
	owner := uuid.New()
	rec := seedRecording(t, store, owner, 120)

	err := svc.RequestEdit(context.Background(), owner, rec.ID, EditRequest{Source: models.VariantSecondary})
	require.NoError(t, err)

	jobs := q.enqueued()
	require.Len(t, jobs, 1)
	assert.Equal(t, rec.SecondaryPath, jobs[0].SourcePath)
}

func TestRequestEditConflictWhileProcessing(t *testing.T) {
	svc, store, q, _ := newEditorFixture(t)
	owner := uuid.New()
	rec := seedRecording(t, store, owner, 120)

	require.NoError(t, svc.RequestEdit(context.Background(), owner, rec.ID, EditRequest{}))

	err := svc.RequestEdit(context.Background(), owner, rec.ID, EditRequest{})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Len(t, q.enqueued(), 1)
}

func TestRequestEditConcurrentSingleJob(t *testing.T) {
	svc, store, q, _ := newEditorFixture(t)
	owner := uuid.New()
	rec := seedRecording(t, store, owner, 120)

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results <- svc.RequestEdit(context.Background(), owner, rec.ID, EditRequest{})
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrConflict)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, q.enqueued(), 1)
}

func TestRequestEditValidation(t *testing.T) {
	svc, store, _, _ := newEditorFixture(t)
	owner := uuid.New()
	rec := seedRecording(t, store, owner, 120)

	tests := []struct {
		name string
		req  EditRequest
		err  error
	}{
		{name: "edited is not a raw source", req: EditRequest{Source: models.VariantEdited}, err: ErrBadSource},
		{name: "unknown source", req: EditRequest{Source: "composite"}, err: ErrBadSource},
		{name: "inverted trim", req: EditRequest{TrimStart: f64(50), TrimEnd: f64(10)}, err: ErrInvalidTrimRange},
		{name: "empty trim", req: EditRequest{TrimStart: f64(10), TrimEnd: f64(10)}, err: ErrInvalidTrimRange},
		{name: "half-open trim", req: EditRequest{TrimStart: f64(10)}, err: ErrInvalidTrimRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.RequestEdit(context.Background(), owner, rec.ID, tt.req)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	// Rejections never consume the processing guard.
	got, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusIdle, got.Status)
}

func TestRequestEditClampsTrimToDuration(t *testing.T) {
	svc, store, q, _ := newEditorFixture(t)
	owner := uuid.New()
	rec := seedRecording(t, store, owner, 60)

	err := svc.RequestEdit(context.Background(), owner, rec.ID, EditRequest{
		TrimStart: f64(-5),
		TrimEnd:   f64(600),
	})
	require.NoError(t, err)

	jobs := q.enqueued()
	require.Len(t, jobs, 1)
	assert.Equal(t, 0.0, *jobs[0].TrimStart)
	assert.Equal(t, 60.0, *jobs[0].TrimEnd)
}

func TestRequestEditNotOwner(t *testing.T) {
	svc, store, q, _ := newEditorFixture(t)
	rec := seedRecording(t, store, uuid.New(), 120)

	err := svc.RequestEdit(context.Background(), uuid.New(), rec.ID, EditRequest{})
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Empty(t, q.enqueued())
}

func TestRequestEditUnknownRecording(t *testing.T) {
	svc, _, _, _ := newEditorFixture(t)

	err := svc.RequestEdit(context.Background(), uuid.New(), uuid.New(), EditRequest{})
	assert.ErrorIs(t, err, recordings.ErrNotFound)
}

func TestRequestEditEnqueueFailureReleasesGuard(t *testing.T) {
	svc, store, q, _ := newEditorFixture(t)
	owner := uuid.New()
	rec := seedRecording(t, store, owner, 120)

	q.err = errors.New("redis down")
	err := svc.RequestEdit(context.Background(), owner, rec.ID, EditRequest{})
	require.Error(t, err)

	got, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusFailed, got.Status)

	// The guard was released, a later attempt goes through.
	q.err = nil
	require.NoError(t, svc.RequestEdit(context.Background(), owner, rec.ID, EditRequest{}))
}

func TestMergeCreatesReadyRecording(t *testing.T) {
	svc, store, _, trans := newEditorFixture(t)
	owner := uuid.New()
	first := seedRecording(t, store, owner, 30)
	second := seedRecording(t, store, owner, 45)

	merged, err := svc.Merge(context.Background(), owner, []uuid.UUID{first.ID, second.ID}, "Combined")
	require.NoError(t, err)

	assert.Equal(t, "Combined", merged.Title)
	assert.Equal(t, owner, merged.OwnerID)
	assert.Equal(t, models.RecordingStatusReady, merged.Status)
	assert.Equal(t, 75.0, merged.Duration)

	// The published asset is complete and at its final path.
	data, err := os.ReadFile(merged.EditedPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("merged-bytes"), data)

	// Sources were concatenated in request order.
	require.Len(t, trans.concatSrcs, 1)
	assert.Equal(t, []string{first.PrimaryPath, second.PrimaryPath}, trans.concatSrcs[0])
}

func TestMergePrefersEditedAsset(t *testing.T) {
	svc, store, _, trans := newEditorFixture(t)
	owner := uuid.New()
	first := seedRecording(t, store, owner, 30)
	second := seedRecording(t, store, owner, 45)
	require.NoError(t, store.FinishProcessing(context.Background(), first.ID, "/data/edited/first.mp4"))

	_, err := svc.Merge(context.Background(), owner, []uuid.UUID{first.ID, second.ID}, "")
	require.NoError(t, err)

	require.Len(t, trans.concatSrcs, 1)
	assert.Equal(t, []string{"/data/edited/first.mp4", second.PrimaryPath}, trans.concatSrcs[0])
}

func TestMergeDefaultTitle(t *testing.T) {
	svc, store, _, _ := newEditorFixture(t)
	owner := uuid.New()
	first := seedRecording(t, store, owner, 30)
	second := seedRecording(t, store, owner, 45)

	merged, err := svc.Merge(context.Background(), owner, []uuid.UUID{first.ID, second.ID}, "")
	require.NoError(t, err)
	assert.Equal(t, "Merged Recording", merged.Title)
}

func TestMergeRequiresTwoRecordings(t *testing.T) {
	svc, store, _, _ := newEditorFixture(t)
	owner := uuid.New()
	rec := seedRecording(t, store, owner, 30)

	_, err := svc.Merge(context.Background(), owner, []uuid.UUID{rec.ID}, "")
	assert.ErrorIs(t, err, ErrTooFewRecordings)

	_, err = svc.Merge(context.Background(), owner, nil, "")
	assert.ErrorIs(t, err, ErrTooFewRecordings)
}

func TestMergeHidesForeignRecordings(t *testing.T) {
	svc, store, _, _ := newEditorFixture(t)
	owner := uuid.New()
	mine := seedRecording(t, store, owner, 30)
	theirs := seedRecording(t, store, uuid.New(), 45)

	_, err := svc.Merge(context.Background(), owner, []uuid.UUID{mine.ID, theirs.ID}, "")
	assert.ErrorIs(t, err, recordings.ErrNotFound)
}

func TestMergeTranscodeFailureLeavesNoRecording(t *testing.T) {
	svc, store, _, trans := newEditorFixture(t)
	owner := uuid.New()
	first := seedRecording(t, store, owner, 30)
	second := seedRecording(t, store, owner, 45)
	trans.concatErr = errors.New("boom")

	_, err := svc.Merge(context.Background(), owner, []uuid.UUID{first.ID, second.ID}, "")
	assert.ErrorIs(t, err, ErrTranscodeFailed)

	list, err := store.ListByOwner(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestGetStatusTransitions(t *testing.T) {
	svc, store, _, _ := newEditorFixture(t)
	owner := uuid.New()
	rec := seedRecording(t, store, owner, 120)

	status, err := svc.GetStatus(context.Background(), owner, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, Status{IsProcessing: false, HasEditedAsset: false}, status)

	require.NoError(t, svc.RequestEdit(context.Background(), owner, rec.ID, EditRequest{}))
	status, err = svc.GetStatus(context.Background(), owner, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, Status{IsProcessing: true, HasEditedAsset: false}, status)

	require.NoError(t, store.FinishProcessing(context.Background(), rec.ID, "/data/edited/out.mp4"))
	status, err = svc.GetStatus(context.Background(), owner, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, Status{IsProcessing: false, HasEditedAsset: true}, status)
}

func TestGetStatusNotOwner(t *testing.T) {
	svc, store, _, _ := newEditorFixture(t)
	rec := seedRecording(t, store, uuid.New(), 120)

	_, err := svc.GetStatus(context.Background(), uuid.New(), rec.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
}
