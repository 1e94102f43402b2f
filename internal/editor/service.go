// Package editor drives the recording edit state machine: trim/mute jobs that
// run in the background and synchronous merges.
package editor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dualcast/backend/internal/models"
	"github.com/dualcast/backend/internal/recordings"
	"github.com/dualcast/backend/internal/transcoder"
	"github.com/dualcast/backend/pkg/queue"
)

var (
	// ErrConflict means an edit job is already in flight for the recording.
	// Requests are rejected fast, never queued behind the running job.
	ErrConflict = errors.New("recording is already processing")
	// ErrNotOwner means the caller does not own the recording.
	ErrNotOwner = errors.New("not the recording owner")
	// ErrBadSource means the requested source variant is not a raw stream.
	ErrBadSource = errors.New("source must be primary or secondary")
	// ErrInvalidTrimRange means the trim interval is empty or inverted.
	ErrInvalidTrimRange = errors.New("invalid trim range")
	// ErrTooFewRecordings means a merge needs at least two recordings.
	ErrTooFewRecordings = errors.New("at least two recordings required")
	// ErrTranscodeFailed wraps transcoder errors surfaced synchronously.
	ErrTranscodeFailed = errors.New("transcode failed")
)

// TranscodeQueue enqueues background transcode jobs.
type TranscodeQueue interface {
	EnqueueTranscode(ctx context.Context, payload queue.TranscodePayload) error
}

// EditRequest describes a trim/mute operation on one raw stream.
type EditRequest struct {
	Source    string   `json:"source"`
	TrimStart *float64 `json:"trim_start"`
	TrimEnd   *float64 `json:"trim_end"`
	MuteAudio bool     `json:"mute_audio"`
}

// Status is the poll result for an edit job.
type Status struct {
	IsProcessing   bool `json:"is_processing"`
	HasEditedAsset bool `json:"has_edited_asset"`
}

// Service orchestrates edit and merge jobs.
type Service struct {
	store        recordings.Store
	queue        TranscodeQueue
	trans        transcoder.Transcoder
	dataDir      string
	mergeTimeout time.Duration
	logger       *zap.Logger
}

// NewService creates an edit orchestrator. Trim/mute jobs go through the queue;
// merges run synchronously against the transcoder, bounded by mergeTimeout.
func NewService(store recordings.Store, q TranscodeQueue, trans transcoder.Transcoder, dataDir string, mergeTimeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		queue:        q,
		trans:        trans,
		dataDir:      dataDir,
		mergeTimeout: mergeTimeout,
		logger:       logger,
	}
}

// RequestEdit validates the request, atomically flips the recording into
// processing and enqueues the transcode. Returns ErrConflict when a job is
// already in flight. The caller observes completion via Status polling.
func (s *Service) RequestEdit(ctx context.Context, ownerID, recID uuid.UUID, req EditRequest) error {
	rec, err := s.store.GetByID(ctx, recID)
	if err != nil {
		return err
	}
	if rec.OwnerID != ownerID {
		return ErrNotOwner
	}

	if req.Source == "" {
		req.Source = models.VariantPrimary
	}
	if req.Source != models.VariantPrimary && req.Source != models.VariantSecondary {
		return ErrBadSource
	}
	if err := clampTrim(&req, rec.Duration); err != nil {
		return err
	}

	ok, err := s.store.TryStartProcessing(ctx, recID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}

	payload := queue.TranscodePayload{
		RecordingID: recID,
		SourcePath:  rec.AssetPath(req.Source),
		OutputPath:  filepath.Join(s.dataDir, "edited", "edited_"+uuid.New().String()+".mp4"),
		TrimStart:   req.TrimStart,
		TrimEnd:     req.TrimEnd,
		MuteAudio:   req.MuteAudio,
	}
	if err := s.queue.EnqueueTranscode(ctx, payload); err != nil {
		// The job never started; release the guard so the request is retryable.
		if failErr := s.store.FailProcessing(ctx, recID); failErr != nil {
			s.logger.Error("release processing guard failed", zap.Error(failErr), zap.String("recording_id", recID.String()))
		}
		return fmt.Errorf("enqueue transcode: %w", err)
	}
	return nil
}

// clampTrim bounds the interval to [0, duration] and rejects empty or inverted
// ranges before any transcoder work.
func clampTrim(req *EditRequest, duration float64) error {
	if req.TrimStart == nil && req.TrimEnd == nil {
		return nil
	}
	if req.TrimStart == nil || req.TrimEnd == nil {
		return ErrInvalidTrimRange
	}
	start, end := *req.TrimStart, *req.TrimEnd
	if start < 0 {
		start = 0
	}
	if duration > 0 {
		if start > duration {
			start = duration
		}
		if end > duration {
			end = duration
		}
	}
	if end <= start {
		return ErrInvalidTrimRange
	}
	req.TrimStart, req.TrimEnd = &start, &end
	return nil
}

// Merge concatenates the recordings in the order given and creates a new,
// ready recording for the result. Runs synchronously with a bounded timeout;
// on failure no recording is created and the partial output is discarded.
func (s *Service) Merge(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID, title string) (*models.Recording, error) {
	if len(ids) < 2 {
		return nil, ErrTooFewRecordings
	}

	srcs := make([]string, 0, len(ids))
	var duration float64
	for _, id := range ids {
		rec, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec.OwnerID != ownerID {
			// Not revealed as a permission error: an unowned id is simply not
			// found from the caller's point of view.
			return nil, recordings.ErrNotFound
		}
		src := rec.EditedPath
		if src == "" {
			src = rec.PrimaryPath
		}
		srcs = append(srcs, src)
		duration += rec.Duration
	}

	outPath := filepath.Join(s.dataDir, "edited", "merged_"+uuid.New().String()+".mp4")
	pending, err := renameio.NewPendingFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("create pending output: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	mergeCtx, cancel := context.WithTimeout(ctx, s.mergeTimeout)
	defer cancel()
	if err := s.trans.Concatenate(mergeCtx, srcs, pending.Name()); err != nil {
		s.logger.Error("merge transcode failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("publish merged output: %w", err)
	}

	if title == "" {
		title = "Merged Recording"
	}
	rec := &models.Recording{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		Title:         title,
		PrimaryPath:   outPath,
		SecondaryPath: outPath,
		EditedPath:    outPath,
		Duration:      duration,
		Status:        models.RecordingStatusReady,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create merged recording: %w", err)
	}
	return rec, nil
}

// GetStatus is a pure read of the job state, safe to poll.
func (s *Service) GetStatus(ctx context.Context, ownerID, recID uuid.UUID) (Status, error) {
	rec, err := s.store.GetByID(ctx, recID)
	if err != nil {
		return Status{}, err
	}
	if rec.OwnerID != ownerID {
		return Status{}, ErrNotOwner
	}
	return Status{
		IsProcessing:   rec.IsProcessing(),
		HasEditedAsset: rec.HasEditedAsset(),
	}, nil
}
