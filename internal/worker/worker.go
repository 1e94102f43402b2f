package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"

	"github.com/dualcast/backend/internal/recordings"
	"github.com/dualcast/backend/internal/transcoder"
	"github.com/dualcast/backend/pkg/queue"
	"github.com/dualcast/backend/pkg/storage"
)

// TranscodeProcessor executes transcode jobs: run ffmpeg against the source,
// publish the output by atomic rename, record the outcome on the recording.
type TranscodeProcessor struct {
	store   recordings.Store
	trans   transcoder.Transcoder
	queue   *queue.Queue
	s3      *storage.S3 // optional: archive edited assets
	timeout time.Duration
	logger  *zap.Logger
}

// NewTranscodeProcessor creates a transcode job processor. s3 may be nil.
func NewTranscodeProcessor(store recordings.Store, trans transcoder.Transcoder, q *queue.Queue, s3 *storage.S3, timeout time.Duration, logger *zap.Logger) *TranscodeProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscodeProcessor{store: store, trans: trans, queue: q, s3: s3, timeout: timeout, logger: logger}
}

// Process executes one transcode job. A transcoder failure (including timeout)
// is recorded as a failed job on the recording and is not a queue error; only
// store failures are returned for retry.
func (p *TranscodeProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeTranscode {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.TranscodePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	pending, err := renameio.NewPendingFile(payload.OutputPath)
	if err != nil {
		return fmt.Errorf("create pending output: %w", err)
	}
	defer func() {
		// Removes the temp file when the job failed before commit.
		_ = pending.Cleanup()
	}()

	transcodeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	op := transcoder.Operation{
		TrimStart: payload.TrimStart,
		TrimEnd:   payload.TrimEnd,
		MuteAudio: payload.MuteAudio,
	}
	if err := p.trans.Transcode(transcodeCtx, payload.SourcePath, pending.Name(), op); err != nil {
		p.logger.Error("transcode failed", zap.Error(err), zap.String("recording_id", payload.RecordingID.String()))
		if failErr := p.store.FailProcessing(ctx, payload.RecordingID); failErr != nil {
			return fmt.Errorf("record job failure: %w", failErr)
		}
		return nil
	}

	// Publish: fsync + rename, so readers never see a partial asset.
	if err := pending.CloseAtomicallyReplace(); err != nil {
		p.logger.Error("publish output failed", zap.Error(err), zap.String("recording_id", payload.RecordingID.String()))
		if failErr := p.store.FailProcessing(ctx, payload.RecordingID); failErr != nil {
			return fmt.Errorf("record job failure: %w", failErr)
		}
		return nil
	}

	if err := p.store.FinishProcessing(ctx, payload.RecordingID, payload.OutputPath); err != nil {
		return fmt.Errorf("record job success: %w", err)
	}
	p.logger.Info("transcode completed", zap.String("recording_id", payload.RecordingID.String()), zap.String("output", payload.OutputPath))

	p.archive(ctx, payload)
	return nil
}

// archive uploads the edited asset to S3 when configured. Best effort: the
// local asset remains authoritative.
func (p *TranscodeProcessor) archive(ctx context.Context, payload queue.TranscodePayload) {
	if p.s3 == nil {
		return
	}
	rec, err := p.store.GetByID(ctx, payload.RecordingID)
	if err != nil {
		p.logger.Warn("archive lookup failed", zap.Error(err), zap.String("recording_id", payload.RecordingID.String()))
		return
	}
	key := storage.ArchiveKey(rec.OwnerID.String(), rec.ID.String())
	if err := p.s3.UploadFile(ctx, key, payload.OutputPath); err != nil {
		p.logger.Warn("archive upload failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		return
	}
	if err := p.store.SetArchiveKey(ctx, rec.ID, key); err != nil {
		p.logger.Warn("archive key update failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
	}
}

// Run starts the worker loop: dequeue, process, retry transient errors.
func (p *TranscodeProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("transcode worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("transcode worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
