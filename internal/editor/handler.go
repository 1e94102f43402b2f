package editor

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dualcast/backend/internal/auth"
	"github.com/dualcast/backend/internal/recordings"
	"github.com/dualcast/backend/pkg/response"
)

// EditVideoRequest is the body for POST /edit-video.
type EditVideoRequest struct {
	RecordingID uuid.UUID   `json:"recording_id" binding:"required"`
	Operations  EditRequest `json:"operations"`
}

// MergeVideosRequest is the body for POST /merge-videos.
type MergeVideosRequest struct {
	RecordingIDs []uuid.UUID `json:"recording_ids" binding:"required"`
	Title        string      `json:"title"`
}

// Handler handles edit HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an editor handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func callerID(c *gin.Context) uuid.UUID {
	return c.MustGet(auth.ContextUserID).(uuid.UUID)
}

// EditVideo handles POST /edit-video. Responds 200 once the job has
// transitioned to processing; completion is observed via GET /edit-status.
func (h *Handler) EditVideo(c *gin.Context) {
	var req EditVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	err := h.svc.RequestEdit(c.Request.Context(), callerID(c), req.RecordingID, req.Operations)
	switch {
	case err == nil:
		response.OK(c, gin.H{"recording_id": req.RecordingID, "status": "processing"})
	case errors.Is(err, recordings.ErrNotFound):
		response.NotFound(c, "recording not found")
	case errors.Is(err, ErrNotOwner):
		response.Forbidden(c, "not your recording")
	case errors.Is(err, ErrConflict):
		response.Conflict(c, "an edit is already in progress")
	case errors.Is(err, ErrBadSource), errors.Is(err, ErrInvalidTrimRange):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("edit request failed", zap.Error(err), zap.String("recording_id", req.RecordingID.String()))
		response.Internal(c, "failed to start edit")
	}
}

// MergeVideos handles POST /merge-videos. The merge runs synchronously and
// returns the new recording's id.
func (h *Handler) MergeVideos(c *gin.Context) {
	var req MergeVideosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	rec, err := h.svc.Merge(c.Request.Context(), callerID(c), req.RecordingIDs, req.Title)
	switch {
	case err == nil:
		response.OK(c, gin.H{"recording_id": rec.ID})
	case errors.Is(err, ErrTooFewRecordings):
		response.BadRequest(c, err.Error())
	case errors.Is(err, recordings.ErrNotFound):
		response.NotFound(c, "some recordings not found")
	case errors.Is(err, ErrTranscodeFailed):
		response.ProcessingFailure(c, "video merging failed")
	default:
		h.logger.Error("merge failed", zap.Error(err))
		response.Internal(c, "failed to merge videos")
	}
}

// EditStatus handles GET /edit-status/:recordingId.
func (h *Handler) EditStatus(c *gin.Context) {
	recID, err := uuid.Parse(c.Param("recordingId"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}

	status, err := h.svc.GetStatus(c.Request.Context(), callerID(c), recID)
	switch {
	case err == nil:
		response.OK(c, status)
	case errors.Is(err, recordings.ErrNotFound):
		response.NotFound(c, "recording not found")
	case errors.Is(err, ErrNotOwner):
		response.Forbidden(c, "not your recording")
	default:
		h.logger.Error("edit status failed", zap.Error(err), zap.String("recording_id", recID.String()))
		response.Internal(c, "failed to load status")
	}
}
