package recordings

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dualcast/backend/internal/auth"
	"github.com/dualcast/backend/internal/models"
	"github.com/dualcast/backend/pkg/response"
	"github.com/dualcast/backend/pkg/storage"
)

// DurationProber reports the duration of a media file in seconds.
type DurationProber interface {
	Probe(ctx context.Context, src string) (float64, error)
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	store   Store
	prober  DurationProber
	s3      *storage.S3 // optional: archived-asset downloads
	dataDir string
	logger  *zap.Logger
}

// NewHandler creates a recordings handler. s3 may be nil when archival is
// disabled.
func NewHandler(store Store, prober DurationProber, s3 *storage.S3, dataDir string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, prober: prober, s3: s3, dataDir: dataDir, logger: logger}
}

func callerID(c *gin.Context) uuid.UUID {
	return c.MustGet(auth.ContextUserID).(uuid.UUID)
}

// Upload handles POST /recordings: multipart body with two video parts
// (primary = screen, secondary = camera) and a title field.
func (h *Handler) Upload(c *gin.Context) {
	primary, err := c.FormFile("primary")
	if err != nil {
		response.BadRequest(c, "primary video part required")
		return
	}
	secondary, err := c.FormFile("secondary")
	if err != nil {
		response.BadRequest(c, "secondary video part required")
		return
	}
	title := c.PostForm("title")
	if title == "" {
		title = "Untitled Recording"
	}

	recID := uuid.New()
	dir := filepath.Join(h.dataDir, "raw", recID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.logger.Error("create recording dir failed", zap.Error(err), zap.String("dir", dir))
		response.Internal(c, "failed to store upload")
		return
	}

	primaryPath := filepath.Join(dir, "primary"+uploadExt(primary))
	secondaryPath := filepath.Join(dir, "secondary"+uploadExt(secondary))
	if err := c.SaveUploadedFile(primary, primaryPath); err != nil {
		h.logger.Error("save primary stream failed", zap.Error(err))
		response.Internal(c, "failed to store upload")
		return
	}
	if err := c.SaveUploadedFile(secondary, secondaryPath); err != nil {
		h.logger.Error("save secondary stream failed", zap.Error(err))
		response.Internal(c, "failed to store upload")
		return
	}

	var duration float64
	if h.prober != nil {
		if d, err := h.prober.Probe(c.Request.Context(), primaryPath); err != nil {
			h.logger.Warn("probe duration failed", zap.Error(err), zap.String("path", primaryPath))
		} else {
			duration = d
		}
	}

	rec := &models.Recording{
		ID:            recID,
		OwnerID:       callerID(c),
		Title:         title,
		PrimaryPath:   primaryPath,
		SecondaryPath: secondaryPath,
		Duration:      duration,
		Status:        models.RecordingStatusIdle,
	}
	if err := h.store.Create(c.Request.Context(), rec); err != nil {
		h.logger.Error("create recording failed", zap.Error(err))
		response.Internal(c, "failed to create recording")
		return
	}

	response.Created(c, gin.H{"recording_id": rec.ID})
}

func uploadExt(fh *multipart.FileHeader) string {
	if ext := filepath.Ext(fh.Filename); ext != "" {
		return ext
	}
	return ".webm"
}

// List handles GET /recordings: the caller's own recordings.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.ListByOwner(c.Request.Context(), callerID(c))
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err))
		response.Internal(c, "failed to list recordings")
		return
	}
	summaries := make([]models.RecordingSummary, 0, len(list))
	for i := range list {
		summaries = append(summaries, list[i].ToSummary())
	}
	response.OK(c, summaries)
}

// GetByID handles GET /recordings/:id.
func (h *Handler) GetByID(c *gin.Context) {
	rec, ok := h.ownedRecording(c)
	if !ok {
		return
	}
	response.OK(c, rec)
}

// Stream handles GET /recordings/:id/video/:variant with single-range
// byte-range support. Multi-range requests are served as full content.
func (h *Handler) Stream(c *gin.Context) {
	rec, ok := h.ownedRecording(c)
	if !ok {
		return
	}

	variant := c.Param("variant")
	switch variant {
	case models.VariantPrimary, models.VariantSecondary, models.VariantEdited:
	default:
		response.NotFound(c, "unknown variant")
		return
	}
	assetPath := rec.AssetPath(variant)
	if assetPath == "" {
		response.NotFound(c, "variant not available")
		return
	}

	f, err := os.Open(assetPath)
	if err != nil {
		h.logger.Warn("open asset failed", zap.Error(err), zap.String("path", assetPath))
		response.NotFound(c, "asset not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		response.Internal(c, "failed to stat asset")
		return
	}
	size := info.Size()

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Type", contentTypeForAsset(assetPath))

	rng, err := ParseRange(c.GetHeader("Range"), size)
	if err != nil {
		if err == ErrUnsatisfiableRange {
			response.RangeNotSatisfiable(c, size)
			return
		}
		// Absent, malformed or multi-range: full content.
		c.Header("Content-Length", strconv.FormatInt(size, 10))
		c.Status(http.StatusOK)
		_, _ = io.Copy(c.Writer, f)
		return
	}

	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		response.Internal(c, "failed to seek asset")
		return
	}
	c.Header("Content-Range", rng.ContentRange(size))
	c.Header("Content-Length", strconv.FormatInt(rng.Length(), 10))
	c.Status(http.StatusPartialContent)
	_, _ = io.CopyN(c.Writer, f, rng.Length())
}

// GenerateDownloadURL handles GET /recordings/:id/download-url: a presigned URL
// for the archived edited asset.
func (h *Handler) GenerateDownloadURL(c *gin.Context) {
	rec, ok := h.ownedRecording(c)
	if !ok {
		return
	}
	if h.s3 == nil {
		response.ServiceUnavailable(c, "archive storage not configured")
		return
	}
	if rec.ArchiveKey == "" {
		response.NotFound(c, "recording not archived")
		return
	}
	expire := h.s3.PresignExpire()
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), rec.ArchiveKey, expire)
	if err != nil {
		h.logger.Error("presign download failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(expire.Seconds())})
}

// ownedRecording resolves :id and enforces ownership. Writes the error
// response itself when the lookup fails.
func (h *Handler) ownedRecording(c *gin.Context) (*models.Recording, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return nil, false
	}
	rec, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if err == ErrNotFound {
			response.NotFound(c, "recording not found")
		} else {
			h.logger.Error("get recording failed", zap.Error(err), zap.String("recording_id", id.String()))
			response.Internal(c, "failed to load recording")
		}
		return nil, false
	}
	if rec.OwnerID != callerID(c) {
		response.Forbidden(c, "not your recording")
		return nil, false
	}
	return rec, true
}

func contentTypeForAsset(path string) string {
	switch filepath.Ext(path) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	}
	return "application/octet-stream"
}
