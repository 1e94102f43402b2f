package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus represents the recording processing lifecycle.
const (
	RecordingStatusIdle       = "idle"
	RecordingStatusProcessing = "processing"
	RecordingStatusReady      = "ready"
	RecordingStatusFailed     = "failed"
)

// Recording variants addressable for playback.
const (
	VariantPrimary   = "primary"
	VariantSecondary = "secondary"
	VariantEdited    = "edited"
)

// Recording is a captured session: two raw streams (screen + camera) plus an
// optional derived (edited) asset.
type Recording struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	Title         string    `json:"title"`
	PrimaryPath   string    `json:"-"`
	SecondaryPath string    `json:"-"`
	EditedPath    string    `json:"-"`
	Duration      float64   `json:"duration"`
	Status        string    `json:"status"`
	ArchiveKey    string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AssetPath returns the on-disk path for a variant, or "" if the variant is unset.
func (r *Recording) AssetPath(variant string) string {
	switch variant {
	case VariantPrimary:
		return r.PrimaryPath
	case VariantSecondary:
		return r.SecondaryPath
	case VariantEdited:
		return r.EditedPath
	}
	return ""
}

// IsProcessing reports whether an edit job is in flight.
func (r *Recording) IsProcessing() bool { return r.Status == RecordingStatusProcessing }

// HasEditedAsset reports whether a derived asset exists.
func (r *Recording) HasEditedAsset() bool { return r.EditedPath != "" }

// RecordingSummary is the list-view projection of a Recording.
type RecordingSummary struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	Duration       float64   `json:"duration"`
	IsProcessing   bool      `json:"is_processing"`
	HasEditedAsset bool      `json:"has_edited_asset"`
}

// ToSummary converts a Recording to its list projection.
func (r *Recording) ToSummary() RecordingSummary {
	return RecordingSummary{
		ID:             r.ID,
		Title:          r.Title,
		CreatedAt:      r.CreatedAt,
		Duration:       r.Duration,
		IsProcessing:   r.IsProcessing(),
		HasEditedAsset: r.HasEditedAsset(),
	}
}
