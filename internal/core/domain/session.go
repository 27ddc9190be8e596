package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string
type PeerID string
type TrackID string

// SourceKind identifies what kind of local content is being shared.
type SourceKind string

const (
	SourceVideo  SourceKind = "video"
	SourceRaster SourceKind = "raster"
	SourceImage  SourceKind = "image"
)

// QualityTier is the user-selected share quality. The tier is fixed for the
// lifetime of a session; changing it requires stopping and restarting the share.
type QualityTier string

const (
	TierLow    QualityTier = "low"
	TierMedium QualityTier = "medium"
	TierHigh   QualityTier = "high"
)

// StreamSession describes one active file share. At most one session may be
// active per local participant at a time.
type StreamSession struct {
	ID        SessionID   `json:"id"`
	SourceID  string      `json:"source_id"`
	Kind      SourceKind  `json:"kind"`
	Quality   QualityTier `json:"quality"`
	StartedAt time.Time   `json:"started_at"`
}

func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// EncodedUnit is one immutable, independently deliverable piece of the shared
// content: a video chunk, a rasterized page or a still image. Units are never
// mutated after creation, so the same unit is handed to every peer link
// without copying.
type EncodedUnit struct {
	Sequence  uint64
	Timestamp time.Time
	Payload   []byte
}

// Size returns the payload size in bytes.
func (u *EncodedUnit) Size() int {
	return len(u.Payload)
}
