package domain

import "time"

// EventKind classifies outbound session events. The UI (or any other
// consumer) subscribes to a single event stream instead of wiring ad-hoc
// callbacks per concern.
type EventKind string

const (
	EventSessionStarted   EventKind = "session.started"
	EventSessionEnded     EventKind = "session.ended"
	EventPeerJoined       EventKind = "peer.joined"
	EventPeerDropped      EventKind = "peer.dropped"
	EventQualityDegraded  EventKind = "quality.degraded"
	EventQualityRecovered EventKind = "quality.recovered"
	EventSourceEnded      EventKind = "source.ended"
)

// SessionEvent is one entry on the outbound event stream.
type SessionEvent struct {
	Kind      EventKind `json:"kind"`
	SessionID SessionID `json:"session_id"`
	PeerID    PeerID    `json:"peer_id,omitempty"`
	Err       error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}
