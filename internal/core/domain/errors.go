package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionActive        = errors.New("a stream session is already active")
	ErrNoActiveSession      = errors.New("no active stream session")
	ErrSessionNotFound      = errors.New("session not found")
	ErrPeerNotFound         = errors.New("peer not found")
	ErrEndOfStream          = errors.New("end of stream")
	ErrNoUnitReady          = errors.New("no unit ready")
	ErrBackpressureRejected = errors.New("send rejected: congestion window full")
	ErrTransportClosed      = errors.New("transport closed")
)

// SourceError is fatal to the whole session: the shared file became
// unreadable or was closed underneath the capture source.
type SourceError struct {
	SourceID string
	Cause    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s failed: %v", e.SourceID, e.Cause)
}

func (e *SourceError) Unwrap() error { return e.Cause }

// PeerLinkError is local to one peer: its transport closed or failed. The
// link is removed, other peers and the session are unaffected.
type PeerLinkError struct {
	PeerID PeerID
	Cause  error
}

func (e *PeerLinkError) Error() string {
	return fmt.Sprintf("peer link %s failed: %v", e.PeerID, e.Cause)
}

func (e *PeerLinkError) Unwrap() error { return e.Cause }
