package domain

import (
	"encoding/json"
	"fmt"
)

// Envelope is the control-plane wire format shared with the browser client.
// Control messages travel on a reliable ordered channel, separate from the
// lossy media fan-out.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Control message types. The string values are a fixed wire contract.
const (
	TypePlaylistNav    = "ponscast"
	TypeSubtitleRemote = "subtitle-remote-enable"
	TypeUnitAck        = "unit-ack"
	TypeHeartbeat      = "heartbeat"
	TypeHeartbeatReply = "heartbeat-reply"
)

// Playlist navigation actions.
const (
	NavNext = "next"
	NavPrev = "prev"
	NavJump = "jump"
)

// PlaylistNav drives co-viewing navigation across the peer group.
type PlaylistNav struct {
	Action string `json:"action"`
	Index  *int   `json:"index,omitempty"`
}

// SubtitleRemote toggles a subtitle track remotely for all viewers.
type SubtitleRemote struct {
	TrackID string `json:"trackId"`
	Enabled bool   `json:"enabled"`
}

// UnitAck acknowledges receipt of one media unit, carrying the sequence
// number the RTT estimator keys on.
type UnitAck struct {
	Sequence uint64 `json:"sequence"`
}

// Heartbeat probes liveness and RTT on transports without native acks.
type Heartbeat struct {
	SentAtUnixNano int64 `json:"sentAt"`
}

// NewEnvelope marshals payload into a typed envelope.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}

// DecodePayload unmarshals the envelope payload into out, checking the type tag.
func (e Envelope) DecodePayload(expectType string, out any) error {
	if e.Type != expectType {
		return fmt.Errorf("unexpected control message type %q, want %q", e.Type, expectType)
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}
