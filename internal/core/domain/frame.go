package domain

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Media frame wire format: 8-byte big-endian sequence number, 8-byte
// big-endian unix-nano timestamp, then the opaque encoded payload. Receivers
// ack the sequence number on the control channel.
const frameHeaderLen = 16

// MarshalUnit encodes a unit into its media frame.
func MarshalUnit(u *EncodedUnit) []byte {
	buf := make([]byte, frameHeaderLen+len(u.Payload))
	binary.BigEndian.PutUint64(buf[0:8], u.Sequence)
	binary.BigEndian.PutUint64(buf[8:16], uint64(u.Timestamp.UnixNano()))
	copy(buf[frameHeaderLen:], u.Payload)
	return buf
}

// UnmarshalUnit decodes a media frame. The payload aliases the input buffer.
func UnmarshalUnit(data []byte) (*EncodedUnit, error) {
	if len(data) < frameHeaderLen {
		return nil, fmt.Errorf("media frame too short: %d bytes", len(data))
	}
	return &EncodedUnit{
		Sequence:  binary.BigEndian.Uint64(data[0:8]),
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(data[8:16]))),
		Payload:   data[frameHeaderLen:],
	}, nil
}
