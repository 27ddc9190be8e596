package capture

import (
	"context"
	"sync"
	"time"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/clock"
)

// StillSource serves rasterized pages and still images. The current content
// is re-emitted at a low idle cadence so a peer joining mid-session still
// receives the page on the next resend, and immediately whenever the
// content changes (page turn, co-view navigation).
type StillSource struct {
	sourceID string
	kind     domain.SourceKind
	resend   time.Duration
	clk      clock.Clock

	mu       sync.Mutex
	payload  []byte
	sequence uint64
	lastSent time.Time
	dirty    bool
	closed   bool
}

// NewStillSource creates a source with the initial rendered content.
func NewStillSource(sourceID string, kind domain.SourceKind, payload []byte, resendEvery time.Duration, clk clock.Clock) *StillSource {
	return &StillSource{
		sourceID: sourceID,
		kind:     kind,
		resend:   resendEvery,
		clk:      clk,
		payload:  payload,
		dirty:    true,
	}
}

func (s *StillSource) SourceID() string        { return s.sourceID }
func (s *StillSource) Kind() domain.SourceKind { return s.kind }

// SetContent replaces the rendered content; the next tick emits it without
// waiting for the idle cadence.
func (s *StillSource) SetContent(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = payload
	s.dirty = true
}

// Next emits the current content when due, domain.ErrNoUnitReady otherwise.
func (s *StillSource) Next(ctx context.Context) (*domain.EncodedUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrEndOfStream
	}

	now := s.clk.Now()
	if !s.dirty && now.Sub(s.lastSent) < s.resend {
		return nil, domain.ErrNoUnitReady
	}

	s.dirty = false
	s.lastSent = now
	s.sequence++
	return &domain.EncodedUnit{
		Sequence:  s.sequence,
		Timestamp: now,
		Payload:   s.payload,
	}, nil
}

// Close marks the view closed; subsequent Next calls end the stream.
func (s *StillSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
