package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/clock"
)

// VideoFileSource turns a local media file into a sequence of encoded
// units. Chunk boundaries follow the recorder's blob cadence; the payload is
// opaque to this layer, codec work belongs to the platform media stack.
type VideoFileSource struct {
	sourceID   string
	file       *os.File
	chunkBytes int
	clk        clock.Clock
	logger     *zap.SugaredLogger

	sequence uint64
	eof      bool
}

// NewVideoFileSource opens a local file for streaming. chunkBytes comes from
// the device strategy and must match the unit size the peer links were
// configured with.
func NewVideoFileSource(path string, chunkBytes int, clk clock.Clock, logger *zap.SugaredLogger) (*VideoFileSource, error) {
	if chunkBytes <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", chunkBytes)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	return &VideoFileSource{
		sourceID:   path,
		file:       f,
		chunkBytes: chunkBytes,
		clk:        clk,
		logger:     logger,
	}, nil
}

func (s *VideoFileSource) SourceID() string        { return s.sourceID }
func (s *VideoFileSource) Kind() domain.SourceKind { return domain.SourceVideo }

// Next reads one chunk. Returns domain.ErrEndOfStream once the file is
// exhausted and a *domain.SourceError if it became unreadable mid-stream.
func (s *VideoFileSource) Next(ctx context.Context) (*domain.EncodedUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.eof {
		return nil, domain.ErrEndOfStream
	}

	buf := make([]byte, s.chunkBytes)
	n, err := s.file.Read(buf)
	if n > 0 {
		if errors.Is(err, io.EOF) {
			s.eof = true
		}
		s.sequence++
		return &domain.EncodedUnit{
			Sequence:  s.sequence,
			Timestamp: s.clk.Now(),
			Payload:   buf[:n],
		}, nil
	}
	if errors.Is(err, io.EOF) {
		s.eof = true
		return nil, domain.ErrEndOfStream
	}
	s.eof = true
	return nil, &domain.SourceError{SourceID: s.sourceID, Cause: err}
}

func (s *VideoFileSource) Close() error {
	return s.file.Close()
}
