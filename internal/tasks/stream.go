package tasks

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/shared"
)

const readChunkSize = 32 << 10

// EventStream decodes [models.AnalysisEvent] values from an NDJSON body.
//
// It is lazy and finite: each call to Next reads only as much of the body as it needs.
// Once Next returns an error (io.EOF at natural end) every later call returns the same error.
// A fresh stream owns a fresh [LineBuffer]; streams are never restarted.
type EventStream struct {
	r       io.Reader
	lines   LineBuffer
	pending [][]byte
	tail    []byte
	chunk   []byte
	err     error
	logger  *log.Logger

	// Malformed counts dropped lines.
	Malformed int
}

// NewEventStream wraps r. A nil logger discards diagnostics.
func NewEventStream(r io.Reader, logger *log.Logger) *EventStream {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &EventStream{r: r, chunk: make([]byte, readChunkSize), logger: logger}
}

// Next returns the next well-formed event.
//
// Malformed lines are logged and skipped. At natural end the unterminated remainder gets one
// best-effort parse whose failure is only logged, then io.EOF is returned. Any other read error
// is returned wrapped in [shared.ErrBackendUnreachable] once the complete lines read before it
// have been delivered.
func (s *EventStream) Next() (models.AnalysisEvent, error) {
	for {
		for len(s.pending) > 0 {
			line := s.pending[0]
			s.pending = s.pending[1:]
			if ev, ok := s.decode(line, false); ok {
				return ev, nil
			}
		}

		if s.tail != nil {
			tail := s.tail
			s.tail = nil
			if ev, ok := s.decode(tail, true); ok {
				return ev, nil
			}
		}

		if s.err != nil {
			return models.AnalysisEvent{}, s.err
		}

		n, err := s.r.Read(s.chunk)
		if n > 0 {
			s.pending = append(s.pending, s.lines.Feed(s.chunk[:n])...)
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			s.err = io.EOF
			s.tail = s.lines.Flush()
		default:
			s.err = fmt.Errorf("%w: %w", shared.ErrBackendUnreachable, err)
		}
	}
}

func (s *EventStream) decode(line []byte, final bool) (models.AnalysisEvent, bool) {
	if len(bytes.TrimSpace(line)) == 0 {
		return models.AnalysisEvent{}, false
	}

	ev, err := models.ParseEvent(line)
	if err != nil {
		s.Malformed++
		if final {
			s.logger.Debug("ignored unterminated trailing line", "error", err, "bytes", len(line))
		} else {
			s.logger.Warn("dropped malformed event", "error", fmt.Errorf("%w: %w", shared.ErrMalformedEvent, err))
		}
		return models.AnalysisEvent{}, false
	}
	return ev, true
}

// ReadAllEvents drains r and returns every well-formed event.
func ReadAllEvents(r io.Reader, logger *log.Logger) ([]models.AnalysisEvent, error) {
	s := NewEventStream(r, logger)
	var out []models.AnalysisEvent
	for {
		ev, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}
