package models

import (
	"encoding/json"
	"fmt"
)

// EventKind tags an [AnalysisEvent].
type EventKind int

const (
	EventProgress EventKind = iota
	EventComplete
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	default:
		return ""
	}
}

// AnalysisEvent is one line of the backend's NDJSON stream.
type AnalysisEvent struct {
	Kind    EventKind
	Message string       // Progress and Error
	Percent int          // Progress, -1 when the backend omitted it
	Track   *TrackRecord // Complete
}

type wireEvent struct {
	Type    string          `json:"type"`
	Message *string         `json:"message"`
	Percent *int            `json:"percent"`
	Data    json.RawMessage `json:"data"`
}

// ParseEvent decodes a single JSON-encoded event line.
//
// Invalid JSON, unknown types and missing required fields are all reported as errors.
func ParseEvent(line []byte) (AnalysisEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return AnalysisEvent{}, fmt.Errorf("invalid JSON: %w", err)
	}

	switch w.Type {
	case "progress":
		if w.Message == nil {
			return AnalysisEvent{}, fmt.Errorf("progress event missing message")
		}
		ev := AnalysisEvent{Kind: EventProgress, Message: *w.Message, Percent: -1}
		if w.Percent != nil {
			ev.Percent = *w.Percent
		}
		return ev, nil
	case "complete":
		if len(w.Data) == 0 || string(w.Data) == "null" {
			return AnalysisEvent{}, fmt.Errorf("complete event missing data")
		}
		track, err := ParseTrackRecord(w.Data)
		if err != nil {
			return AnalysisEvent{}, fmt.Errorf("complete event: %w", err)
		}
		return AnalysisEvent{Kind: EventComplete, Track: track}, nil
	case "error":
		if w.Message == nil {
			return AnalysisEvent{}, fmt.Errorf("error event missing message")
		}
		return AnalysisEvent{Kind: EventError, Message: *w.Message}, nil
	default:
		return AnalysisEvent{}, fmt.Errorf("unknown event type %q", w.Type)
	}
}

// ProgressLine encodes a progress event as an NDJSON line.
func ProgressLine(message string, percent int) []byte {
	b, _ := json.Marshal(map[string]any{"type": "progress", "message": message, "percent": percent})
	return append(b, '\n')
}

// ErrorLine encodes an error event as an NDJSON line.
func ErrorLine(message string) []byte {
	b, _ := json.Marshal(map[string]any{"type": "error", "message": message})
	return append(b, '\n')
}

// CompleteLine encodes a complete event wrapping the given track payload.
func CompleteLine(track []byte) []byte {
	b, _ := json.Marshal(map[string]any{"type": "complete", "data": json.RawMessage(track)})
	return append(b, '\n')
}
