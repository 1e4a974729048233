package mixer

import (
	"context"
	"fmt"

	"github.com/desertthunder/stemdeck/internal/models"
)

// Channel is one playable audio handle. Positions are seconds.
//
// Implementations report asynchronous state through the notify func handed
// to their [ChannelFactory]; method calls never block on those notifications.
type Channel interface {
	Load(ctx context.Context, url string, loop bool) error
	Play() error
	Pause() error
	Position() (float64, error)
	Seek(seconds float64) error
	// SetVolume takes a level in [0, 1].
	SetVolume(level float64) error
	Close() error
}

// ChannelFactory creates a channel for one stem. notify may be called from any goroutine.
type ChannelFactory func(id models.StemID, notify func(ChannelEvent)) (Channel, error)

// EventKind names a channel notification.
type EventKind int

const (
	TimeUpdate EventKind = iota
	DurationKnown
	Ended
	Error
)

func (k EventKind) String() string {
	switch k {
	case TimeUpdate:
		return "time-update"
	case DurationKnown:
		return "duration"
	case Ended:
		return "ended"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// ChannelEvent is a notification from one channel.
type ChannelEvent struct {
	Stem  models.StemID
	Kind  EventKind
	Value float64 // position for TimeUpdate, seconds for DurationKnown
	Err   error
}

// Sources maps each stem to its playable URL. Empty URLs are absent stems.
type Sources map[models.StemID]string

// TrackSources resolves the audio URLs of track through url, skipping absent stems.
func TrackSources(track *models.TrackRecord, url func(filename string) string) Sources {
	sources := Sources{}
	for _, id := range append([]models.StemID{models.StemMain}, models.Stems...) {
		if f := track.StemFile(id); f != "" {
			sources[id] = url(f)
		}
	}
	return sources
}
