package tasks

import (
	"sync"

	"github.com/desertthunder/stemdeck/internal/models"
)

// TrackCollection is the session library: newest first, at most one record per filename.
//
// Concurrent ingest invocations share one collection, so every method is safe for concurrent use.
// The last write for a filename wins.
type TrackCollection struct {
	mu     sync.RWMutex
	tracks []*models.TrackRecord
}

// NewTrackCollection creates a collection holding seed in the given (newest-first) order.
// Later duplicates of a filename are dropped.
func NewTrackCollection(seed ...*models.TrackRecord) *TrackCollection {
	c := &TrackCollection{}
	seen := make(map[string]bool, len(seed))
	for _, t := range seed {
		if t == nil || t.Validate() != nil || seen[t.Filename()] {
			continue
		}
		seen[t.Filename()] = true
		c.tracks = append(c.tracks, t)
	}
	return c
}

// Upsert replaces the record with the same filename in place, keeping length and order,
// or prepends a new one. It returns the record's index and whether it replaced an existing entry.
func (c *TrackCollection) Upsert(track *models.TrackRecord) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, t := range c.tracks {
		if t.Filename() == track.Filename() {
			c.tracks[i] = track
			return i, true
		}
	}

	c.tracks = append(c.tracks, nil)
	copy(c.tracks[1:], c.tracks)
	c.tracks[0] = track
	return 0, false
}

// Remove deletes the record for filename and reports whether it was present.
func (c *TrackCollection) Remove(filename string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, t := range c.tracks {
		if t.Filename() == filename {
			c.tracks = append(c.tracks[:i], c.tracks[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the record for filename.
func (c *TrackCollection) Get(filename string) (*models.TrackRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, t := range c.tracks {
		if t.Filename() == filename {
			return t, true
		}
	}
	return nil, false
}

// List returns a snapshot of the records, newest first.
func (c *TrackCollection) List() []*models.TrackRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*models.TrackRecord(nil), c.tracks...)
}

func (c *TrackCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tracks)
}
