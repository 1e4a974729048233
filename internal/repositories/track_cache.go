package repositories

import (
	"fmt"

	"github.com/desertthunder/stemdeck/internal/models"
)

// TrackCacheAdapter implements tasks.TrackCacher using TrackRepository.
//
// Re-analyzed tracks overwrite their stored payload in place.
type TrackCacheAdapter struct {
	repo *TrackRepository
}

// NewTrackCacheAdapter creates a new TrackCacheAdapter with the given repository
func NewTrackCacheAdapter(repo *TrackRepository) *TrackCacheAdapter {
	return &TrackCacheAdapter{repo: repo}
}

// CacheTrack persists a completed track.
func (a *TrackCacheAdapter) CacheTrack(track *models.TrackRecord) error {
	if _, err := a.repo.Upsert(track); err != nil {
		return fmt.Errorf("failed to cache track: %w", err)
	}
	return nil
}
