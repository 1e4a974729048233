package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/stemdeck/internal/models"
)

var _ list.Item = trackItem{}

// trackItem wraps [models.TrackRecord] to implement [list.Item].
type trackItem struct {
	track *models.TrackRecord
}

func (i trackItem) FilterValue() string { return i.track.DisplayTitle() + " " + i.track.Meta.Artist }
func (i trackItem) Title() string       { return i.track.DisplayTitle() }
func (i trackItem) Description() string {
	parts := []string{fmt.Sprintf("%.0f BPM", i.track.BPM)}
	if i.track.Key != "" {
		parts = append(parts, i.track.Key)
	}
	if i.track.Meta.Artist != "" {
		parts = append(parts, i.track.Meta.Artist)
	}
	if i.track.Genre != "" {
		parts = append(parts, i.track.Genre)
	}
	return strings.Join(parts, " • ")
}

func trackItems(tracks []*models.TrackRecord) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{track: t}
	}
	return items
}
