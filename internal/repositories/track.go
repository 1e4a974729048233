package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/shared"
)

// StoredTrack is a persisted [models.TrackRecord] with its row metadata.
type StoredTrack struct {
	ID        string
	Sequence  int
	Track     *models.TrackRecord
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrackRepository persists the track library, one row per backend filename.
//
// The full payload is stored as received; title, artist, bpm and key are copied into
// columns for listing without decoding.
type TrackRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db, now: time.Now}
}

// Upsert stores track keyed by filename.
//
// A replaced record keeps its ID and sequence (its library position); a new record takes the next sequence.
func (r *TrackRepository) Upsert(track *models.TrackRecord) (*StoredTrack, error) {
	if err := track.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	payload, err := track.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode track: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := r.now()
	stored := &StoredTrack{Track: track, UpdatedAt: now}

	err = tx.QueryRow("SELECT id, sequence, created_at FROM tracks WHERE filename = ?", track.Filename()).
		Scan(&stored.ID, &stored.Sequence, &stored.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if stored.Sequence, err = nextSequence(tx, "tracks"); err != nil {
			return nil, fmt.Errorf("failed to generate sequence: %w", err)
		}
		stored.ID = shared.GenerateID()
		stored.CreatedAt = now

		_, err = tx.Exec(`
			INSERT INTO tracks (id, sequence, filename, title, artist, bpm, musical_key, payload, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, stored.ID, stored.Sequence, track.Filename(), track.Meta.Title, track.Meta.Artist,
			track.BPM, track.Key, string(payload), now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert track: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up track: %w", err)
	default:
		_, err = tx.Exec(`
			UPDATE tracks
			SET title = ?, artist = ?, bpm = ?, musical_key = ?, payload = ?, updated_at = ?
			WHERE id = ?
		`, track.Meta.Title, track.Meta.Artist, track.BPM, track.Key, string(payload), now, stored.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update track: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit track: %w", err)
	}
	return stored, nil
}

// Get retrieves a track by filename
func (r *TrackRepository) Get(filename string) (*StoredTrack, error) {
	row := r.db.QueryRow(`
		SELECT id, sequence, payload, created_at, updated_at
		FROM tracks
		WHERE filename = ?
	`, filename)

	stored, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, filename)
	}
	return stored, err
}

// List retrieves every track, newest first
func (r *TrackRepository) List() ([]*StoredTrack, error) {
	rows, err := r.db.Query(`
		SELECT id, sequence, payload, created_at, updated_at
		FROM tracks
		ORDER BY sequence DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*StoredTrack
	for rows.Next() {
		stored, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, stored)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

// Records returns the decoded records of [TrackRepository.List], for seeding a collection.
func (r *TrackRepository) Records() ([]*models.TrackRecord, error) {
	stored, err := r.List()
	if err != nil {
		return nil, err
	}
	records := make([]*models.TrackRecord, len(stored))
	for i, s := range stored {
		records[i] = s.Track
	}
	return records, nil
}

// Delete removes a track by filename
func (r *TrackRepository) Delete(filename string) error {
	result, err := r.db.Exec("DELETE FROM tracks WHERE filename = ?", filename)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, filename)
	}
	return nil
}

// Count returns the number of stored tracks
func (r *TrackRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM tracks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanTrack scans a row of (id, sequence, payload, created_at, updated_at) into a [StoredTrack]
func scanTrack(row scanner) (*StoredTrack, error) {
	var (
		stored  StoredTrack
		payload string
	)

	if err := row.Scan(&stored.ID, &stored.Sequence, &payload, &stored.CreatedAt, &stored.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	track, err := models.ParseTrackRecord([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored track %s: %w", stored.ID, err)
	}
	stored.Track = track
	return &stored, nil
}
