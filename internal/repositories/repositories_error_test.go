package repositories

import (
	"errors"
	"testing"

	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/shared"
)

func TestRepositoryErrors(t *testing.T) {
	t.Run("ClosedDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		db.Close()

		repo := NewTrackRepository(db)
		if _, err := repo.Upsert(&models.TrackRecord{Meta: models.Meta{Filename: "a.mp3"}}); err == nil {
			t.Error("expected upsert error on closed database")
		}
		if _, err := repo.List(); err == nil {
			t.Error("expected list error on closed database")
		}
		if _, err := repo.Count(); err == nil {
			t.Error("expected count error on closed database")
		}
	})

	t.Run("CorruptPayload", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		_, err := db.Exec(`INSERT INTO tracks (id, sequence, filename, payload) VALUES ('x', 1, 'bad.mp3', 'not json')`)
		if err != nil {
			t.Fatalf("failed to seed corrupt row: %v", err)
		}

		repo := NewTrackRepository(db)
		if _, err := repo.Get("bad.mp3"); err == nil || errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected decode error, got %v", err)
		}
		if _, err := repo.List(); err == nil {
			t.Error("expected list to surface decode error")
		}
	})

	t.Run("RunMissingTarget", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		err := NewRunRepository(db).RecordRun(&models.AnalysisRun{Kind: models.RunAnalyze})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("RunNotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if _, err := NewRunRepository(db).Get("missing"); err == nil {
			t.Error("expected error for missing run")
		}
	})

	t.Run("NextSequence", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		for want := 1; want <= 3; want++ {
			got, err := NextSequence(db, "tracks")
			if err != nil {
				t.Fatalf("failed to get sequence: %v", err)
			}
			if got != want {
				t.Errorf("expected sequence %d, got %d", want, got)
			}
		}

		if _, err := NextSequence(db, "missing"); err == nil {
			t.Error("expected error for unknown sequence table")
		}
	})
}
