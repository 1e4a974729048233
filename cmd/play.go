package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/stemdeck/internal/formatter"
	"github.com/desertthunder/stemdeck/internal/mixer"
	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/shared"
	"github.com/urfave/cli/v3"
)

const playStatusInterval = time.Second

// Play auditions a track through the synchronizer without the TUI.
//
// Playback stops when the main mix ends, when --for elapses, or on interrupt.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	track, err := r.storedTrack(cmd)
	if err != nil {
		return err
	}

	var solo []models.StemID
	seen := map[models.StemID]bool{}
	for _, name := range cmd.StringSlice("stems") {
		id, err := models.ParseStem(name)
		if err != nil {
			return fmt.Errorf("%w: %w", shared.ErrInvalidFlag, err)
		}
		if id != models.StemMain && !seen[id] {
			seen[id] = true
			solo = append(solo, id)
		}
	}

	if d := cmd.Duration("for"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	sync := r.newMixer()
	defer sync.Close()

	r.writePlain("Loading %s...\n", track.DisplayTitle())
	if err := sync.Open(ctx, mixer.TrackSources(track, r.api.AudioURL)); err != nil {
		return err
	}

	for _, id := range solo {
		if err := sync.SelectStem(id); err != nil {
			r.logger.Warn("stem not selectable", "stem", id, "error", err)
		}
	}
	if seek := cmd.Float("seek"); seek > 0 {
		if err := sync.Seek(seek); err != nil {
			return err
		}
	}
	if err := sync.Play(); err != nil {
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go sync.Run(runCtx)

	ticker := time.NewTicker(playStatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.writePlain("\n")
			return nil
		case <-ticker.C:
		}

		snap := sync.Snapshot()
		if snap.Fatal != nil {
			r.writePlain("\n")
			return snap.Fatal
		}
		r.writePlain("\r%s %s / %s  %v   ",
			snap.Transport,
			formatter.FormatSeconds(snap.Position),
			formatter.FormatSeconds(snap.Duration),
			snap.Audible(),
		)
		if snap.Transport == mixer.Idle {
			r.writePlainln("✓ Finished")
			return nil
		}
	}
}
