package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/shared"
	"github.com/urfave/cli/v3"
)

// AudioFetch downloads a track's main mix, and optionally its stems and MIDI files, into a directory.
func (r *Runner) AudioFetch(ctx context.Context, cmd *cli.Command) error {
	track, err := r.storedTrack(cmd)
	if err != nil {
		return err
	}

	dir := cmd.String("output")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	files := []string{track.Filename()}
	if cmd.Bool("stems") {
		for _, id := range models.Stems {
			if f := track.StemFile(id); f != "" {
				files = append(files, f)
			}
		}
	}
	if cmd.Bool("midi") {
		for _, id := range models.MidiStems {
			if f := track.MidiFiles[string(id)]; f != "" {
				files = append(files, f)
			}
		}
	}

	var failed int
	for _, name := range files {
		path := filepath.Join(dir, filepath.Base(name))
		n, err := r.download(ctx, name, path)
		if err != nil {
			failed++
			r.logger.Warn("download failed", "file", name, "error", err)
			r.writePlain("✗ %s: %v\n", name, err)
			continue
		}
		r.writePlain("✓ %s (%d bytes)\n", path, n)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d download(s) failed", failed, len(files))
	}
	return nil
}

func (r *Runner) download(ctx context.Context, filename, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	n, err := r.api.FetchAudio(ctx, filename, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}

// AudioOpen hands an asset URL to the system's default handler.
func (r *Runner) AudioOpen(ctx context.Context, cmd *cli.Command) error {
	track, err := r.storedTrack(cmd)
	if err != nil {
		return err
	}

	id := models.StemMain
	if name := cmd.String("stem"); name != "" {
		if id, err = models.ParseStem(name); err != nil {
			return fmt.Errorf("%w: %w", shared.ErrInvalidFlag, err)
		}
	}

	file := track.StemFile(id)
	if file == "" {
		return fmt.Errorf("%w: %s has no %s stem", shared.ErrStemUnavailable, track.Filename(), id)
	}

	url := r.api.AudioURL(file)
	r.logger.Info("opening audio", "url", url)
	if err := shared.OpenExternal(url); err != nil {
		return err
	}
	r.writePlain("Opened %s\n", url)
	return nil
}
