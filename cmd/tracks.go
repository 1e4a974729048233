package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/desertthunder/stemdeck/internal/formatter"
	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/shared"
	"github.com/urfave/cli/v3"
)

// TracksList prints the library newest first.
func (r *Runner) TracksList(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.library(); err != nil {
		return err
	}
	stored, err := r.tracks.List()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		records := make([]json.RawMessage, 0, len(stored))
		for _, s := range stored {
			data, err := s.Track.Encode()
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", s.Track.Filename(), err)
			}
			records = append(records, data)
		}
		return r.writeJSON(records, false)
	}

	if len(stored) == 0 {
		r.writePlain("Library is empty. Run 'stemdeck analyze FILE' to add tracks.\n")
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("Library (%d tracks)", len(stored)))
	for _, s := range stored {
		t := s.Track
		r.writePlain("%3d. %-32s %6.1f BPM  %-4s %s\n", s.Sequence, t.Filename(), t.BPM, t.Key, t.DisplayTitle())
	}
	return nil
}

// TracksShow prints one track's analysis.
func (r *Runner) TracksShow(ctx context.Context, cmd *cli.Command) error {
	track, err := r.storedTrack(cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if !cmd.Bool("pretty") {
			data, err := track.Encode()
			if err != nil {
				return err
			}
			return r.writePlain("%s\n", data)
		}
		data, err := formatter.ToMetadataJSON(track)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	}

	text, err := formatter.ExportToText(track)
	if err != nil {
		return err
	}
	return r.writePlain("%s", text)
}

// TracksCues lists cue points with their times.
func (r *Runner) TracksCues(ctx context.Context, cmd *cli.Command) error {
	track, err := r.storedTrack(cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("csv") {
		data, err := formatter.ExportCuesCSV(track)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	}

	if len(track.Cues) == 0 {
		r.writePlain("No cues for %s\n", track.Filename())
		return nil
	}
	for _, c := range track.Cues {
		kind := string(c.Type)
		if kind == "" {
			kind = string(models.CuePoint)
		}
		r.writePlain("%-13s %-6s %s\n", formatter.FormatCueTime(c), kind, c.Label)
	}
	return nil
}

// TracksExport writes a track sheet in the requested format.
func (r *Runner) TracksExport(ctx context.Context, cmd *cli.Command) error {
	track, err := r.storedTrack(cmd)
	if err != nil {
		return err
	}

	out := cmd.String("output")
	stem := strings.TrimSuffix(track.Filename(), filepath.Ext(track.Filename()))
	format := strings.ToLower(cmd.String("format"))

	switch format {
	case "markdown", "md":
		result, err := formatter.WriteMarkdownExport(track, filepath.Join(out, stem))
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %s to %s\n", track.Filename(), result.Directory)
		for _, f := range result.Files {
			r.writePlain("  %s\n", f)
		}
	case "csv":
		result, err := formatter.WriteCSVExport(track, filepath.Join(out, stem))
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %s\n  %s\n  %s\n", track.Filename(), result.CuesFile, result.MetadataFile)
	case "txt", "text":
		path, err := formatter.WriteTextExport(track, filepath.Join(out, stem+".txt"))
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %s to %s\n", track.Filename(), path)
	default:
		return fmt.Errorf("%w: format %q (must be txt, markdown, or csv)", shared.ErrInvalidFlag, format)
	}

	r.logger.Info("track exported", "filename", track.Filename(), "format", format)
	return nil
}

// TracksDelete removes a track from the library. Backend assets are untouched.
func (r *Runner) TracksDelete(ctx context.Context, cmd *cli.Command) error {
	filename := cmd.StringArg("filename")
	if filename == "" {
		return fmt.Errorf("%w: filename", shared.ErrMissingArgument)
	}
	engine, err := r.library()
	if err != nil {
		return err
	}

	if err := r.tracks.Delete(filename); err != nil {
		return notFound(filename, err)
	}
	engine.Tracks().Remove(filename)

	r.logger.Info("track deleted", "filename", filename)
	r.writePlain("✓ Removed %s\n", filename)
	return nil
}

func (r *Runner) storedTrack(cmd *cli.Command) (*models.TrackRecord, error) {
	filename := cmd.StringArg("filename")
	if filename == "" {
		return nil, fmt.Errorf("%w: filename", shared.ErrMissingArgument)
	}
	if _, err := r.library(); err != nil {
		return nil, err
	}
	stored, err := r.tracks.Get(filename)
	if err != nil {
		return nil, notFound(filename, err)
	}
	return stored.Track, nil
}
