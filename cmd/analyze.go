package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/desertthunder/stemdeck/internal/formatter"
	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/shared"
	"github.com/desertthunder/stemdeck/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Analyze uploads one or more files and folds every stream into the library.
//
// Several files, or an explicit --workers, go through the batch worker pool.
func (r *Runner) Analyze(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("%w: at least one audio file", shared.ErrMissingArgument)
	}
	model, err := r.model(cmd)
	if err != nil {
		return err
	}
	engine, err := r.library()
	if err != nil {
		return err
	}
	asJSON := cmd.Bool("json")

	progressCh, wait := r.follow(!asJSON)

	if len(paths) == 1 && cmd.Int("workers") == 0 {
		r.logger.Info("starting analysis", "path", paths[0], "model", model)
		run, err := engine.Analyze(ctx, paths[0], model, progressCh)
		close(progressCh)
		wait()

		if asJSON {
			if jerr := r.writeJSON(run, true); jerr != nil {
				return jerr
			}
		}
		if err != nil {
			return err
		}
		return runError(run)
	}

	workers := cmd.Int("workers")
	if workers == 0 {
		workers = r.config.Watch.Workers
	}

	r.logger.Info("starting batch analysis", "files", len(paths), "model", model, "workers", workers)
	result, err := engine.BatchAnalyze(ctx, progressCh, paths, tasks.BatchOpts{
		Model:      model,
		NumWorkers: workers,
		RateLimit:  r.config.Watch.RateLimit,
	})
	close(progressCh)
	wait()
	if result == nil {
		return err
	}

	if asJSON {
		if jerr := r.writeJSON(result.Runs, true); jerr != nil {
			return jerr
		}
	} else {
		r.writePlain("\n")
		r.writePlainHeader("Batch Complete")
		r.writePlain("Files: %d\n", result.Total)
		r.writePlain("Succeeded: %d\n", result.Succeeded)
		r.writePlain("Failed: %d\n", result.Failed)
	}

	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%w: %d of %d file(s) failed", shared.ErrAnalysisRejected, result.Failed, result.Total)
	}
	return nil
}

// ReAnalyze asks the backend to process a stored file again, by default with the high fidelity model.
func (r *Runner) ReAnalyze(ctx context.Context, cmd *cli.Command) error {
	filename := cmd.StringArg("filename")
	if filename == "" {
		return fmt.Errorf("%w: filename", shared.ErrMissingArgument)
	}
	model, err := r.model(cmd)
	if err != nil {
		return err
	}
	engine, err := r.library()
	if err != nil {
		return err
	}
	asJSON := cmd.Bool("json")

	progressCh, wait := r.follow(!asJSON)
	run, err := engine.ReAnalyze(ctx, filename, model, progressCh)
	close(progressCh)
	wait()

	if asJSON {
		if jerr := r.writeJSON(run, true); jerr != nil {
			return jerr
		}
	}
	if err != nil {
		return err
	}
	return runError(run)
}

// Watch analyzes new audio files in a directory until interrupted.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.StringArg("dir")
	if dir == "" {
		return fmt.Errorf("%w: directory to watch", shared.ErrMissingArgument)
	}
	model, err := r.model(cmd)
	if err != nil {
		return err
	}
	engine, err := r.library()
	if err != nil {
		return err
	}

	watcher, err := tasks.NewWatcher(engine, tasks.WatchOpts{
		Dir:    dir,
		Model:  model,
		Accept: r.config.Watch.Accepts,
		Settle: cmd.Duration("settle"),
		Rate:   r.config.Watch.RateLimit,
	})
	if err != nil {
		return err
	}

	abs, _ := filepath.Abs(dir)
	r.writePlain("Watching %s for %v (ctrl+c to stop)\n\n", abs, r.config.Watch.Extensions)

	progressCh, wait := r.follow(true)
	err = watcher.Run(ctx, progressCh)
	close(progressCh)
	wait()
	return err
}

// follow drains progress updates on a goroutine, printing them when show is set.
// The returned func blocks until the channel is closed and drained.
func (r *Runner) follow(show bool) (chan tasks.ProgressUpdate, func()) {
	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range progressCh {
			if show {
				r.printUpdate(update)
			}
		}
	}()

	return progressCh, func() { <-done }
}

func (r *Runner) printUpdate(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.Upload:
		r.writePlain("📤 %s %s\n", update.Message, filepath.Base(update.Target))
	case tasks.Progress:
		if pct := update.Percent(); pct >= 0 {
			r.writePlain("   %s %3d%% %s\n", formatter.RenderBar(float64(pct), 20), pct, update.Message)
		} else {
			r.writePlain("   %s\n", update.Message)
		}
	case tasks.Complete:
		r.writePlain("✓ %s\n", update.Message)
	case tasks.ReportedError:
		r.writePlain("✗ %s\n", update.Message)
	case tasks.Skipped:
		r.writePlain("⚠ %s\n", update.Message)
	case tasks.Failed:
		r.writePlain("%s\n", update.Message)
	case tasks.Done:
		r.writePlain("   %s\n\n", update.Message)
	case tasks.Batch:
		r.writePlain("%s\n", update.Message)
	}
}

// runError turns backend-reported errors into a command failure.
func runError(run *models.AnalysisRun) error {
	if run == nil || len(run.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", shared.ErrAnalysisRejected, run.Errors[len(run.Errors)-1])
}
