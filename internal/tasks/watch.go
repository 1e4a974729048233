package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemdeck/internal/shared"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// WatchOpts configures a [Watcher].
type WatchOpts struct {
	Dir    string
	Model  string
	Accept func(name string) bool // defaults to accepting every file
	Settle time.Duration          // quiet period before a written file counts as complete (default: 2s)
	Rate   float64                // analysis starts per second (default: 1)
}

// Watcher analyzes audio files as they appear in a drop folder.
type Watcher struct {
	engine *IngestEngine
	opts   WatchOpts
	logger *log.Logger
	seen   map[string]time.Time
}

// NewWatcher creates a watcher feeding engine.
func NewWatcher(engine *IngestEngine, opts WatchOpts) (*Watcher, error) {
	if err := shared.ValidateModel(opts.Model); err != nil {
		return nil, err
	}
	info, err := os.Stat(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", shared.ErrInvalidArgument, opts.Dir)
	}
	if opts.Accept == nil {
		opts.Accept = func(string) bool { return true }
	}
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}
	if opts.Rate <= 0 {
		opts.Rate = 1
	}

	return &Watcher{
		engine: engine,
		opts:   opts,
		logger: shared.WithLogger(engine.logger, "component", "watch", "dir", opts.Dir),
		seen:   make(map[string]time.Time),
	}, nil
}

// Run watches until ctx ends. Files are analyzed one at a time after they stop changing
// for the settle period; a file is analyzed again only when its modification time changes.
func (w *Watcher) Run(ctx context.Context, prog chan<- ProgressUpdate) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.opts.Dir); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	w.logger.Info("watching for audio files")

	limiter := rate.NewLimiter(rate.Limit(w.opts.Rate), 1)
	pending := make(map[string]time.Time)
	tick := time.NewTicker(w.opts.Settle / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !w.opts.Accept(filepath.Base(event.Name)) {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-tick.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < w.opts.Settle {
					continue
				}
				delete(pending, path)

				if !w.shouldAnalyze(path) {
					continue
				}
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				if _, err := w.engine.Analyze(ctx, path, w.opts.Model, prog); err != nil {
					w.logger.Warn("analysis failed", "path", path, "error", err)
				}
			}
		}
	}
}

// shouldAnalyze reports whether path is a regular file not yet analyzed at its current modification time.
func (w *Watcher) shouldAnalyze(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return false
	}
	if prev, ok := w.seen[path]; ok && prev.Equal(info.ModTime()) {
		return false
	}
	w.seen[path] = info.ModTime()
	return true
}
