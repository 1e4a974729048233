// package tasks implements the ingest side of stemdeck: turning backend NDJSON streams into library state.
package tasks

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/services"
	"github.com/desertthunder/stemdeck/internal/shared"
)

// TrackCacher persists tracks folded into the collection.
type TrackCacher interface {
	CacheTrack(track *models.TrackRecord) error
}

// RunRecorder persists invocation summaries.
type RunRecorder interface {
	RecordRun(run *models.AnalysisRun) error
}

// IngestEngine runs analyze and re-analyze invocations against the backend.
//
// Each invocation owns its own read loop and [EventStream]; invocations share only the
// [TrackCollection] and the [StatusLine].
type IngestEngine struct {
	api    services.Analyzer
	tracks *TrackCollection
	status *StatusLine
	cacher TrackCacher
	runs   RunRecorder
	logger *log.Logger
	now    func() time.Time
}

// EngineOpts contains dependencies for [NewIngestEngine]. Only API is required.
type EngineOpts struct {
	API    services.Analyzer
	Tracks *TrackCollection
	Status *StatusLine
	Cacher TrackCacher
	Runs   RunRecorder
	Logger *log.Logger
}

// NewIngestEngine creates an engine, allocating an empty collection and status line when none are given.
func NewIngestEngine(opts EngineOpts) *IngestEngine {
	if opts.Tracks == nil {
		opts.Tracks = NewTrackCollection()
	}
	if opts.Status == nil {
		opts.Status = &StatusLine{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &IngestEngine{
		api:    opts.API,
		tracks: opts.Tracks,
		status: opts.Status,
		cacher: opts.Cacher,
		runs:   opts.Runs,
		logger: shared.WithLogger(opts.Logger, "component", "ingest"),
		now:    time.Now,
	}
}

func (e *IngestEngine) Tracks() *TrackCollection { return e.tracks }
func (e *IngestEngine) Status() *StatusLine      { return e.status }

// sendProgress sends a progress update through the channel without blocking.
func (e *IngestEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Analyze uploads the file at path and folds the resulting stream.
//
// The returned run is never nil. A transport failure aborts only this invocation and is
// returned wrapped in [shared.ErrBackendUnreachable]; status cleanup always runs.
func (e *IngestEngine) Analyze(ctx context.Context, path, model string, progress chan<- ProgressUpdate) (*models.AnalysisRun, error) {
	run, finish := e.begin(models.RunAnalyze, path, model, progress)
	defer finish()

	e.sendProgress(progress, uploadUpdate(path, model))
	body, err := e.api.Analyze(ctx, path, model)
	if err != nil {
		return run, e.fail(ctx, run, progress, err)
	}
	defer body.Close()

	return run, e.consume(ctx, body, run, progress)
}

// ReAnalyze asks the backend to analyze filename again with model and folds the resulting stream.
func (e *IngestEngine) ReAnalyze(ctx context.Context, filename, model string, progress chan<- ProgressUpdate) (*models.AnalysisRun, error) {
	run, finish := e.begin(models.RunReAnalyze, filename, model, progress)
	defer finish()

	body, err := e.api.ReAnalyze(ctx, filename, model)
	if err != nil {
		return run, e.fail(ctx, run, progress, err)
	}
	defer body.Close()

	return run, e.consume(ctx, body, run, progress)
}

// Consume folds an already-open NDJSON body, e.g. a recorded stream, with the same
// status lifecycle as Analyze.
func (e *IngestEngine) Consume(ctx context.Context, body io.Reader, progress chan<- ProgressUpdate) (*models.AnalysisRun, error) {
	run, finish := e.begin(models.RunAnalyze, "stream", "", progress)
	defer finish()
	return run, e.consume(ctx, body, run, progress)
}

// begin starts an invocation. The returned func must be deferred: it clears the status,
// records the run and reports Done.
func (e *IngestEngine) begin(kind models.RunKind, target, model string, progress chan<- ProgressUpdate) (*models.AnalysisRun, func()) {
	run := &models.AnalysisRun{
		ID:        shared.GenerateID(),
		Kind:      kind,
		Target:    target,
		Model:     model,
		Completed: []string{},
		StartedAt: e.now(),
	}
	e.status.Begin(ScanStartMessage)
	e.logger.Info("analysis started", "kind", kind, "target", target, "model", model)

	return run, func() {
		e.status.End()
		run.FinishedAt = e.now()
		if e.runs != nil {
			if err := e.runs.RecordRun(run); err != nil {
				e.logger.Warn("failed to record run", "id", run.ID, "error", err)
			}
		}
		e.logger.Info("analysis finished", "target", target, "completed", len(run.Completed),
			"errors", len(run.Errors), "skipped", run.Skipped, "duration", run.Duration())
		e.sendProgress(progress, doneUpdate(run))
	}
}

func (e *IngestEngine) fail(ctx context.Context, run *models.AnalysisRun, progress chan<- ProgressUpdate, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, shared.ErrAnalysisRejected) {
		err = ctxErr
		e.logger.Info("analysis canceled", "target", run.Target)
	} else {
		e.logger.Error("analysis aborted", "target", run.Target, "error", err)
	}
	run.Failure = err.Error()
	e.sendProgress(progress, failedUpdate(run.Target, err))
	return err
}

// consume reads events until the stream ends, folding each into the collection and status.
func (e *IngestEngine) consume(ctx context.Context, body io.Reader, run *models.AnalysisRun, progress chan<- ProgressUpdate) error {
	if c, ok := body.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	stream := NewEventStream(body, shared.WithLogger(e.logger, "target", run.Target))
	defer func() {
		run.Skipped = stream.Malformed
		if stream.Malformed > 0 {
			e.sendProgress(progress, skippedUpdate(run.Target, stream.Malformed))
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return e.fail(ctx, run, progress, err)
		}

		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return e.fail(ctx, run, progress, err)
		}

		e.fold(ev, run, progress)
	}
}

func (e *IngestEngine) fold(ev models.AnalysisEvent, run *models.AnalysisRun, progress chan<- ProgressUpdate) {
	switch ev.Kind {
	case models.EventProgress:
		e.status.Set(ev.Message, ev.Percent)
		e.logger.Debug("progress", "message", ev.Message, "percent", ev.Percent)
		e.sendProgress(progress, eventProgressUpdate(run.Target, ev.Message, ev.Percent))

	case models.EventComplete:
		idx, replaced := e.tracks.Upsert(ev.Track)
		run.Completed = append(run.Completed, ev.Track.Filename())
		if e.cacher != nil {
			if err := e.cacher.CacheTrack(ev.Track); err != nil {
				e.logger.Warn("failed to persist track", "filename", ev.Track.Filename(), "error", err)
			}
		}
		e.logger.Info("track ready", "filename", ev.Track.Filename(), "bpm", ev.Track.BPM, "replaced", replaced)
		e.sendProgress(progress, completeUpdate(run.Target, CompletedTrack{Track: ev.Track, Index: idx, Replaced: replaced}))

	case models.EventError:
		run.Errors = append(run.Errors, ev.Message)
		e.logger.Error("backend reported error", "target", run.Target, "message", ev.Message)
		e.sendProgress(progress, reportedErrorUpdate(run.Target, ev.Message))
	}
}
