package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/shared"
	"golang.org/x/time/rate"
)

// BatchOpts contains configuration for analyzing many files.
type BatchOpts struct {
	Model      string  // Separation model for every file
	NumWorkers int     // Concurrent uploads (default: 2, max: 8)
	RateLimit  float64 // Upload starts per second (default: 1)
}

// BatchResult summarizes a [IngestEngine.BatchAnalyze] call.
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
	Runs      []*models.AnalysisRun // in completion order
}

type batchJob struct {
	path string
}

type batchOutcome struct {
	run *models.AnalysisRun
	err error
}

// BatchAnalyze analyzes paths concurrently with a worker pool, pacing upload starts with a rate limiter.
//
// Failures are per file. The error return is reserved for invalid options and context cancellation.
func (e *IngestEngine) BatchAnalyze(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	paths []string,
	opts BatchOpts,
) (*BatchResult, error) {
	if err := shared.ValidateModel(opts.Model); err != nil {
		return nil, err
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 2
	}
	if opts.NumWorkers > 8 {
		opts.NumWorkers = 8
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1.0
	}

	result := &BatchResult{Total: len(paths), Runs: make([]*models.AnalysisRun, 0, len(paths))}
	if len(paths) == 0 {
		return result, nil
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan batchJob)
	outcomes := make(chan batchOutcome, len(paths))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.batchWorker(ctx, &wg, jobs, outcomes, opts.Model, prog)
	}

	go func() {
		defer close(jobs)
		for _, path := range paths {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			select {
			case jobs <- batchJob{path: path}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	completed := 0
	for out := range outcomes {
		completed++
		result.Runs = append(result.Runs, out.run)
		if out.err == nil && out.run.Succeeded() {
			result.Succeeded++
			e.sendProgress(prog, batchUpdate(completed, len(paths), out.run.Target, nil))
			continue
		}

		result.Failed++
		err := out.err
		if err == nil {
			err = fmt.Errorf("%w: %s", shared.ErrAnalysisRejected, out.run.Errors[0])
		}
		e.sendProgress(prog, batchUpdate(completed, len(paths), out.run.Target, err))
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (e *IngestEngine) batchWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan batchJob,
	outcomes chan<- batchOutcome,
	model string,
	prog chan<- ProgressUpdate,
) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		run, err := e.Analyze(ctx, job.path, model, prog)
		outcomes <- batchOutcome{run: run, err: err}
	}
}
