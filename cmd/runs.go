package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"
)

// Runs lists recorded analyze and re-analyze invocations, most recent first.
func (r *Runner) Runs(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.library(); err != nil {
		return err
	}
	runs, err := r.runs.List(cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, true)
	}
	if len(runs) == 0 {
		r.writePlain("No runs recorded yet.\n")
		return nil
	}

	r.writePlainHeader("Recent Runs")
	for _, run := range runs {
		mark := "✓"
		if !run.Succeeded() {
			mark = "✗"
		}
		r.writePlain("%s %s  %-10s %-12s %s (%d track(s), %s)\n",
			mark,
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Kind,
			run.Model,
			run.Target,
			len(run.Completed),
			run.Duration().Round(time.Millisecond),
		)
		for _, msg := range run.Errors {
			r.writePlain("    ERR: %s\n", msg)
		}
		if run.Failure != "" {
			r.writePlain("    %s\n", run.Failure)
		}
		if run.Skipped > 0 {
			r.writePlain("    %d malformed line(s) dropped\n", run.Skipped)
		}
	}
	return nil
}
