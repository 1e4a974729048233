package tasks

import (
	"fmt"
	"time"

	"github.com/desertthunder/stemdeck/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Target  string // File path or backend filename the update belongs to
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Upload Phase = iota
	Progress
	Complete
	ReportedError
	Skipped
	Failed
	Done
	Batch
)

func (p Phase) String() string {
	switch p {
	case Upload:
		return "upload"
	case Progress:
		return "progress"
	case Complete:
		return "complete"
	case ReportedError:
		return "error"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case Done:
		return "done"
	case Batch:
		return "batch"
	default:
		return ""
	}
}

// Percent returns the reported percentage of a Progress update, or -1.
func (u ProgressUpdate) Percent() int {
	if u.Phase != Progress || u.Total != 100 {
		return -1
	}
	return u.Step
}

// CompletedTrack is the Data of a Complete update.
type CompletedTrack struct {
	Track    *models.TrackRecord
	Index    int
	Replaced bool
}

func uploadUpdate(target, model string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Upload,
		Target:  target,
		Message: fmt.Sprintf("%s (%s)", ScanStartMessage, model),
	}
}

func eventProgressUpdate(target, message string, percent int) ProgressUpdate {
	u := ProgressUpdate{Phase: Progress, Target: target, Message: message}
	if percent >= 0 {
		u.Step, u.Total = percent, 100
	}
	return u
}

func completeUpdate(target string, ct CompletedTrack) ProgressUpdate {
	verb := "Added"
	if ct.Replaced {
		verb = "Updated"
	}
	return ProgressUpdate{
		Phase:   Complete,
		Target:  target,
		Step:    100,
		Total:   100,
		Message: fmt.Sprintf("%s %s (%.0f BPM, %s)", verb, ct.Track.DisplayTitle(), ct.Track.BPM, ct.Track.Key),
		Data:    ct,
	}
}

func reportedErrorUpdate(target, message string) ProgressUpdate {
	return ProgressUpdate{Phase: ReportedError, Target: target, Message: "ERR: " + message}
}

func skippedUpdate(target string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Skipped,
		Target:  target,
		Step:    count,
		Message: fmt.Sprintf("Dropped %d malformed line(s)", count),
	}
}

func failedUpdate(target string, err error) ProgressUpdate {
	return ProgressUpdate{Phase: Failed, Target: target, Message: fmt.Sprintf("✗ %v", err)}
}

func doneUpdate(run *models.AnalysisRun) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Target:  run.Target,
		Step:    len(run.Completed),
		Message: fmt.Sprintf("Finished %s in %s", run.Target, run.Duration().Round(time.Millisecond)),
		Data:    run,
	}
}

func batchUpdate(step, total int, path string, err error) ProgressUpdate {
	if err != nil {
		return ProgressUpdate{
			Phase:   Batch,
			Target:  path,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, path, err),
		}
	}
	return ProgressUpdate{
		Phase:   Batch,
		Target:  path,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, path),
	}
}
