// Package tasks turns analysis backend streams into library state with real-time progress reporting.
//
// # Stream Reduction
//
// The backend answers /analyze and /re-analyze with NDJSON. Reduction happens in three layers:
//
//  1. [LineBuffer] : splits arbitrary byte chunks into complete lines, retaining the trailing fragment
//  2. [EventStream] : lazily decodes lines into [models.AnalysisEvent], dropping malformed lines
//  3. [IngestEngine] : folds each event into the shared [TrackCollection] and [StatusLine]
//     - progress : status text replaced with the uppercased message
//     - complete : track upserted by meta.filename (replace in place, else prepend)
//     - error : surfaced as a progress update and logged; consumption continues
//
// Every invocation owns its own read loop and buffer. Events are folded in arrival order within
// one invocation; concurrent invocations interleave freely and the last write per filename wins.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates
//
// The [ProgressUpdate] struct contains phase, target, step counters, messages, and optional data.
// Updates use select with default to prevent blocking.
//
// # Persistence
//
// The optional [TrackCacher] and [RunRecorder] interfaces mirror completed tracks and invocation
// summaries to storage (repositories.TrackCacheAdapter and repositories.RunRepository).
// Storage errors are logged and never interrupt a stream.
//
// # Batch and Watch
//
// [IngestEngine.BatchAnalyze] runs a worker pool paced by a [rate.Limiter].
// [Watcher] analyzes files dropped into a directory once they stop changing.
package tasks
