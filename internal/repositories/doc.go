// Package repositories implements SQLite persistence for the track library and analysis history.
//
// Key Implementations:
//   - [TrackRepository] : analyzed tracks keyed by backend filename, payload stored verbatim
//   - [TrackCacheAdapter] : tasks.TrackCacher over TrackRepository
//   - [RunRepository] : analyze/re-analyze invocation history, implements tasks.RunRecorder
//
// Sequence numbers provide stable library ordering independent of UUIDs and timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
// Replacing a track keeps its sequence, so a re-analyzed track stays where it was.
package repositories
