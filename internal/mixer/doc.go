// Package mixer plays a track's main mix and its stems in lockstep.
//
// A [Synchronizer] owns one [Channel] per present source and exposes them as a
// single transport. Exactly one of two mixes is audible at a time: the original
// mix, or the set of soloed stems. Muted channels keep playing so their positions
// stay aligned, and [Synchronizer.Reconcile] hard-seeks any stem that drifts from
// main beyond the configured tolerance.
//
// Channel backends:
//   - [MpvChannel] : one idle mpv process per channel, driven over JSON IPC
//   - [NullChannel] : silent virtual clock
package mixer
