// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI has three views:
//  1. [LibraryView] : Browse analyzed tracks, newest first, or start a new analysis
//  2. [ScanView] : Follow an analysis with the status line, a progress bar and a spinner
//  3. [DetailView] : Inspect a track and audition its stems through a [mixer.Synchronizer]
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the IngestEngine, so the UI never blocks on the backend.
//
// A synchronizer exists only while the detail view is shown; a 250ms tick delivers its channel events and
// reconciles drift. Leaving the view cancels any in-flight load and closes every channel.
package ui
