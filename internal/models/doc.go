// Package models defines the wire and domain types shared by every stemdeck component.
//
// The package contains two groups of types:
//
// 1. Stream events: one [AnalysisEvent] per NDJSON line sent by the analysis backend
//   - [EventProgress] : human readable status with an optional percentage
//   - [EventComplete] : a full [TrackRecord]
//   - [EventError] : a failure reported by the backend
//
// 2. Track data: the [TrackRecord] payload and its parts
//   - [Meta] : identity (filename) and tags
//   - [Cue], [MixPoints], [Descriptors] : structure and perceptual descriptors
//   - [StemID] : the main mix plus the seven isolated stems
//
// Fields the backend may send as either numbers or pre-formatted strings use [Flex].
package models
