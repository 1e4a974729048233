// Package services implements the HTTP client for the stem analysis backend.
//
// # Endpoints
//
//   - POST /analyze : multipart upload (fields "file" and "model"), NDJSON response
//   - POST /re-analyze : JSON {"filename", "model"}, NDJSON response
//   - GET /audio/{filename} : stored main mix, stem or MIDI asset
//
// [AnalyzerService] returns stream bodies unread; decoding belongs to the tasks package.
//
// # Authentication
//
// A configured bearer token is attached via [oauth2.StaticTokenSource] and [oauth2.NewClient].
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrBackendUnreachable] : connection or transport failure
//   - [shared.ErrAnalysisRejected] : non-2xx response; wraps the backend's {"error"} message
//   - [shared.ErrTrackNotFound] : additionally wrapped for 404 responses
//   - [shared.ErrInvalidModel] : model other than htdemucs_6s or htdemucs_ft, rejected before any request
package services
