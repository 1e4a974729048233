package services

import (
	"context"
	"io"
)

// Analyzer is the client side of the analysis backend.
//
// Analyze and ReAnalyze return the raw NDJSON response body; the caller owns it and must close it.
type Analyzer interface {
	// Analyze uploads a local audio file for full analysis.
	Analyze(ctx context.Context, path, model string) (io.ReadCloser, error)

	// ReAnalyze asks the backend to analyze a file it already holds.
	ReAnalyze(ctx context.Context, filename, model string) (io.ReadCloser, error)

	// FetchAudio copies a stored asset (main mix, stem or MIDI file) to w.
	FetchAudio(ctx context.Context, filename string, w io.Writer) (int64, error)

	// AudioURL returns the streaming URL for a stored asset.
	AudioURL(filename string) string
}

// ReAnalyzeRequest is the JSON body of POST /re-analyze.
type ReAnalyzeRequest struct {
	Filename string `json:"filename"`
	Model    string `json:"model"`
}

// ErrorResponse is the JSON body the backend sends with non-2xx statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}
