package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Backend errors
	ErrBackendUnreachable = fmt.Errorf("analysis backend unreachable")
	ErrAnalysisRejected   = fmt.Errorf("analysis request rejected")
	ErrMalformedEvent     = fmt.Errorf("malformed stream event")
	ErrInvalidModel       = fmt.Errorf("unsupported separation model")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Library errors
	ErrTrackNotFound = fmt.Errorf("track not found")

	// Playback errors
	ErrMainUnavailable  = fmt.Errorf("main mix unavailable")
	ErrStemUnavailable  = fmt.Errorf("stem unavailable")
	ErrPlayerNotStarted = fmt.Errorf("player not started")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
