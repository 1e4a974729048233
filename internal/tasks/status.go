package tasks

import (
	"strings"
	"sync"
)

// ScanStartMessage is the status shown from the start of an invocation until its first event.
const ScanStartMessage = "INITIATING SCAN..."

// StatusLine is the caller-visible "current status" text plus the in-progress flag.
//
// It counts overlapping invocations. When one ends while others still run, the text falls
// back to [ScanStartMessage] until the next progress event; the last to end clears it.
type StatusLine struct {
	mu      sync.RWMutex
	message string
	percent int
	active  int
}

// Begin marks one more invocation in progress and shows msg.
func (s *StatusLine) Begin(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active++
	s.message = msg
	s.percent = -1
}

// Set replaces the text with the uppercased progress message. Negative percent means unknown.
func (s *StatusLine) Set(msg string, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = strings.ToUpper(msg)
	s.percent = percent
}

// End marks one invocation finished.
func (s *StatusLine) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active > 0 {
		s.active--
	}
	s.percent = -1
	if s.active == 0 {
		s.message = ""
		return
	}
	s.message = ScanStartMessage
}

// Get returns the current text and whether any invocation is in progress.
func (s *StatusLine) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message, s.active > 0
}

// Percent returns the last reported percentage, or -1.
func (s *StatusLine) Percent() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == 0 {
		return -1
	}
	return s.percent
}
