package triage

import "errors"

// Stable error kinds surfaced to callers. The API layer maps these to HTTP
// status codes with errors.Is; everything else is an internal error.
var (
	// ErrNotFound means the referenced record id is unknown.
	ErrNotFound = errors.New("triage: record not found")

	// ErrInvalidState means the record's current status forbids the
	// requested action. The record is left unchanged.
	ErrInvalidState = errors.New("triage: invalid state for requested action")

	// ErrInvalidRequest means the submission itself was malformed.
	ErrInvalidRequest = errors.New("triage: invalid request")

	// ErrShuttingDown means the worker pool no longer accepts work.
	ErrShuttingDown = errors.New("triage: shutting down")
)
