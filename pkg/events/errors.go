package events

import "errors"

// Sentinel errors shared across Echo's pipeline stages, in the same spirit
// as the teacher's pkg/orchestrator/errors.go: a small set of wrapped,
// errors.Is-comparable failure classes rather than ad-hoc strings. The
// components log and degrade on these conditions instead of returning
// errors, so no function in this module returns these values.
var (
	// ErrMalformedPayload names a hook payload that is missing a required
	// field or has a field of the wrong shape.
	ErrMalformedPayload = errors.New("malformed hook payload")

	// ErrUnknownHookEvent names a hook_event_name that does not map to a
	// known Kind.
	ErrUnknownHookEvent = errors.New("unknown hook event name")

	// ErrProviderUnavailable names a TTS/LLM/STT remote service that has
	// been probed as unavailable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrEmptyTranscription indicates STT returned no usable text.
	ErrEmptyTranscription = errors.New("transcription returned empty text")

	// ErrLowConfidence indicates a voice response matched below the
	// configured confidence threshold and must not be dispatched.
	ErrLowConfidence = errors.New("match confidence below threshold")

	// ErrDispatchFailed indicates the terminal-injection subprocess exited
	// non-zero or could not be started.
	ErrDispatchFailed = errors.New("keystroke dispatch failed")

	// ErrNoDispatchMechanism indicates no dispatch mechanism (tmux,
	// applescript, xdotool) could be auto-detected.
	ErrNoDispatchMechanism = errors.New("no dispatch mechanism available")
)
