package stt

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyAudio is returned for a zero-length WAV stream.
	ErrEmptyAudio = errors.New("audio data is empty")

	// ErrNoSpeech is returned when a backend recognized nothing.
	ErrNoSpeech = errors.New("no speech recognized")
)

// BackendError is a failed call to a transcription backend.
type BackendError struct {
	Backend string
	// Status is the HTTP status the backend answered with, 0 when the call
	// never got a response.
	Status int
	Err    error
	// Transient is set for throttling, server and connection failures that a
	// later call may not hit.
	Transient bool
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Backend, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Temporary reports whether the failure is transient.
func (e *BackendError) Temporary() bool { return e.Transient }

// transientStatus reports whether an HTTP status is worth another try.
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
