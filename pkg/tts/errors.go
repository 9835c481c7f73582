package tts

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyText is returned when there is nothing to speak.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrSynthesisFailed is returned by Chain when every backend failed.
	ErrSynthesisFailed = errors.New("speech synthesis failed")
)

// BackendError is a failed call to a synthesis backend.
type BackendError struct {
	Backend string
	// Status is the HTTP status or process exit code, 0 when unknown.
	Status int
	Err    error
	// Transient is set when the same text may synthesize on a later call.
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

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
