package scheduler

import (
	"errors"
	"fmt"

	"spinframe/internal/resource"
)

var (
	// ErrAdmission is wrapped by every *AdmissionError.
	ErrAdmission = errors.New("submission rejected")

	// ErrJobNotFound is returned for ids that are unknown or already evicted.
	ErrJobNotFound = errors.New("job not found")

	// ErrShuttingDown is returned by Submit once the dispatcher has stopped.
	ErrShuttingDown = errors.New("scheduler is shutting down")

	// ErrIncompleteSequence fails a job whose pair lost frames while it was rendering.
	ErrIncompleteSequence = errors.New("sequence incomplete after rendering")

	errStopped = errors.New("job stopped")
)

// AdmissionReason classifies why a submission was rejected.
type AdmissionReason string

const (
	ReasonResourcePressure AdmissionReason = "resource_pressure"
	ReasonInvalidRequest   AdmissionReason = "invalid_request"
	ReasonUnknownModel     AdmissionReason = "unknown_model"
)

// AdmissionError is the only error Submit returns for a request it refuses.
// For resource pressure both classifications are reported.
type AdmissionError struct {
	Reason         AdmissionReason
	Message        string
	MemoryPressure resource.Level
	DiskPressure   resource.Level
}

func (e *AdmissionError) Error() string {
	if e.Reason == ReasonResourcePressure {
		return fmt.Sprintf("%s: %s (memory %s, disk %s)", ErrAdmission, e.Message, e.MemoryPressure, e.DiskPressure)
	}
	return fmt.Sprintf("%s: %s", ErrAdmission, e.Message)
}

func (e *AdmissionError) Unwrap() error { return ErrAdmission }

func invalidRequest(format string, args ...any) *AdmissionError {
	return &AdmissionError{Reason: ReasonInvalidRequest, Message: fmt.Sprintf(format, args...)}
}
