package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a stage failure.
type Kind string

const (
	KindRetrieval   Kind = "retrieval"
	KindProcessing  Kind = "processing"
	KindDegradable  Kind = "degradable"
	KindBestEffort  Kind = "best_effort"
	KindPersistence Kind = "persistence"
)

// StageError is a stage-aware failure.
type StageError struct {
	Stage string
	Kind  Kind
	Err   error
}

// Error formats the failure as recorded on the job.
func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Err.Error())
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the failure class of err, or "" if err carries none.
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
