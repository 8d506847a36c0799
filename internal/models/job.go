// Package models defines the job record and note data structures for Sheetcast.
package models

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus is a state of the transcription state machine.
type JobStatus string

const (
	StatusPending      JobStatus = "pending"
	StatusDownloading  JobStatus = "downloading"
	StatusProcessing   JobStatus = "processing"
	StatusTranscribing JobStatus = "transcribing"
	StatusConverting   JobStatus = "converting"
	StatusCompleted    JobStatus = "completed"
	StatusFailed       JobStatus = "failed"
)

var (
	// ErrTerminal is returned when a state-changing call targets a completed or failed job.
	ErrTerminal = errors.New("job is in a terminal state")

	// ErrInvalidTransition is returned for a transition that is not the next forward step.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMissingPrimaryOutput is returned when completing a job without a MIDI handle.
	ErrMissingPrimaryOutput = errors.New("primary output handle missing")
)

// sequence is the forward order of non-failed states.
var sequence = []JobStatus{
	StatusPending,
	StatusDownloading,
	StatusProcessing,
	StatusTranscribing,
	StatusConverting,
	StatusCompleted,
}

var progressByStatus = map[JobStatus]int{
	StatusPending:      0,
	StatusDownloading:  10,
	StatusProcessing:   30,
	StatusTranscribing: 50,
	StatusConverting:   80,
	StatusCompleted:    100,
}

func (s JobStatus) rank() int {
	for i, st := range sequence {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	return s == StatusFailed || s.rank() >= 0
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress returns the percentage tied to s. FAILED has no percentage of
// its own and returns -1; a failed job keeps the progress it reached.
func (s JobStatus) Progress() int {
	if p, ok := progressByStatus[s]; ok {
		return p
	}
	return -1
}

// CanTransition reports whether moving from s to to is legal: the next state
// in the forward sequence, or FAILED from any non-terminal state.
func (s JobStatus) CanTransition(to JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	from, next := s.rank(), to.rank()
	return from >= 0 && next == from+1
}

// Options holds submission-time configuration for a job.
type Options struct {
	IsolateTarget bool `json:"isolate_target"`
}

// Quality summarises transcription output.
type Quality struct {
	ConfidenceScore float64 `json:"confidence_score"`
	NoteCount       int     `json:"note_count"`
	Duration        float64 `json:"duration"`
	PolyphonyAvg    float64 `json:"polyphony_avg"`
}

// Attributes are the stage-produced fields of a job. Nil means not set.
type Attributes struct {
	Title       *string  `json:"video_title,omitempty"`
	Duration    *float64 `json:"video_duration,omitempty"`
	Quality     *Quality `json:"quality,omitempty"`
	MIDIURL     *string  `json:"midi_url,omitempty"`
	MusicXMLURL *string  `json:"musicxml_url,omitempty"`
	PDFURL      *string  `json:"pdf_url,omitempty"`
	Error       *string  `json:"error,omitempty"`
}

// Merge overlays the non-nil fields of other onto a.
func (a *Attributes) Merge(other Attributes) {
	if other.Title != nil {
		a.Title = other.Title
	}
	if other.Duration != nil {
		a.Duration = other.Duration
	}
	if other.Quality != nil {
		q := *other.Quality
		a.Quality = &q
	}
	if other.MIDIURL != nil {
		a.MIDIURL = other.MIDIURL
	}
	if other.MusicXMLURL != nil {
		a.MusicXMLURL = other.MusicXMLURL
	}
	if other.PDFURL != nil {
		a.PDFURL = other.PDFURL
	}
	if other.Error != nil {
		a.Error = other.Error
	}
}

// Empty reports whether no attribute is set.
func (a Attributes) Empty() bool {
	return a == Attributes{}
}

// Job is the persisted record of one transcription request.
type Job struct {
	ID          string     `json:"job_id"`
	Source      string     `json:"source_reference"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Options     Options    `json:"options"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Attributes
}

// NewJob returns a PENDING job at progress 0.
func NewJob(id, source string, opts Options, now time.Time) *Job {
	return &Job{
		ID:        id,
		Source:    source,
		Status:    StatusPending,
		Progress:  0,
		Options:   opts,
		CreatedAt: now.UTC(),
	}
}

// Advance moves the job to status to, updating progress in the same step.
func (j *Job) Advance(to JobStatus) error {
	if j.Status.IsTerminal() {
		return ErrTerminal
	}
	if to == StatusCompleted || to == StatusFailed {
		return fmt.Errorf("%w: use Complete or Fail for %s", ErrInvalidTransition, to)
	}
	if !j.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	if p := to.Progress(); p > j.Progress {
		j.Progress = p
	}
	return nil
}

// Merge applies attribute updates. Terminal jobs are immutable.
func (j *Job) Merge(attrs Attributes) error {
	if j.Status.IsTerminal() {
		return ErrTerminal
	}
	j.Attributes.Merge(attrs)
	return nil
}

// Complete marks the job COMPLETED at progress 100. The MIDI handle must be set.
func (j *Job) Complete(now time.Time) error {
	if j.Status.IsTerminal() {
		return ErrTerminal
	}
	if !j.Status.CanTransition(StatusCompleted) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusCompleted)
	}
	if j.MIDIURL == nil {
		return ErrMissingPrimaryOutput
	}
	t := now.UTC()
	j.Status = StatusCompleted
	j.Progress = StatusCompleted.Progress()
	j.CompletedAt = &t
	j.Error = nil
	return nil
}

// Fail marks the job FAILED with a description of cause.
func (j *Job) Fail(cause error, now time.Time) error {
	if j.Status.IsTerminal() {
		return ErrTerminal
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	t := now.UTC()
	j.Status = StatusFailed
	j.Error = &msg
	j.CompletedAt = &t
	return nil
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	c.Attributes = Attributes{}
	c.Attributes.Merge(j.Attributes)
	return &c
}
