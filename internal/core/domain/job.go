package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a job is asked to move backwards or
// to skip a state.
var ErrInvalidTransition = errors.New("invalid status transition")

// Status is the lifecycle state of a download job.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// String returns the wire representation of the status.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving to next is a legal forward step.
// The only edges are pending -> downloading -> {completed, failed}.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusDownloading
	case StatusDownloading:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Job represents a single requested download and its tracked lifecycle.
// ID doubles as the status-lookup key and the base name of the output file.
type Job struct {
	ID         string
	URL        string
	Filename   string
	Status     Status
	Error      string
	WebhookURL string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Transition advances the job to next, recording errMsg when next is
// StatusFailed. Illegal edges are rejected with ErrInvalidTransition.
func (j *Job) Transition(next Status, errMsg string) error {
	if !j.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	if next == StatusFailed {
		j.Error = errMsg
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}
