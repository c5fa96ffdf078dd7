// Package events fans out job lifecycle events to in-process subscribers and
// long-poll consumers.
//
// The Hub stores recent events in a bounded ring buffer addressed by a
// monotonic sequence cursor, so IPC clients can resume from the last sequence
// they saw. Channel subscriptions carry bounded buffers; a slow subscriber
// never blocks a publisher. When a subscriber's buffer overflows the hub
// drops events and injects a single drop marker so the subscriber knows to
// resync from the cursor API.
package events

import (
	"time"

	"claimlens/internal/jobs"
)

// Kind identifies the type of a job event.
type Kind string

const (
	KindJobQueued       Kind = "job_queued"
	KindStageStarted    Kind = "stage_started"
	KindStageProgress   Kind = "stage_progress"
	KindStageCompleted  Kind = "stage_completed"
	KindStageDegraded   Kind = "stage_degraded"
	KindClaimDetected   Kind = "claim_detected"
	KindFactCheckResult Kind = "fact_check_result"
	KindJobCompleted    Kind = "job_completed"
	KindJobFailed       Kind = "job_failed"
	KindJobCancelled    Kind = "job_cancelled"

	// KindEventsDropped is injected into a subscription after its buffer
	// overflowed. Dropped carries the number of lost events; consumers
	// resync via Hub.Fetch from their last sequence.
	KindEventsDropped Kind = "events_dropped"
)

// Event is one job lifecycle notification.
type Event struct {
	Sequence  uint64          `json:"seq"`
	Timestamp time.Time       `json:"ts"`
	Kind      Kind            `json:"kind"`
	JobID     string          `json:"job_id,omitempty"`
	Stage     string          `json:"stage,omitempty"`
	Message   string          `json:"message,omitempty"`
	Percent   float64         `json:"percent,omitempty"`
	Claim     *jobs.Claim     `json:"claim,omitempty"`
	Result    *jobs.FactCheck `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Dropped   uint64          `json:"dropped,omitempty"`
}

// Terminal reports whether the event ends its job's lifecycle.
func (e Event) Terminal() bool {
	switch e.Kind {
	case KindJobCompleted, KindJobFailed, KindJobCancelled:
		return true
	default:
		return false
	}
}
