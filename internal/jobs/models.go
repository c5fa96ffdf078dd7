package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued           Status = "queued"
	StatusTranscribing     Status = "transcribing"
	StatusDiarizing        Status = "diarizing"
	StatusExtractingClaims Status = "extracting_claims"
	StatusFactChecking     Status = "fact_checking"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
)

// UserCancelReason is the error message set when a user explicitly cancels a job.
const UserCancelReason = "Cancelled by user"

// DaemonStopReason is the progress message set on jobs requeued after a daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusQueued,
	StatusTranscribing,
	StatusDiarizing,
	StatusExtractingClaims,
	StatusFactChecking,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusTranscribing:     {},
	StatusDiarizing:        {},
	StatusExtractingClaims: {},
	StatusFactChecking:     {},
}

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// DatabaseHealth captures diagnostic information about the job database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}

// Job represents a fact-checking job persisted in SQLite.
type Job struct {
	ID              string
	SourceRef       string
	Priority        int
	Status          Status
	ErrorMessage    string
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	TranscriptJSON  string
	SegmentsJSON    string
	ClaimsJSON      string
	ResultsJSON     string
	DegradedJSON    string
	LastHeartbeat   *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight stage.
func (j Job) IsProcessing() bool {
	return IsProcessingStatus(j.Status)
}

// IsTerminal returns true when the job has reached a final state.
func (j Job) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminalStatus reports whether a status is final.
func IsTerminalStatus(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// SetProgress updates all three progress fields atomically. The percent
// value never moves backward; stale lower values are ignored so observers
// see a monotonic completion estimate.
func (j *Job) SetProgress(stage, message string, percent float64) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	if percent > j.ProgressPercent {
		j.ProgressPercent = percent
	}
}

// SetFailed marks the job as failed with the given error message.
// Clears heartbeat and sets progress fields appropriately.
func (j *Job) SetFailed(message string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ProgressMessage = message
	j.ProgressStage = "Failed"
	j.LastHeartbeat = nil
	j.FinishedAt = &now
}

// SetCancelled marks the job as cancelled.
func (j *Job) SetCancelled(message string) {
	now := time.Now().UTC()
	j.Status = StatusCancelled
	j.ErrorMessage = message
	j.ProgressMessage = message
	j.ProgressStage = "Cancelled"
	j.LastHeartbeat = nil
	j.FinishedAt = &now
}
