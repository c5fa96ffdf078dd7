package ipc

import (
	"time"

	"claimlens/internal/events"
	"claimlens/internal/jobs"
)

// JobSummary is the wire representation of a job for IPC callers.
type JobSummary struct {
	ID              string            `json:"id"`
	SourceRef       string            `json:"source_ref"`
	Priority        int               `json:"priority"`
	Status          string            `json:"status"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	FinishedAt      *time.Time        `json:"finished_at,omitempty"`
	ProgressStage   string            `json:"progress_stage,omitempty"`
	ProgressPercent float64           `json:"progress_percent"`
	ProgressMessage string            `json:"progress_message,omitempty"`
	ClaimCount      int               `json:"claim_count"`
	ResultCount     int               `json:"result_count"`
	DegradedStages  map[string]string `json:"degraded_stages,omitempty"`
}

// FromJob converts a stored job into its IPC summary.
func FromJob(job *jobs.Job) JobSummary {
	summary := JobSummary{
		ID:              job.ID,
		SourceRef:       job.SourceRef,
		Priority:        job.Priority,
		Status:          string(job.Status),
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
		ProgressStage:   job.ProgressStage,
		ProgressPercent: job.ProgressPercent,
		ProgressMessage: job.ProgressMessage,
	}
	if claims, err := job.ClaimList(); err == nil {
		summary.ClaimCount = len(claims)
	}
	if results, err := job.ResultList(); err == nil {
		summary.ResultCount = len(results)
	}
	if degraded, err := job.DegradedStages(); err == nil && len(degraded) > 0 {
		summary.DegradedStages = degraded
	}
	return summary
}

// SubmitRequest enqueues a new fact-check job.
type SubmitRequest struct {
	SourceRef string `json:"source_ref"`
	Priority  int    `json:"priority"`
}

// SubmitResponse returns the created job.
type SubmitResponse struct {
	Job JobSummary `json:"job"`
}

// CancelRequest requests cancellation of a job.
type CancelRequest struct {
	ID string `json:"id"`
}

// CancelResponse indicates the cancel request was accepted.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// StopRequest stops daemon processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StageHealth describes readiness of a pipeline stage.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// StatusResponse represents combined daemon/queue status information.
type StatusResponse struct {
	Running     bool           `json:"running"`
	ActiveJobs  []string       `json:"active_jobs,omitempty"`
	QueueStats  map[string]int `json:"queue_stats"`
	StageHealth []StageHealth  `json:"stage_health,omitempty"`
	JobDBPath   string         `json:"job_db_path"`
	LockPath    string         `json:"lock_path"`
	SocketPath  string         `json:"socket_path"`
	PID         int            `json:"pid"`
}

// QueueListRequest filters job listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains job summaries.
type QueueListResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// QueueDescribeRequest fetches a single job by id.
type QueueDescribeRequest struct {
	ID string `json:"id"`
}

// QueueDescribeResponse contains a single job summary plus its extracted
// claims and verdicts, when present.
type QueueDescribeResponse struct {
	Job     JobSummary       `json:"job"`
	Claims  []jobs.Claim     `json:"claims,omitempty"`
	Results []jobs.FactCheck `json:"results,omitempty"`
}

// QueueClearRequest removes all jobs.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed jobs.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearCompletedRequest removes completed jobs.
type QueueClearCompletedRequest struct{}

// QueueClearCompletedResponse reports number of removed jobs.
type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearFailedRequest removes failed jobs.
type QueueClearFailedRequest struct{}

// QueueClearFailedResponse reports number of removed jobs.
type QueueClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueRetryRequest retries failed jobs. Empty list means all failed jobs.
type QueueRetryRequest struct {
	IDs []string `json:"ids"`
}

// QueueRetryResponse reports number of retried jobs.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueRemoveRequest removes specific jobs by ID.
type QueueRemoveRequest struct {
	IDs []string `json:"ids"`
}

// QueueRemoveResponse reports number of removed jobs.
type QueueRemoveResponse struct {
	Removed int64 `json:"removed"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	TableExists      bool   `json:"table_exists"`
	IntegrityCheck   bool   `json:"integrity_check"`
	TotalJobs        int    `json:"total_jobs"`
	Error            string `json:"error"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// EventsRequest fetches job events after a sequence cursor. When WaitMillis is
// positive and no newer events exist the server long-polls for that long.
type EventsRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	WaitMillis int    `json:"wait_millis"`
}

// EventsResponse returns buffered events and the cursor to resume from.
type EventsResponse struct {
	Events []events.Event `json:"events"`
	Next   uint64         `json:"next"`
}
