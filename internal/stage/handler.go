// Package stage defines the contract between the pipeline and its stages.
package stage

import (
	"context"
	"log/slog"

	"claimlens/internal/jobs"
)

// Handler describes the contract the pipeline needs from each stage.
// Execute mutates the job in place; the pipeline persists it afterwards.
type Handler interface {
	Execute(context.Context, *jobs.Job) error
	HealthCheck(context.Context) Health
}

// LoggerAware lets the pipeline hand stages a job-scoped logger before
// execution.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
