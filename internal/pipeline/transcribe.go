package pipeline

import (
	"context"
	"log/slog"

	"claimlens/internal/clients"
	"claimlens/internal/jobs"
	"claimlens/internal/logging"
	"claimlens/internal/services"
	"claimlens/internal/stage"
	"claimlens/internal/stageexec"
)

// TranscribeStage turns the job's source media reference into a transcript.
type TranscribeStage struct {
	client *clients.TranscribeClient
	policy stageexec.Policy
	logger *slog.Logger
}

// NewTranscribeStage builds the transcription stage.
func NewTranscribeStage(client *clients.TranscribeClient, policy stageexec.Policy) *TranscribeStage {
	return &TranscribeStage{client: client, policy: policy, logger: logging.NewNop()}
}

// SetLogger installs a job-scoped logger for this execution.
func (s *TranscribeStage) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Execute transcribes the job's source media and stores both the full
// transcript and its segments on the job.
func (s *TranscribeStage) Execute(ctx context.Context, job *jobs.Job) error {
	var transcript jobs.Transcript
	err := stageexec.Run(ctx, s.policy, s.logger, "transcribe", func(ctx context.Context) error {
		result, callErr := s.client.Transcribe(ctx, job.SourceRef)
		if callErr != nil {
			return callErr
		}
		transcript = result
		return nil
	})
	if err != nil {
		return err
	}

	if err := job.SetTranscript(transcript); err != nil {
		return services.Wrap(services.ErrPermanent, "transcribe", "store transcript", "failed to encode transcript payload", err)
	}
	if err := job.SetSegments(transcript.Segments); err != nil {
		return services.Wrap(services.ErrPermanent, "transcribe", "store segments", "failed to encode segment payload", err)
	}

	s.logger.Info("transcription complete",
		logging.String(logging.FieldEventType, "transcription_complete"),
		logging.Int("segments", len(transcript.Segments)),
		logging.String("language", transcript.Language))
	return nil
}

// HealthCheck probes the transcription adapter.
func (s *TranscribeStage) HealthCheck(ctx context.Context) stage.Health {
	if err := s.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("transcribe", err.Error())
	}
	return stage.Healthy("transcribe")
}
