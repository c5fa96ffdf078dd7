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

// DiarizeStage attributes transcript segments to speakers. A diarization
// failure degrades the job rather than failing it unless the operator has
// configured diarization as fatal; that policy lives in the pipeline runner,
// not here.
type DiarizeStage struct {
	client *clients.DiarizeClient
	policy stageexec.Policy
	logger *slog.Logger
}

// NewDiarizeStage builds the diarization stage.
func NewDiarizeStage(client *clients.DiarizeClient, policy stageexec.Policy) *DiarizeStage {
	return &DiarizeStage{client: client, policy: policy, logger: logging.NewNop()}
}

// SetLogger installs a job-scoped logger for this execution.
func (s *DiarizeStage) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Execute sends the transcript segments for speaker attribution and stores
// the labeled segments back on the job.
func (s *DiarizeStage) Execute(ctx context.Context, job *jobs.Job) error {
	segments, err := job.SegmentList()
	if err != nil {
		return services.Wrap(services.ErrPermanent, "diarize", "load segments", "failed to decode segment payload", err)
	}
	if len(segments) == 0 {
		return services.Wrap(services.ErrPermanent, "diarize", "load segments", "no transcript segments to diarize", nil)
	}

	var labeled []jobs.Segment
	err = stageexec.Run(ctx, s.policy, s.logger, "diarize", func(ctx context.Context) error {
		result, callErr := s.client.Diarize(ctx, job.SourceRef, segments)
		if callErr != nil {
			return callErr
		}
		labeled = result
		return nil
	})
	if err != nil {
		return err
	}

	if err := job.SetSegments(labeled); err != nil {
		return services.Wrap(services.ErrPermanent, "diarize", "store segments", "failed to encode labeled segment payload", err)
	}

	s.logger.Info("diarization complete",
		logging.String(logging.FieldEventType, "diarization_complete"),
		logging.Int("segments", len(labeled)),
		logging.Int("speakers", countSpeakers(labeled)))
	return nil
}

// HealthCheck probes the diarization adapter.
func (s *DiarizeStage) HealthCheck(ctx context.Context) stage.Health {
	if err := s.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("diarize", err.Error())
	}
	return stage.Healthy("diarize")
}

func countSpeakers(segments []jobs.Segment) int {
	seen := make(map[string]struct{}, 4)
	for _, segment := range segments {
		if segment.Speaker == "" {
			continue
		}
		seen[segment.Speaker] = struct{}{}
	}
	return len(seen)
}
