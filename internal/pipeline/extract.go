package pipeline

import (
	"context"
	"log/slog"

	"claimlens/internal/clients"
	"claimlens/internal/events"
	"claimlens/internal/jobs"
	"claimlens/internal/logging"
	"claimlens/internal/services"
	"claimlens/internal/stage"
	"claimlens/internal/stageexec"
)

// ExtractStage pulls checkable factual claims out of the transcript.
type ExtractStage struct {
	client *clients.ClaimsClient
	hub    *events.Hub
	policy stageexec.Policy
	logger *slog.Logger
}

// NewExtractStage builds the claim extraction stage.
func NewExtractStage(client *clients.ClaimsClient, hub *events.Hub, policy stageexec.Policy) *ExtractStage {
	return &ExtractStage{client: client, hub: hub, policy: policy, logger: logging.NewNop()}
}

// SetLogger installs a job-scoped logger for this execution.
func (s *ExtractStage) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Execute extracts claims from the stored segments and announces each one.
// A transcript with no checkable claims is a valid outcome, not an error.
func (s *ExtractStage) Execute(ctx context.Context, job *jobs.Job) error {
	segments, err := job.SegmentList()
	if err != nil {
		return services.Wrap(services.ErrPermanent, "extract_claims", "load segments", "failed to decode segment payload", err)
	}
	if len(segments) == 0 {
		return services.Wrap(services.ErrPermanent, "extract_claims", "load segments", "no transcript segments to extract claims from", nil)
	}

	var claims []jobs.Claim
	err = stageexec.Run(ctx, s.policy, s.logger, "extract_claims", func(ctx context.Context) error {
		result, callErr := s.client.Extract(ctx, job.ID, segments)
		if callErr != nil {
			return callErr
		}
		claims = result
		return nil
	})
	if err != nil {
		return err
	}

	if err := job.SetClaims(claims); err != nil {
		return services.Wrap(services.ErrPermanent, "extract_claims", "store claims", "failed to encode claim payload", err)
	}

	if s.hub != nil {
		for i := range claims {
			claim := claims[i]
			s.hub.Publish(events.Event{
				Kind:    events.KindClaimDetected,
				JobID:   job.ID,
				Stage:   "extract_claims",
				Message: claim.Text,
				Claim:   &claim,
			})
		}
	}

	s.logger.Info("claim extraction complete",
		logging.String(logging.FieldEventType, "claim_extraction_complete"),
		logging.Int("claims", len(claims)))
	return nil
}

// HealthCheck probes the claim extraction adapter.
func (s *ExtractStage) HealthCheck(ctx context.Context) stage.Health {
	if err := s.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("extract_claims", err.Error())
	}
	return stage.Healthy("extract_claims")
}
