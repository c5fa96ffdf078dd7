package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"claimlens/internal/clients"
	"claimlens/internal/config"
	"claimlens/internal/events"
	"claimlens/internal/factcache"
	"claimlens/internal/jobs"
	"claimlens/internal/logging"
	"claimlens/internal/services"
	"claimlens/internal/stage"
	"claimlens/internal/stageexec"
)

// VerifyStage checks each extracted claim against the verification adapter.
// Cached verdicts are reused; uncached claims go out in rate-limited batches.
// A claim whose verification keeps failing transiently is recorded as
// unverifiable in degraded mode instead of failing the job.
type VerifyStage struct {
	client      *clients.VerifyClient
	cache       *factcache.Cache
	store       *jobs.Store
	hub         *events.Hub
	policy      stageexec.Policy
	batchSize   int
	concurrency int
	batchDelay  time.Duration
	logger      *slog.Logger
}

// NewVerifyStage builds the fact-checking stage.
func NewVerifyStage(client *clients.VerifyClient, cache *factcache.Cache, store *jobs.Store, hub *events.Hub, policy stageexec.Policy, cacheCfg config.Cache) *VerifyStage {
	batchSize := cacheCfg.VerifyBatchSize
	if batchSize <= 0 {
		batchSize = 8
	}
	concurrency := cacheCfg.VerifyBatchConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &VerifyStage{
		client:      client,
		cache:       cache,
		store:       store,
		hub:         hub,
		policy:      policy,
		batchSize:   batchSize,
		concurrency: concurrency,
		batchDelay:  time.Duration(cacheCfg.VerifyBatchDelayMillis) * time.Millisecond,
		logger:      logging.NewNop(),
	}
}

// SetLogger installs a job-scoped logger for this execution.
func (s *VerifyStage) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Execute fact-checks every checkable stored claim and records the outcomes
// on the job. Opinions and predictions are skipped; only facts carry a
// verdict.
func (s *VerifyStage) Execute(ctx context.Context, job *jobs.Job) error {
	all, err := job.ClaimList()
	if err != nil {
		return services.Wrap(services.ErrPermanent, "fact_check", "load claims", "failed to decode claim payload", err)
	}
	claims := make([]jobs.Claim, 0, len(all))
	for _, claim := range all {
		if claim.Checkable() {
			claims = append(claims, claim)
		}
	}
	if len(claims) == 0 {
		s.logger.Info("no checkable claims to verify",
			logging.String(logging.FieldEventType, "fact_check_complete"),
			logging.Int("skipped", len(all)))
		return job.SetResults([]jobs.FactCheck{})
	}

	indexByID := make(map[string]int, len(claims))
	for i, claim := range claims {
		indexByID[claim.ID] = i
	}
	results := make([]jobs.FactCheck, len(claims))

	cached, misses := s.cache.Partition(ctx, claims)
	for _, claim := range claims {
		entry, ok := cached[claim.ID]
		if !ok {
			continue
		}
		result := entry.Result(claim.ID)
		results[indexByID[claim.ID]] = result
		s.publishResult(job.ID, result)
	}

	total := len(claims)
	done := len(cached)
	degraded := 0

	for start := 0; start < len(misses); start += s.batchSize {
		end := start + s.batchSize
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[start:end]

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(s.concurrency)
		for _, claim := range batch {
			claim := claim
			group.Go(func() error {
				result, verifyErr := s.verifyClaim(groupCtx, claim)
				if verifyErr != nil {
					return verifyErr
				}
				results[indexByID[claim.ID]] = result
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}

		for _, claim := range batch {
			result := results[indexByID[claim.ID]]
			if result.Degraded {
				degraded++
			} else if err := s.cache.Put(ctx, claim.Text, result); err != nil {
				s.logger.Warn("failed to cache verification result", logging.Error(err))
			}
			s.publishResult(job.ID, result)
		}

		done += len(batch)
		percent := verifyBasePercent + verifySpanPercent*float64(done)/float64(total)
		job.SetProgress("Fact Checking", fmt.Sprintf("Verified %d of %d claims", done, total), percent)
		if err := s.store.Update(ctx, job); err != nil {
			s.logger.Warn("failed to persist verification progress", logging.Error(err))
		}
		if s.hub != nil {
			s.hub.Publish(events.Event{
				Kind:    events.KindStageProgress,
				JobID:   job.ID,
				Stage:   "fact_check",
				Message: job.ProgressMessage,
				Percent: job.ProgressPercent,
			})
		}

		if end < len(misses) && s.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return services.Wrap(services.ErrCancelled, "fact_check", "verify batch", "verification interrupted", ctx.Err())
			case <-time.After(s.batchDelay):
			}
		}
	}

	if err := job.SetResults(results); err != nil {
		return services.Wrap(services.ErrPermanent, "fact_check", "store results", "failed to encode result payload", err)
	}

	s.logger.Info("fact checking complete",
		logging.String(logging.FieldEventType, "fact_check_complete"),
		logging.Int("claims", total),
		logging.Int("skipped", len(all)-total),
		logging.Int("from_cache", len(cached)),
		logging.Int("degraded", degraded))
	return nil
}

// verifyClaim runs a single verification under the retry policy. Exhausted
// transient failures and permanent failures degrade the claim to an
// unverifiable verdict; only cancellation propagates as an error.
func (s *VerifyStage) verifyClaim(ctx context.Context, claim jobs.Claim) (jobs.FactCheck, error) {
	var result jobs.FactCheck
	err := stageexec.Run(ctx, s.policy, s.logger, "verify_claim", func(ctx context.Context) error {
		outcome, callErr := s.client.Verify(ctx, claim)
		if callErr != nil {
			return callErr
		}
		result = outcome
		return nil
	})
	if err == nil {
		return result, nil
	}
	if services.Classify(err) == services.KindCancelled {
		return jobs.FactCheck{}, err
	}

	s.logger.Warn("claim verification degraded to unverifiable",
		logging.String(logging.FieldEventType, "claim_verification_degraded"),
		logging.String("claim_id", claim.ID),
		logging.String(logging.FieldErrorKind, string(services.Classify(err))),
		logging.Error(err))
	return jobs.FactCheck{
		ClaimID:     claim.ID,
		Verdict:     jobs.VerdictUnverifiable,
		Explanation: "verification unavailable: " + services.Details(err).Message,
		Degraded:    true,
	}, nil
}

func (s *VerifyStage) publishResult(jobID string, result jobs.FactCheck) {
	if s.hub == nil {
		return
	}
	published := result
	s.hub.Publish(events.Event{
		Kind:   events.KindFactCheckResult,
		JobID:  jobID,
		Stage:  "fact_check",
		Result: &published,
	})
}

// HealthCheck probes the verification adapter.
func (s *VerifyStage) HealthCheck(ctx context.Context) stage.Health {
	if err := s.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("fact_check", err.Error())
	}
	return stage.Healthy("fact_check")
}
