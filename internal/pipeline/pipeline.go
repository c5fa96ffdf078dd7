// Package pipeline runs one fact-checking job through its ordered stages:
// transcription, speaker diarization, claim extraction, and claim
// verification. The runner owns stage transitions, weighted monotonic
// progress, heartbeats, cancellation checks between stages, and the
// degrade-or-fail policy for each stage.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

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

// Stage completion targets. Transcription and the two claim stages carry the
// bulk of the work; diarization is comparatively cheap.
const (
	transcribeTargetPercent = 30
	diarizeTargetPercent    = 40
	extractTargetPercent    = 70
	verifyBasePercent       = 70
	verifySpanPercent       = 30
)

type stageDef struct {
	name    string
	status  jobs.Status
	label   string
	target  float64
	handler stage.Handler
}

// Pipeline executes claimed jobs stage by stage.
type Pipeline struct {
	store             *jobs.Store
	hub               *events.Hub
	logger            *slog.Logger
	stages            []stageDef
	heartbeatInterval time.Duration
	diarizationFatal  bool
}

// New wires the pipeline's stages from configuration.
func New(cfg *config.Config, store *jobs.Store, cache *factcache.Cache, hub *events.Hub, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	policy := stageexec.FromConfig(cfg)
	stages := []stageDef{
		{
			name:    "transcribe",
			status:  jobs.StatusTranscribing,
			label:   "Transcribing",
			target:  transcribeTargetPercent,
			handler: NewTranscribeStage(clients.NewTranscribeClient(cfg.Transcribe), policy),
		},
		{
			name:    "diarize",
			status:  jobs.StatusDiarizing,
			label:   "Diarizing",
			target:  diarizeTargetPercent,
			handler: NewDiarizeStage(clients.NewDiarizeClient(cfg.Diarize), policy),
		},
		{
			name:    "extract_claims",
			status:  jobs.StatusExtractingClaims,
			label:   "Extracting Claims",
			target:  extractTargetPercent,
			handler: NewExtractStage(clients.NewClaimsClient(cfg.Claims), hub, policy),
		},
		{
			name:    "fact_check",
			status:  jobs.StatusFactChecking,
			label:   "Fact Checking",
			target:  100,
			handler: NewVerifyStage(clients.NewVerifyClient(cfg.Verify), cache, store, hub, policy, cfg.Cache),
		},
	}
	return &Pipeline{
		store:             store,
		hub:               hub,
		logger:            logging.NewComponentLogger(logger, "pipeline"),
		stages:            stages,
		heartbeatInterval: time.Duration(cfg.Scheduler.HeartbeatInterval) * time.Second,
		diarizationFatal:  cfg.Stages.DiarizationFatal,
	}
}

// Process runs a claimed job to a terminal state. A nil return means the job
// reached completed or cancelled; a non-nil return means the job failed or
// processing was interrupted by shutdown.
func (p *Pipeline) Process(ctx context.Context, job *jobs.Job) error {
	if job == nil {
		return fmt.Errorf("pipeline: nil job")
	}
	logger := p.logger.With(logging.String(logging.FieldJobID, job.ID))

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go heartbeatLoop(hbCtx, &hbWG, p.store, logger, job.ID, p.heartbeatInterval)
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()

	start := p.stageIndexFor(job.Status)
	if start < 0 {
		return fmt.Errorf("pipeline: job %s is not in a runnable status %q", job.ID, job.Status)
	}

	for i := start; i < len(p.stages); i++ {
		def := p.stages[i]

		if cancelled := p.refreshCancelRequested(ctx, logger, job); cancelled {
			p.markCancelled(ctx, logger, job)
			return nil
		}

		if job.Status != def.status {
			job.Status = def.status
			job.SetProgress(def.label, def.label+" started", job.ProgressPercent)
			if err := p.store.Update(ctx, job); err != nil {
				return fmt.Errorf("persist stage transition: %w", err)
			}
		}
		p.publish(events.Event{
			Kind:    events.KindStageStarted,
			JobID:   job.ID,
			Stage:   def.name,
			Message: def.label + " started",
			Percent: job.ProgressPercent,
		})

		stageCtx := services.WithRequestID(
			services.WithStage(services.WithJobID(ctx, job.ID), def.name),
			uuid.NewString(),
		)
		stageLogger := logging.WithContext(stageCtx, logger)
		if aware, ok := def.handler.(stage.LoggerAware); ok {
			aware.SetLogger(stageLogger)
		}

		stageStart := time.Now()
		stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

		execErr := def.handler.Execute(stageCtx, job)
		if execErr != nil {
			if ctx.Err() != nil {
				if cancelled := p.refreshCancelRequested(context.WithoutCancel(ctx), logger, job); cancelled {
					p.markCancelled(ctx, logger, job)
					return nil
				}
				stageLogger.Debug("stage interrupted by shutdown")
				return execErr
			}
			if def.name == "diarize" && !p.diarizationFatal {
				p.degradeStage(ctx, stageLogger, def, job, execErr)
				continue
			}
			p.handleFailure(ctx, stageLogger, def, job, execErr)
			return execErr
		}

		job.SetProgress(def.label, def.label+" complete", def.target)
		if err := p.store.Update(ctx, job); err != nil {
			return fmt.Errorf("persist stage result: %w", err)
		}
		p.publish(events.Event{
			Kind:    events.KindStageCompleted,
			JobID:   job.ID,
			Stage:   def.name,
			Message: def.label + " complete",
			Percent: job.ProgressPercent,
		})
		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", time.Since(stageStart)))
	}

	now := time.Now().UTC()
	job.Status = jobs.StatusCompleted
	job.FinishedAt = &now
	job.LastHeartbeat = nil
	job.SetProgress("Completed", "Fact check complete", 100)
	if err := p.store.Update(ctx, job); err != nil {
		return fmt.Errorf("persist job completion: %w", err)
	}
	p.publish(events.Event{
		Kind:    events.KindJobCompleted,
		JobID:   job.ID,
		Message: job.ProgressMessage,
		Percent: 100,
	})
	logger.Info("job completed", logging.String(logging.FieldEventType, "job_complete"))
	return nil
}

// Health probes every stage adapter.
func (p *Pipeline) Health(ctx context.Context) map[string]stage.Health {
	health := make(map[string]stage.Health, len(p.stages))
	for _, def := range p.stages {
		health[def.name] = def.handler.HealthCheck(ctx)
	}
	return health
}

func (p *Pipeline) stageIndexFor(status jobs.Status) int {
	for i, def := range p.stages {
		if def.status == status {
			return i
		}
	}
	return -1
}

// refreshCancelRequested reloads the cancel flag from the store so a cancel
// issued while a stage was running is honored at the next stage boundary.
func (p *Pipeline) refreshCancelRequested(ctx context.Context, logger *slog.Logger, job *jobs.Job) bool {
	fresh, err := p.store.GetByID(ctx, job.ID)
	if err != nil {
		logger.Warn("failed to refresh cancel state", logging.Error(err))
		return job.CancelRequested
	}
	if fresh == nil {
		return job.CancelRequested
	}
	job.CancelRequested = fresh.CancelRequested
	return job.CancelRequested
}

func (p *Pipeline) markCancelled(ctx context.Context, logger *slog.Logger, job *jobs.Job) {
	job.SetCancelled(jobs.UserCancelReason)
	// The cancel path usually arrives with an already-cancelled context.
	if err := p.store.Update(context.WithoutCancel(ctx), job); err != nil {
		logger.Error("failed to persist job cancellation", logging.Error(err))
	}
	p.publish(events.Event{
		Kind:    events.KindJobCancelled,
		JobID:   job.ID,
		Message: job.ErrorMessage,
	})
	logger.Info("job cancelled", logging.String(logging.FieldEventType, "job_cancelled"))
}

func (p *Pipeline) degradeStage(ctx context.Context, logger *slog.Logger, def stageDef, job *jobs.Job, stageErr error) {
	reason := services.Details(stageErr).Message
	if err := job.MarkDegraded(def.name, reason); err != nil {
		logger.Warn("failed to record degraded stage", logging.Error(err))
	}
	job.SetProgress(def.label, def.label+" skipped", def.target)
	if err := p.store.Update(ctx, job); err != nil {
		logger.Error("failed to persist degraded stage", logging.Error(err))
	}
	p.publish(events.Event{
		Kind:    events.KindStageDegraded,
		JobID:   job.ID,
		Stage:   def.name,
		Message: def.label + " degraded, continuing without speaker labels",
		Percent: job.ProgressPercent,
		Error:   reason,
	})
	logger.Warn("stage degraded, continuing",
		logging.String(logging.FieldEventType, "stage_degraded"),
		logging.String(logging.FieldErrorKind, string(services.Classify(stageErr))),
		logging.Error(stageErr))
}

func (p *Pipeline) handleFailure(ctx context.Context, logger *slog.Logger, def stageDef, job *jobs.Job, stageErr error) {
	details := services.Details(stageErr)
	message := details.Message
	if message == "" {
		message = def.name + " failed"
	}
	job.SetFailed(message)
	if err := p.store.Update(context.WithoutCancel(ctx), job); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}
	p.publish(events.Event{
		Kind:    events.KindJobFailed,
		JobID:   job.ID,
		Stage:   def.name,
		Message: message,
		Error:   message,
	})
	attrs := []any{
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String("error_message", message),
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(stageErr))
	}
	logger.Error("stage failed", attrs...)
}

func (p *Pipeline) publish(evt events.Event) {
	if p.hub == nil {
		return
	}
	p.hub.Publish(evt)
}
