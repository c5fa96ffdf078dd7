// Package scheduler admits jobs into the queue and runs the bounded worker
// pool that feeds claimed jobs to the pipeline. It also owns the cooperative
// cancellation flow and the reclaimer that rescues jobs whose worker died.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"claimlens/internal/config"
	"claimlens/internal/events"
	"claimlens/internal/jobs"
	"claimlens/internal/logging"
	"claimlens/internal/services"
)

// Processor runs one claimed job to a terminal state.
type Processor interface {
	Process(ctx context.Context, job *jobs.Job) error
}

// Option overrides a timing knob, mainly for tests.
type Option func(*Scheduler)

// WithPollInterval overrides the idle queue poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithErrorRetryInterval overrides the backoff after store errors.
func WithErrorRetryInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.errorRetryInterval = d }
}

// WithCancelGrace overrides how long Cancel waits for a running pipeline to
// acknowledge before force-marking the job cancelled.
func WithCancelGrace(d time.Duration) Option {
	return func(s *Scheduler) { s.cancelGrace = d }
}

// WithHeartbeatTimeout overrides the stale heartbeat cutoff for the reclaimer.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.heartbeatTimeout = d }
}

// Scheduler coordinates job admission and the worker pool.
type Scheduler struct {
	store  *jobs.Store
	proc   Processor
	hub    *events.Hub
	logger *slog.Logger

	workerCount        int
	maxPending         int
	pollInterval       time.Duration
	errorRetryInterval time.Duration
	heartbeatTimeout   time.Duration
	cancelGrace        time.Duration

	admitMu sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	active  map[string]context.CancelFunc
}

// New constructs a scheduler from configuration.
func New(cfg *config.Config, store *jobs.Store, proc Processor, hub *events.Hub, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Scheduler{
		store:              store,
		proc:               proc,
		hub:                hub,
		logger:             logging.NewComponentLogger(logger, "scheduler"),
		workerCount:        cfg.Scheduler.WorkerCount,
		maxPending:         cfg.Scheduler.MaxPending,
		pollInterval:       time.Duration(cfg.Scheduler.PollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Scheduler.ErrorRetryInterval) * time.Second,
		heartbeatTimeout:   time.Duration(cfg.Scheduler.HeartbeatTimeout) * time.Second,
		cancelGrace:        time.Duration(cfg.Scheduler.CancelGraceSeconds) * time.Second,
		active:             make(map[string]context.CancelFunc),
	}
	if s.workerCount <= 0 {
		s.workerCount = 1
	}
	if s.pollInterval <= 0 {
		s.pollInterval = time.Second
	}
	if s.errorRetryInterval <= 0 {
		s.errorRetryInterval = s.pollInterval
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit admits a new job. The queue is bounded; once the pending backlog
// reaches the configured limit the submission is rejected with a capacity
// error instead of queueing unboundedly.
func (s *Scheduler) Submit(ctx context.Context, sourceRef string, priority int) (*jobs.Job, error) {
	sourceRef = strings.TrimSpace(sourceRef)
	if sourceRef == "" {
		return nil, services.Wrap(services.ErrPermanent, "scheduler", "submit", "source reference required", nil)
	}

	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	if s.maxPending > 0 {
		count, err := s.store.QueuedCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("count queued jobs: %w", err)
		}
		if count >= s.maxPending {
			return nil, services.Wrap(services.ErrCapacity, "scheduler", "submit",
				fmt.Sprintf("queue full: %d jobs pending (limit %d)", count, s.maxPending), nil)
		}
	}

	job, err := s.store.NewJob(ctx, sourceRef, priority)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	if s.hub != nil {
		s.hub.Publish(events.Event{
			Kind:    events.KindJobQueued,
			JobID:   job.ID,
			Message: job.SourceRef,
		})
	}
	s.logger.Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("priority", job.Priority))
	return job, nil
}

// Start launches the worker pool and the stale job reclaimer. Jobs left in a
// processing status by an earlier run are requeued first.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	if requeued, err := s.store.RequeueProcessing(runCtx); err != nil {
		s.logger.Warn("failed to requeue interrupted jobs", logging.Error(err))
	} else if requeued > 0 {
		s.logger.Info("requeued interrupted jobs", logging.Int64("count", requeued))
	}

	s.wg.Add(s.workerCount + 1)
	for i := 0; i < s.workerCount; i++ {
		go s.runWorker(runCtx, i)
	}
	go s.runReclaimer(runCtx)
	return nil
}

// Stop terminates background processing and waits for workers to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// Running reports whether the worker pool is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ActiveJobs returns the IDs of jobs currently being processed.
func (s *Scheduler) ActiveJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

// Cancel requests cancellation of a job. Queued jobs are cancelled
// immediately; running jobs get a cooperative cancellation signal and are
// force-marked after the grace period if the pipeline does not acknowledge.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "scheduler", "cancel", fmt.Sprintf("job %s not found", id), nil)
	}
	if job.IsTerminal() {
		return services.Wrap(services.ErrPermanent, "scheduler", "cancel",
			fmt.Sprintf("job already %s", job.Status), nil)
	}

	if job.Status == jobs.StatusQueued {
		done, err := s.store.CancelQueued(ctx, id, jobs.UserCancelReason)
		if err != nil {
			return fmt.Errorf("cancel queued job: %w", err)
		}
		if done {
			s.publishCancelled(id)
			s.logger.Info("queued job cancelled",
				logging.String(logging.FieldEventType, "job_cancelled"),
				logging.String(logging.FieldJobID, id))
			return nil
		}
		// The job was claimed between our read and the cancel; fall through
		// to the running path.
	}

	if _, err := s.store.RequestCancel(ctx, id); err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	s.cancelActive(id)

	if s.waitForTerminal(ctx, id, s.cancelGrace) {
		return nil
	}

	// Grace expired without the pipeline acknowledging; force the state over.
	fresh, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load job after grace: %w", err)
	}
	if fresh == nil || fresh.IsTerminal() {
		return nil
	}
	fresh.SetCancelled(jobs.UserCancelReason)
	if err := s.store.Update(ctx, fresh); err != nil {
		return fmt.Errorf("force cancel: %w", err)
	}
	s.publishCancelled(id)
	s.logger.Warn("job force-cancelled after grace period",
		logging.String(logging.FieldEventType, "job_cancelled"),
		logging.String(logging.FieldJobID, id))
	return nil
}

func (s *Scheduler) waitForTerminal(ctx context.Context, id string, grace time.Duration) bool {
	if grace <= 0 {
		return false
	}
	deadline := time.Now().Add(grace)
	poll := grace / 10
	if poll > 50*time.Millisecond {
		poll = 50 * time.Millisecond
	}
	if poll <= 0 {
		poll = time.Millisecond
	}
	for time.Now().Before(deadline) {
		job, err := s.store.GetByID(ctx, id)
		if err == nil && (job == nil || job.IsTerminal()) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(poll):
		}
	}
	return false
}

func (s *Scheduler) runWorker(ctx context.Context, id int) {
	defer s.wg.Done()
	logger := s.logger.With(logging.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := s.store.ClaimNextQueued(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"))
			s.sleep(ctx, s.errorRetryInterval)
			continue
		}
		if job == nil {
			s.sleep(ctx, s.pollInterval)
			continue
		}

		jobCtx, cancel := context.WithCancel(ctx)
		s.registerActive(job.ID, cancel)
		procErr := s.proc.Process(jobCtx, job)
		s.unregisterActive(job.ID)
		cancel()

		if procErr != nil && ctx.Err() != nil {
			logger.Debug("worker interrupted by shutdown")
			return
		}
	}
}

func (s *Scheduler) runReclaimer(ctx context.Context) {
	defer s.wg.Done()
	if s.heartbeatTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.heartbeatTimeout)
			reclaimed, err := s.store.ReclaimStaleProcessing(ctx, cutoff)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("reclaim stale jobs failed; stuck jobs may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check job database access"))
				continue
			}
			if reclaimed > 0 {
				s.logger.Info("reclaimed stale jobs", logging.Int64("count", reclaimed))
			}
		}
	}
}

func (s *Scheduler) publishCancelled(id string) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(events.Event{
		Kind:    events.KindJobCancelled,
		JobID:   id,
		Message: jobs.UserCancelReason,
	})
}

func (s *Scheduler) registerActive(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.active[id] = cancel
	s.mu.Unlock()
}

func (s *Scheduler) unregisterActive(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

func (s *Scheduler) cancelActive(id string) {
	s.mu.Lock()
	cancel, ok := s.active[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
