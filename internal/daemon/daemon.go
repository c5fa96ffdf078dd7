package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"claimlens/internal/config"
	"claimlens/internal/events"
	"claimlens/internal/factcache"
	"claimlens/internal/jobs"
	"claimlens/internal/logging"
	"claimlens/internal/notifications"
	"claimlens/internal/pipeline"
	"claimlens/internal/scheduler"
	"claimlens/internal/stage"
)

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *jobs.Store
	cache      *factcache.Cache
	hub        *events.Hub
	pipe       *pipeline.Pipeline
	sched      *scheduler.Scheduler
	notifier   notifications.Service
	dispatcher *notifications.Dispatcher
	logPath    string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	ActiveJobs   []string
	Queue        jobs.HealthSummary
	Stages       map[string]stage.Health
	JobDBPath    string
	LockFilePath string
	SocketPath   string
	PID          int
}

// New constructs a daemon and its processing services from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	cache, err := factcache.FromConfig(cfg, logging.NewComponentLogger(logger, "factcache"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open fact cache: %w", err)
	}

	hub := events.NewHub(0)
	notifier := notifications.NewService(cfg)
	pipe := pipeline.New(cfg, store, cache, hub, logger)
	sched := scheduler.New(cfg, store, pipe, hub, logger)
	dispatcher := notifications.NewDispatcher(hub, store, notifier, logger)

	lockPath := filepath.Join(cfg.Paths.DataDir, "claimlensd.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		cache:      cache,
		hub:        hub,
		pipe:       pipe,
		sched:      sched,
		notifier:   notifier,
		dispatcher: dispatcher,
		logPath:    filepath.Join(cfg.Paths.LogDir, "claimlens.log"),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start launches the scheduler and acquires the daemon lock.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another claimlens daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.sched.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start scheduler: %w", err)
	}
	d.dispatcher.Start(d.ctx)

	d.running.Store(true)
	d.logger.Info("claimlens daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.sched.Stop()
	d.dispatcher.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("claimlens daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.cache != nil {
		if err := d.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close fact cache: %w", err))
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close job store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Submit enqueues a fact-check job for the given media source reference.
func (d *Daemon) Submit(ctx context.Context, sourceRef string, priority int) (*jobs.Job, error) {
	return d.sched.Submit(ctx, sourceRef, priority)
}

// Cancel requests cancellation of a queued or running job.
func (d *Daemon) Cancel(ctx context.Context, id string) error {
	return d.sched.Cancel(ctx, id)
}

// ListJobs returns jobs filtered by optional statuses.
func (d *Daemon) ListJobs(ctx context.Context, statuses []jobs.Status) ([]*jobs.Job, error) {
	return d.store.List(ctx, statuses...)
}

// GetJob fetches a single job. Returns nil when the job is unknown.
func (d *Daemon) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	return d.store.GetByID(ctx, id)
}

// ClearQueue removes all jobs.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed jobs.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed jobs.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// RetryFailed resets failed jobs (optionally a subset) back to queued.
func (d *Daemon) RetryFailed(ctx context.Context, ids []string) (int64, error) {
	return d.store.RetryFailed(ctx, ids...)
}

// RemoveJob deletes a job by identifier.
func (d *Daemon) RemoveJob(ctx context.Context, id string) (bool, error) {
	return d.store.Remove(ctx, id)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (jobs.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (jobs.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// Events returns buffered events after the given sequence number. When wait is
// true and no newer events exist, the call blocks until one arrives or ctx ends.
func (d *Daemon) Events(ctx context.Context, since uint64, limit int, wait bool) ([]events.Event, uint64, error) {
	return d.hub.Fetch(ctx, since, limit, wait)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		ActiveJobs:   d.sched.ActiveJobs(),
		JobDBPath:    d.store.Path(),
		LockFilePath: d.lockPath,
		SocketPath:   d.cfg.Paths.SocketPath,
		PID:          os.Getpid(),
	}
	if summary, err := d.store.Health(ctx); err == nil {
		status.Queue = summary
	}
	if status.Running {
		status.Stages = d.pipe.Health(ctx)
	}
	return status
}
