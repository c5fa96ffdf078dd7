package notifications

import (
	"context"
	"log/slog"
	"sync"

	"claimlens/internal/events"
	"claimlens/internal/jobs"
	"claimlens/internal/logging"
)

// dispatchBuffer bounds the dispatcher's hub subscription. Notifications are
// low-volume; the buffer only has to absorb bursts while an ntfy request is
// in flight.
const dispatchBuffer = 64

// Dispatcher consumes the event hub and turns terminal job events into
// notifications, keeping delivery off the worker path. Delivery problems are
// logged, never propagated.
type Dispatcher struct {
	hub     *events.Hub
	store   *jobs.Store
	service Service
	logger  *slog.Logger

	mu   sync.Mutex
	sub  *events.Subscription
	done chan struct{}
}

// NewDispatcher builds a dispatcher over the given hub and store.
func NewDispatcher(hub *events.Hub, store *jobs.Store, service Service, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		hub:     hub,
		store:   store,
		service: service,
		logger:  logging.NewComponentLogger(logger, "notifications"),
	}
}

// Start subscribes to the hub and launches the consumer goroutine. Starting a
// running dispatcher is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.hub == nil || d.service == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sub != nil {
		return
	}
	d.sub = d.hub.Subscribe("", dispatchBuffer)
	d.done = make(chan struct{})
	go d.run(ctx, d.sub, d.done)
}

// Stop cancels the subscription and waits for the consumer to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	sub, done := d.sub, d.done
	d.sub, d.done = nil, nil
	d.mu.Unlock()
	if sub == nil {
		return
	}
	d.hub.Unsubscribe(sub)
	<-done
}

func (d *Dispatcher) run(ctx context.Context, sub *events.Subscription, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			d.dispatch(ctx, evt)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, evt events.Event) {
	switch evt.Kind {
	case events.KindJobCompleted, events.KindJobFailed:
	case events.KindEventsDropped:
		// Some terminal events were lost to a full buffer. The jobs
		// themselves are unaffected; only their notifications are.
		d.logger.Warn("notification dispatcher fell behind the event hub",
			logging.Uint64("dropped", evt.Dropped))
		return
	default:
		return
	}

	notifyCtx := context.WithoutCancel(ctx)
	job, err := d.store.GetByID(notifyCtx, evt.JobID)
	if err != nil || job == nil {
		return
	}

	switch job.Status {
	case jobs.StatusCompleted:
		results, _ := job.ResultList()
		degraded := 0
		for _, result := range results {
			if result.Degraded {
				degraded++
			}
		}
		if err := d.service.Publish(notifyCtx, EventJobCompleted, Payload{
			"source":   job.SourceRef,
			"claims":   len(results),
			"degraded": degraded,
		}); err != nil {
			d.logger.Debug("completion notification failed", logging.Error(err))
		}
	case jobs.StatusFailed:
		if err := d.service.Publish(notifyCtx, EventJobFailed, Payload{
			"source": job.SourceRef,
			"error":  job.ErrorMessage,
		}); err != nil {
			d.logger.Debug("failure notification failed", logging.Error(err))
		}
	}
}
