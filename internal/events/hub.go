package events

import (
	"context"
	"sync"
	"time"
)

const defaultSubscriptionBuffer = 64

// Hub stores recent job events and wakes waiters when new events arrive.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
	subs     map[*Subscription]struct{}
}

// NewHub constructs a bounded in-memory event fan-out buffer.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 512
	}
	h := &Hub{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Subscription delivers events over a bounded channel. Events arrive on C;
// after a terminal event for a job-scoped subscription, or after Close, the
// channel is closed.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	jobID   string
	dropped uint64
	closed  bool
}

// Subscribe registers a subscriber for every published event. A non-empty
// jobID restricts delivery to that job's events and closes the channel once
// the job reaches a terminal state. A buffer <= 0 uses the default size.
func (h *Hub) Subscribe(jobID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	sub := &Subscription{
		ch:    make(chan Event, buffer),
		jobID: jobID,
	}
	sub.C = sub.ch

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if h == nil || sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeSubLocked(sub)
}

func (h *Hub) closeSubLocked(sub *Subscription) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// Publish appends a new event to the hub and fans it out. Publish never
// blocks: subscribers whose buffers are full lose the event and later
// receive a drop marker.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	h.cond.Broadcast()

	for sub := range h.subs {
		if sub.jobID != "" && sub.jobID != evt.JobID {
			continue
		}
		if evt.Terminal() && sub.jobID != "" {
			h.deliverFinalLocked(sub, evt)
			h.closeSubLocked(sub)
			continue
		}
		h.deliverLocked(sub, evt)
	}
}

func (h *Hub) deliverLocked(sub *Subscription, evt Event) {
	if sub.closed {
		return
	}
	if sub.dropped > 0 {
		// Need two free slots: the drop marker and the event itself.
		if cap(sub.ch)-len(sub.ch) >= 2 {
			sub.ch <- Event{
				Timestamp: time.Now().UTC(),
				Kind:      KindEventsDropped,
				JobID:     sub.jobID,
				Dropped:   sub.dropped,
			}
			sub.dropped = 0
		} else {
			sub.dropped++
			return
		}
	}
	select {
	case sub.ch <- evt:
	default:
		sub.dropped++
	}
}

// deliverFinalLocked guarantees a job-scoped subscriber observes its
// terminal event before the channel closes, evicting the oldest queued
// events when the buffer is full. Evictions are reported with a drop marker
// when a second slot can be freed for one.
func (h *Hub) deliverFinalLocked(sub *Subscription, evt Event) {
	if sub.closed {
		return
	}
	if sub.dropped == 0 {
		select {
		case sub.ch <- evt:
			return
		default:
		}
	}
	want := 1
	if cap(sub.ch) >= 2 {
		want = 2
	}
	for cap(sub.ch)-len(sub.ch) < want {
		select {
		case <-sub.ch:
			sub.dropped++
		default:
			// The reader drained concurrently; re-check capacity.
		}
	}
	if sub.dropped > 0 && cap(sub.ch)-len(sub.ch) >= 2 {
		sub.ch <- Event{
			Timestamp: time.Now().UTC(),
			Kind:      KindEventsDropped,
			JobID:     sub.jobID,
			Dropped:   sub.dropped,
		}
		sub.dropped = 0
	}
	sub.ch <- evt
}

// Fetch returns all events with sequence greater than since. When wait is
// true, Fetch blocks until at least one event is available or the context
// ends.
func (h *Hub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.cond.Broadcast()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		out, next := h.snapshotLocked(since, limit)
		if len(out) > 0 || !wait {
			return out, next, contextError(ctx)
		}
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
	}
}

// Tail returns the most recent limit events without blocking.
func (h *Hub) Tail(limit int) ([]Event, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buffer) == 0 {
		return nil, h.nextSeq
	}
	start := len(h.buffer) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Event, len(h.buffer)-start)
	copy(out, h.buffer[start:])
	return out, h.nextSeq
}

// FirstSequence reports the smallest sequence number still buffered.
func (h *Hub) FirstSequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buffer) == 0 {
		return h.nextSeq
	}
	return h.buffer[0].Sequence
}

func (h *Hub) snapshotLocked(since uint64, limit int) ([]Event, uint64) {
	if len(h.buffer) == 0 {
		return nil, h.nextSeq
	}
	startIdx := 0
	for i, evt := range h.buffer {
		if evt.Sequence > since {
			startIdx = i
			break
		}
		if i == len(h.buffer)-1 {
			return nil, h.nextSeq
		}
	}
	end := startIdx + limit
	if end > len(h.buffer) {
		end = len(h.buffer)
	}
	out := make([]Event, end-startIdx)
	copy(out, h.buffer[startIdx:end])
	// The cursor is the last delivered sequence, not the newest buffered
	// one; a limit-truncated batch must not skip the events in between.
	return out, out[len(out)-1].Sequence
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
