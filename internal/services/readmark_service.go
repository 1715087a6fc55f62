package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suitenumerique/messages-sub000/internal/mailapi"
)

// ReadMarkServiceImpl batches per-message visibility into a single debounced
// read-flag mutation. Every MarkVisible call restarts the window, so a burst
// of messages scrolling into view settles into one request. Failed flushes
// requeue their IDs and wait for the next burst; read marking is best-effort
// and never surfaces errors to the user.
type ReadMarkServiceImpl struct {
	client   mailapi.Client
	debounce time.Duration
	logger   *zap.Logger

	// onFlushed, when set, is invoked with the flushed message IDs after a
	// successful mutation so the owner can invalidate derived state
	onFlushed func(messageIDs []string)

	mu       sync.Mutex
	queue    map[string]bool
	timer    *time.Timer
	flushing bool
	closed   bool
}

// NewReadMarkService creates a read marker flushing through client after
// debounce of queue inactivity
func NewReadMarkService(client mailapi.Client, debounce time.Duration) *ReadMarkServiceImpl {
	return &ReadMarkServiceImpl{
		client:   client,
		debounce: debounce,
		queue:    make(map[string]bool),
	}
}

// SetLogger sets the logger for debug output
func (r *ReadMarkServiceImpl) SetLogger(logger *zap.Logger) {
	r.logger = logger
}

// SetFlushedCallback registers the hook invoked after each successful flush
func (r *ReadMarkServiceImpl) SetFlushedCallback(fn func(messageIDs []string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFlushed = fn
}

// MarkVisible queues a message for read marking and restarts the debounce
// window. Queueing the same message twice is a no-op; the queue is a set.
func (r *ReadMarkServiceImpl) MarkVisible(messageID string) {
	if messageID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.queue[messageID] = true
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, r.flush)
}

// Pending returns a snapshot of the queued message IDs
func (r *ReadMarkServiceImpl) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.queue))
	for id := range r.queue {
		ids = append(ids, id)
	}
	return ids
}

// flush drains the queue into one mutation. On failure the IDs go back into
// the queue without rescheduling; the retry rides on the next visibility
// event's window.
func (r *ReadMarkServiceImpl) flush() {
	r.mu.Lock()
	if r.closed || r.flushing || len(r.queue) == 0 {
		r.mu.Unlock()
		return
	}
	r.flushing = true
	ids := make([]string, 0, len(r.queue))
	for id := range r.queue {
		ids = append(ids, id)
	}
	r.queue = make(map[string]bool)
	onFlushed := r.onFlushed
	r.mu.Unlock()

	err := r.client.SetFlag(context.Background(), mailapi.FlagUnread, false, nil, ids)

	r.mu.Lock()
	r.flushing = false
	if err != nil {
		// Requeue; entries marked visible during the flush stay queued too
		for _, id := range ids {
			r.queue[id] = true
		}
	}
	closed := r.closed
	r.mu.Unlock()

	if err != nil {
		if r.logger != nil {
			r.logger.Warn("read mark flush failed, requeued",
				zap.Int("messages", len(ids)),
				zap.Error(err))
		}
		return
	}
	if r.logger != nil {
		r.logger.Debug("read mark flushed", zap.Int("messages", len(ids)))
	}
	if onFlushed != nil && !closed {
		onFlushed(ids)
	}
}

// Close stops the pending timer without flushing. The queue is deliberately
// dropped: tearing down the view must not fire mutations for messages whose
// visibility was never dwelled on.
func (r *ReadMarkServiceImpl) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.queue = make(map[string]bool)
}
