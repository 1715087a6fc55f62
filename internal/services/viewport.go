package services

import (
	"sync"
)

// ChannelViewportTracker is a ViewportTracker fed by explicit Report calls.
// The rendering host reports element transitions; only observed message IDs
// pass through to the events channel. Events for unobserved IDs are dropped
// rather than queued, matching how intersection callbacks behave for
// untracked elements.
type ChannelViewportTracker struct {
	mu       sync.Mutex
	observed map[string]bool
	events   chan VisibilityEvent
	closed   bool
}

// NewChannelViewportTracker creates a tracker with a buffered event channel
func NewChannelViewportTracker() *ChannelViewportTracker {
	return &ChannelViewportTracker{
		observed: make(map[string]bool),
		events:   make(chan VisibilityEvent, 64),
	}
}

// Observe starts tracking a message element
func (t *ChannelViewportTracker) Observe(messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.observed[messageID] = true
}

// Unobserve stops tracking a message element
func (t *ChannelViewportTracker) Unobserve(messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.observed, messageID)
}

// Report feeds one visibility transition into the tracker. Transitions for
// unobserved IDs are ignored; a full channel drops the event rather than
// blocking the renderer.
func (t *ChannelViewportTracker) Report(messageID string, visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || !t.observed[messageID] {
		return
	}
	select {
	case t.events <- VisibilityEvent{MessageID: messageID, Visible: visible}:
	default:
	}
}

// Events returns the visibility transition stream
func (t *ChannelViewportTracker) Events() <-chan VisibilityEvent {
	return t.events
}

// Close stops the tracker and closes the event stream
func (t *ChannelViewportTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.observed = make(map[string]bool)
	close(t.events)
}
