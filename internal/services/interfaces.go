package services

import (
	"context"
	"time"

	"github.com/suitenumerique/messages-sub000/internal/mailapi"
)

// ResourceType identifies a cached resource family
type ResourceType string

const (
	ResourceMailboxes ResourceType = "mailboxes"
	ResourceThreads   ResourceType = "threads"
	ResourceMessages  ResourceType = "messages"
	// ResourceStats is the per-mailbox aggregate (draft counters and friends),
	// refreshed through the mailbox listing
	ResourceStats ResourceType = "stats"
)

// CacheKey addresses one cache entry. Scope is the owning entity (mailbox ID
// for thread lists, thread ID for message lists) and Filter the canonical
// filter signature that produced the entry.
type CacheKey struct {
	Resource ResourceType
	Scope    string
	Filter   string
}

// MailboxesKey addresses the mailbox collection
func MailboxesKey() CacheKey {
	return CacheKey{Resource: ResourceMailboxes}
}

// ThreadsKey addresses a mailbox's thread list under a filter signature
func ThreadsKey(mailboxID, filterSig string) CacheKey {
	return CacheKey{Resource: ResourceThreads, Scope: mailboxID, Filter: filterSig}
}

// MessagesKey addresses a thread's message list
func MessagesKey(threadID string) CacheKey {
	return CacheKey{Resource: ResourceMessages, Scope: threadID}
}

// StatsKey addresses a mailbox's aggregate counters
func StatsKey(mailboxID string) CacheKey {
	return CacheKey{Resource: ResourceStats, Scope: mailboxID}
}

// CacheEntry is a read-only snapshot of a cached value. Staleness only marks
// that the next read should refetch; the payload itself is never touched.
type CacheEntry struct {
	Value     interface{}
	Stale     bool
	FetchedAt time.Time
}

// CacheService is the single shared mutable store. Payloads are stored as
// immutable snapshots; writers replace entries wholesale, never mutate them.
type CacheService interface {
	Get(key CacheKey) (CacheEntry, bool)
	Put(key CacheKey, value interface{})
	Invalidate(key CacheKey)
	InvalidateScope(resource ResourceType, scope string)
	InvalidateWhere(pred func(CacheKey) bool)
	Drop(key CacheKey)
	DropWhere(pred func(CacheKey) bool)
}

// Paginator accumulates sequential thread pages into one logical collection
type Paginator interface {
	// LoadNext fetches the next unfetched page for the key; a call while a
	// load for the same key is outstanding coalesces into it.
	LoadNext(ctx context.Context, mailboxID, filterSig string) error
	// Refresh refetches every already-loaded page of the key in order
	Refresh(ctx context.Context, mailboxID, filterSig string) error
	// Flatten folds fetched pages in page order into one collection
	Flatten(mailboxID, filterSig string) *ThreadCollection
	// AtEnd reports whether the server said there is no further page
	AtEnd(mailboxID, filterSig string) bool
	// Loaded reports whether at least one page was fetched for the key
	Loaded(mailboxID, filterSig string) bool
	// Reset discards all accumulated pages for the key
	Reset(mailboxID, filterSig string)
}

// ThreadCollection is the flattened view over all fetched pages. Count and
// HasMore come from the most recently fetched page, the most authoritative
// values.
type ThreadCollection struct {
	Threads []*mailapi.Thread
	Count   int
	HasMore bool
}

// SelectionState is the derived selection; empty strings mean nothing is
// selected. It is never authoritative on its own.
type SelectionState struct {
	MailboxID string
	ThreadID  string
}

// Resolution is the outcome of one selection pass
type Resolution struct {
	Selection SelectionState
	// MailboxChanged is true when the resolved mailbox identity differs from
	// the previous resolution
	MailboxChanged bool
	// ThreadChanged is true when the resolved thread identity differs
	ThreadChanged bool
	// ThreadContentChanged is true when the selected thread's update
	// timestamp moved, so its message list must be refetched
	ThreadContentChanged bool
	// ThreadPending is true when the candidate thread is absent but the
	// collection is not fully paginated, so absence is not yet conclusive
	ThreadPending bool
	// NeedsReplace is true when the candidate could not be honored and the
	// navigation state should be corrected via a replace
	NeedsReplace bool
}

// ReadMarker batches visibility events into one debounced read-mark mutation
type ReadMarker interface {
	MarkVisible(messageID string)
	// Pending returns a snapshot of queued message IDs
	Pending() []string
	Close()
}

// DraftState is the lifecycle state of one compose session
type DraftState string

const (
	DraftStateNew          DraftState = "new"
	DraftStateCreating     DraftState = "creating"
	DraftStateSaved        DraftState = "saved"
	DraftStateUpdating     DraftState = "updating"
	DraftStateTransferring DraftState = "transferring"
)

// DraftForm is the compose form snapshot handed to the draft manager
type DraftForm struct {
	SenderMailboxID string
	ParentID        string
	To              []string
	CC              []string
	BCC             []string
	Subject         string
	// DraftBody is the editor's HTML blob, recreated wholesale on each save
	DraftBody string
}

// DraftManager owns the create/update/transfer state machine of compose
// sessions
type DraftManager interface {
	NewSession(senderMailboxID, parentID string) string
	SaveDraft(ctx context.Context, sessionID string, form DraftForm) (*mailapi.Message, error)
	Send(ctx context.Context, sessionID string, form DraftForm) (*mailapi.SendTask, error)
	State(sessionID string) (DraftState, error)
	Draft(sessionID string) (*mailapi.Message, error)
	DiscardSession(ctx context.Context, sessionID string) error
}

// EffectKind names a mutation outcome for the invalidation mapping
type EffectKind string

const (
	EffectFlagRead      EffectKind = "flag_read"
	EffectFlagTrashed   EffectKind = "flag_trashed"
	EffectMessageSent   EffectKind = "message_sent"
	EffectDraftChanged  EffectKind = "draft_changed"
	EffectAccessChanged EffectKind = "access_changed"
)

// Effect describes a settled mutation for the invalidation coordinator
type Effect struct {
	Kind      EffectKind
	MailboxID string
	FilterSig string
	ThreadIDs []string
}

// Invalidator maps mutation effects to cache keys and applies them
// transactionally
type Invalidator interface {
	KeysFor(effect Effect) []CacheKey
	Apply(effect Effect)
}

// SearchNormalizer turns raw query text into a canonical filter, debouncing
// the expensive application while letting every keystroke through to the
// navigation state
type SearchNormalizer interface {
	SetQuery(query string)
	// Current returns the last applied filter
	Current() Filter
	Close()
}

// Navigator is the navigation collaborator: the engine is told the current
// identifiers through Navigate and corrects them through these calls
type Navigator interface {
	// Replace asks for a history-replacing navigation to the given selection
	Replace(mailboxID, threadID string)
	// QueryChanged mirrors the raw search text into the address state; called
	// on every keystroke, never debounced
	QueryChanged(query string)
}

// VisibilityEvent reports a message element entering or leaving the viewport
type VisibilityEvent struct {
	MessageID string
	Visible   bool
}

// ViewportTracker abstracts the platform's intersection detection. Observe
// and Unobserve manage tracked elements; Events delivers their visibility
// transitions.
type ViewportTracker interface {
	Observe(messageID string)
	Unobserve(messageID string)
	Events() <-chan VisibilityEvent
	Close()
}

// ResourceStatus is the per-resource load state surfaced to the UI
type ResourceStatus struct {
	Loading      bool
	Err          error
	LastSyncedAt time.Time
}

// ThreadView is the thread collection handed to the UI collaborator
type ThreadView struct {
	Threads []*mailapi.Thread
	Count   int
	HasMore bool
	Status  ResourceStatus
}

// MessageView is the message collection of the selected thread
type MessageView struct {
	Messages []*mailapi.Message
	Count    int
	Status   ResourceStatus
}
