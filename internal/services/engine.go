package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suitenumerique/messages-sub000/internal/config"
	"github.com/suitenumerique/messages-sub000/internal/db"
	"github.com/suitenumerique/messages-sub000/internal/mailapi"
)

// Engine is the synchronization facade tying the cache, paginator, selection
// resolver, read marker, draft manager, invalidation coordinator and search
// normalizer into one consistent surface. All view-facing state is derived:
// the engine is told candidate identifiers through Navigate, resolves them
// against the cache, and corrects the navigator when they cannot be honored.
type Engine struct {
	client    mailapi.Client
	navigator Navigator
	cfg       *config.Config
	logger    *zap.Logger

	cache       *CacheServiceImpl
	paginator   *PaginationServiceImpl
	selection   *SelectionServiceImpl
	readMarker  *ReadMarkServiceImpl
	drafts      *DraftServiceImpl
	invalidator *InvalidationServiceImpl
	search      *SearchServiceImpl
	viewport    *ChannelViewportTracker

	// onLogout fires once on the first authentication failure outside the
	// send-task poller
	onLogout func()

	mu        sync.Mutex
	candidate SelectionState
	resolved  SelectionState
	// msgGen guards against stale message fetches: a response only commits
	// when its generation still matches the thread selected now
	msgGen uint64
	// readMarkOrigins remembers which thread and mailbox each observed
	// message came from, so a flush settling after a navigation still
	// invalidates the right keys
	readMarkOrigins map[string]readMarkOrigin
	statuses        map[ResourceType]*ResourceStatus
	loggedOut       bool
	closed          bool
	cancelBg        context.CancelFunc
	bgDone          sync.WaitGroup
	pollersRun      bool
}

// NewEngine assembles an engine over the transport client and navigation
// collaborator. Background pollers do not run until Start is called.
func NewEngine(client mailapi.Client, navigator Navigator, cfg *config.Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		client:          client,
		navigator:       navigator,
		cfg:             cfg,
		logger:          logger,
		cache:           NewCacheService(),
		paginator:       NewPaginationService(client),
		selection:       NewSelectionService(),
		drafts:          NewDraftService(client),
		viewport:        NewChannelViewportTracker(),
		readMarkOrigins: make(map[string]readMarkOrigin),
		statuses:        make(map[ResourceType]*ResourceStatus),
	}
	e.invalidator = NewInvalidationService(e.cache)
	e.readMarker = NewReadMarkService(client, cfg.ReadMarkDebounce())
	e.search = NewSearchService(navigator, cfg.SearchDebounce())

	e.cache.SetLogger(logger)
	e.paginator.SetLogger(logger)
	e.selection.SetLogger(logger)
	e.drafts.SetLogger(logger)
	e.invalidator.SetLogger(logger)
	e.readMarker.SetLogger(logger)
	e.search.SetLogger(logger)

	e.readMarker.SetFlushedCallback(e.handleReadFlush)
	e.drafts.SetDraftChangedCallback(e.handleDraftChanged)
	e.search.SetAppliedCallback(e.handleFilterChanged)
	return e
}

// SetLogoutCallback registers the forced-logout hook for authentication
// failures
func (e *Engine) SetLogoutCallback(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onLogout = fn
}

// Drafts exposes the draft manager for compose surfaces
func (e *Engine) Drafts() DraftManager { return e.drafts }

// Search exposes the search normalizer for the query input
func (e *Engine) Search() *SearchServiceImpl { return e.search }

// SetHistoryStore enables search history persistence for the engine's search
// normalizer
func (e *Engine) SetHistoryStore(store *db.SearchStore, account string) {
	e.search.SetHistoryStore(store, account)
}

// Viewport exposes the visibility tracker for the rendering host
func (e *Engine) Viewport() *ChannelViewportTracker { return e.viewport }

// MarkVisible queues a message for read marking, bypassing the viewport
// tracker. Hosts without intersection detection call this directly.
func (e *Engine) MarkVisible(messageID string) {
	e.readMarker.MarkVisible(messageID)
}

// Start launches the background loops: mailbox polling, viewport event
// consumption. It is idempotent.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.pollersRun {
		return
	}
	e.pollersRun = true
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelBg = cancel

	e.bgDone.Add(2)
	go e.pollMailboxes(ctx)
	go e.consumeViewport(ctx)
}

// Navigate records candidate identifiers and synchronizes the derived state:
// mailboxes are ensured, the first thread page of the active filter is
// ensured, the selection is resolved, and the selected thread's messages are
// fetched. Corrections go back through the navigator as replaces.
func (e *Engine) Navigate(ctx context.Context, mailboxID, threadID string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	e.candidate = SelectionState{MailboxID: mailboxID, ThreadID: threadID}
	e.mu.Unlock()

	return e.sync(ctx)
}

// LoadMore fetches the next thread page of the active mailbox and filter,
// then re-resolves the selection, since a pending thread candidate may be on
// the new page
func (e *Engine) LoadMore(ctx context.Context) error {
	e.mu.Lock()
	mailboxID := e.resolved.MailboxID
	e.mu.Unlock()
	if mailboxID == "" {
		return ErrNoMailbox
	}

	sig := e.search.Current().Signature()
	if err := e.paginator.LoadNext(ctx, mailboxID, sig); err != nil {
		return err
	}
	e.commitThreads(mailboxID, sig)
	return e.sync(ctx)
}

// sync is one full resolution pass
func (e *Engine) sync(ctx context.Context) error {
	mailboxes, err := e.ensureMailboxes(ctx)
	if err != nil {
		e.checkAuth(err)
		return err
	}

	e.mu.Lock()
	candidate := e.candidate
	e.mu.Unlock()

	sig := e.search.Current().Signature()
	mailboxID := candidate.MailboxID
	if mailboxID == "" && len(mailboxes) > 0 {
		mailboxID = mailboxes[0].ID
	}

	if mailboxID != "" {
		if err := e.ensureThreads(ctx, mailboxID, sig); err != nil {
			e.checkAuth(err)
			return err
		}
	}

	threads := e.paginator.Flatten(mailboxID, sig)
	atEnd := e.paginator.AtEnd(mailboxID, sig)
	res := e.selection.Resolve(candidate, mailboxes, threads, atEnd)

	e.mu.Lock()
	e.resolved = res.Selection
	e.mu.Unlock()

	if res.NeedsReplace && e.navigator != nil {
		e.navigator.Replace(res.Selection.MailboxID, res.Selection.ThreadID)
	}

	if res.ThreadContentChanged {
		// The thread's update timestamp moved; the cached message list no
		// longer reflects it
		e.cache.Invalidate(MessagesKey(res.Selection.ThreadID))
	}

	// fetchMessages serves fresh cache hits without a request, so calling it
	// on every pass costs nothing and picks up any staleness marked since
	// the last one
	if res.Selection.ThreadID != "" {
		if err := e.fetchMessages(ctx, res.Selection.ThreadID); err != nil {
			e.checkAuth(err)
			return err
		}
	}
	return nil
}

// ensureMailboxes serves the mailbox list from cache unless missing or stale
func (e *Engine) ensureMailboxes(ctx context.Context) ([]*mailapi.Mailbox, error) {
	key := MailboxesKey()
	if entry, ok := e.cache.Get(key); ok && !entry.Stale {
		return entry.Value.([]*mailapi.Mailbox), nil
	}

	e.setLoading(ResourceMailboxes, true)
	mailboxes, err := e.client.ListMailboxes(ctx)
	if err != nil {
		e.setError(ResourceMailboxes, err)
		// A stale copy is still a coherent copy
		if entry, ok := e.cache.Get(key); ok {
			return entry.Value.([]*mailapi.Mailbox), err
		}
		return nil, err
	}
	e.cache.Put(key, mailboxes)
	for _, mb := range mailboxes {
		e.cache.Put(StatsKey(mb.ID), mb)
	}
	e.setSynced(ResourceMailboxes)
	return mailboxes, nil
}

// ensureThreads guarantees at least one fetched page for the key, refreshing
// loaded pages when the cache entry went stale
func (e *Engine) ensureThreads(ctx context.Context, mailboxID, sig string) error {
	key := ThreadsKey(mailboxID, sig)
	entry, ok := e.cache.Get(key)
	loaded := e.paginator.Loaded(mailboxID, sig)

	switch {
	case !ok || !loaded:
		e.setLoading(ResourceThreads, true)
		if err := e.paginator.LoadNext(ctx, mailboxID, sig); err != nil {
			e.setError(ResourceThreads, err)
			return err
		}
	case entry.Stale:
		e.setLoading(ResourceThreads, true)
		if err := e.paginator.Refresh(ctx, mailboxID, sig); err != nil {
			e.setError(ResourceThreads, err)
			return err
		}
	default:
		return nil
	}
	e.commitThreads(mailboxID, sig)
	e.setSynced(ResourceThreads)
	return nil
}

func (e *Engine) commitThreads(mailboxID, sig string) {
	e.cache.Put(ThreadsKey(mailboxID, sig), e.paginator.Flatten(mailboxID, sig))
}

// fetchMessages loads the selected thread's messages. The generation counter
// taken before the request must still match when the response lands;
// otherwise the user has moved on and the response is discarded.
func (e *Engine) fetchMessages(ctx context.Context, threadID string) error {
	key := MessagesKey(threadID)
	if entry, ok := e.cache.Get(key); ok && !entry.Stale {
		return nil
	}

	e.mu.Lock()
	e.msgGen++
	gen := e.msgGen
	e.mu.Unlock()

	e.setLoading(ResourceMessages, true)
	msgs, err := e.client.ListMessages(ctx, threadID)

	e.mu.Lock()
	stale := gen != e.msgGen || e.resolved.ThreadID != threadID
	e.mu.Unlock()
	if stale {
		e.logger.Debug("discarding stale message response",
			zap.String("thread", threadID))
		return nil
	}
	if err != nil {
		e.setError(ResourceMessages, err)
		return err
	}
	e.cache.Put(key, msgs)
	e.setSynced(ResourceMessages)

	// Newly visible messages get observed for read marking. Their origin is
	// pinned now: a flush settling after the user navigates away must still
	// invalidate the keys of the thread they were read in.
	e.mu.Lock()
	mailboxID := e.resolved.MailboxID
	e.mu.Unlock()
	for _, m := range msgs.Results {
		if m.IsUnread() {
			e.viewport.Observe(m.ID)
			e.mu.Lock()
			e.readMarkOrigins[m.ID] = readMarkOrigin{threadID: threadID, mailboxID: mailboxID}
			e.mu.Unlock()
		}
	}
	return nil
}

type readMarkOrigin struct {
	threadID  string
	mailboxID string
}

// Threads returns the flattened thread view of the active mailbox and filter
func (e *Engine) Threads() ThreadView {
	e.mu.Lock()
	mailboxID := e.resolved.MailboxID
	e.mu.Unlock()

	sig := e.search.Current().Signature()
	col := e.paginator.Flatten(mailboxID, sig)
	return ThreadView{
		Threads: col.Threads,
		Count:   col.Count,
		HasMore: col.HasMore,
		Status:  e.status(ResourceThreads),
	}
}

// Messages returns the message view of the selected thread
func (e *Engine) Messages() MessageView {
	e.mu.Lock()
	threadID := e.resolved.ThreadID
	e.mu.Unlock()

	view := MessageView{Status: e.status(ResourceMessages)}
	if threadID == "" {
		return view
	}
	if entry, ok := e.cache.Get(MessagesKey(threadID)); ok {
		list := entry.Value.(*mailapi.MessageList)
		view.Messages = list.Results
		view.Count = len(list.Results)
	}
	return view
}

// Mailboxes returns the cached mailbox list
func (e *Engine) Mailboxes() []*mailapi.Mailbox {
	if entry, ok := e.cache.Get(MailboxesKey()); ok {
		return entry.Value.([]*mailapi.Mailbox)
	}
	return nil
}

// Selection returns the current resolved selection
func (e *Engine) Selection() SelectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolved
}

// SetThreadFlag flags or unflags whole threads and applies the derived
// invalidations
func (e *Engine) SetThreadFlag(ctx context.Context, flag mailapi.Flag, value bool, threadIDs []string) error {
	if err := e.client.SetFlag(ctx, flag, value, threadIDs, nil); err != nil {
		e.checkAuth(err)
		return err
	}

	e.mu.Lock()
	mailboxID := e.resolved.MailboxID
	e.mu.Unlock()

	kind := EffectFlagRead
	if flag == mailapi.FlagTrashed {
		kind = EffectFlagTrashed
	}
	e.invalidator.Apply(Effect{Kind: kind, MailboxID: mailboxID, ThreadIDs: threadIDs})
	return e.sync(ctx)
}

// SendDraft submits the session's draft and polls its task to completion.
// Authentication failures while polling do not force a logout: the send may
// well have succeeded, and killing the session on the poll would lose that.
func (e *Engine) SendDraft(ctx context.Context, sessionID string, form DraftForm) (*mailapi.SendTask, error) {
	task, err := e.drafts.Send(ctx, sessionID, form)
	if err != nil {
		e.checkAuth(err)
		return nil, err
	}

	final, err := e.pollTask(ctx, task.TaskID)
	if err != nil {
		return task, err
	}

	e.mu.Lock()
	mailboxID := e.resolved.MailboxID
	threadID := e.resolved.ThreadID
	e.mu.Unlock()
	e.invalidator.Apply(Effect{
		Kind:      EffectMessageSent,
		MailboxID: mailboxID,
		ThreadIDs: []string{threadID},
	})
	if err := e.sync(ctx); err != nil {
		return final, err
	}
	return final, nil
}

func (e *Engine) pollTask(ctx context.Context, taskID string) (*mailapi.SendTask, error) {
	interval := e.cfg.SendPollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := e.client.GetTask(ctx, taskID)
		if err != nil {
			if mailapi.IsAuth(err) {
				// Deliberately no forced logout here
				return nil, err
			}
			if !IsRetryableError(err) {
				return nil, err
			}
		} else if task.State != mailapi.TaskPending {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// handleReadFlush applies the invalidations of a settled read-mark mutation.
// The dirtied keys come from where the messages were observed, not from the
// current selection: the user may have navigated away during the debounce
// window.
func (e *Engine) handleReadFlush(messageIDs []string) {
	e.mu.Lock()
	fallback := readMarkOrigin{threadID: e.resolved.ThreadID, mailboxID: e.resolved.MailboxID}
	byMailbox := make(map[string]map[string]bool)
	for _, id := range messageIDs {
		origin, ok := e.readMarkOrigins[id]
		if !ok {
			origin = fallback
		}
		delete(e.readMarkOrigins, id)
		if byMailbox[origin.mailboxID] == nil {
			byMailbox[origin.mailboxID] = make(map[string]bool)
		}
		if origin.threadID != "" {
			byMailbox[origin.mailboxID][origin.threadID] = true
		}
	}
	e.mu.Unlock()

	for mailboxID, threads := range byMailbox {
		threadIDs := make([]string, 0, len(threads))
		for id := range threads {
			threadIDs = append(threadIDs, id)
		}
		e.invalidator.Apply(Effect{
			Kind:      EffectFlagRead,
			MailboxID: mailboxID,
			ThreadIDs: threadIDs,
		})
	}
	for _, id := range messageIDs {
		e.viewport.Unobserve(id)
	}
	e.resync()
}

// handleDraftChanged moves the draft counters of the touched mailboxes
func (e *Engine) handleDraftChanged(mailboxIDs []string) {
	for _, id := range mailboxIDs {
		e.invalidator.Apply(Effect{Kind: EffectDraftChanged, MailboxID: id})
	}
	e.resync()
}

// resync runs a resolution pass after invalidations that settled outside a
// user action, so derived views pick up fresh data without waiting for the
// next navigation
func (e *Engine) resync() {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	if err := e.sync(context.Background()); err != nil {
		e.logger.Warn("background resync failed", zap.Error(err))
	}
}

// handleFilterChanged resets search-derived state when the settled query
// changes the filter. Only search-scoped entries are dropped; the plain
// mailbox listing survives so clearing the query is instant.
func (e *Engine) handleFilterChanged(old, next Filter) {
	e.mu.Lock()
	mailboxID := e.resolved.MailboxID
	e.mu.Unlock()

	if old.IsSearch() {
		oldSig := old.Signature()
		e.cache.DropWhere(func(k CacheKey) bool {
			return k.Resource == ResourceThreads && k.Filter == oldSig
		})
		if mailboxID != "" {
			e.paginator.Reset(mailboxID, oldSig)
		}
	}
	// A search narrows the collection, so the old thread selection may not
	// exist under the new filter; resolution starts over.
	e.selection.ResetThread()
	e.logger.Debug("filter changed",
		zap.String("signature", next.Signature()))
}

// consumeViewport feeds visibility transitions into the read marker
func (e *Engine) consumeViewport(ctx context.Context) {
	defer e.bgDone.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.viewport.Events():
			if !ok {
				return
			}
			if ev.Visible {
				e.readMarker.MarkVisible(ev.MessageID)
			}
		}
	}
}

// pollMailboxes refreshes the mailbox collection on the configured interval
func (e *Engine) pollMailboxes(ctx context.Context) {
	defer e.bgDone.Done()
	interval := e.cfg.MailboxPollInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.cache.Invalidate(MailboxesKey())
			if _, err := e.ensureMailboxes(ctx); err != nil {
				e.checkAuth(err)
				e.logger.Warn("mailbox poll failed", zap.Error(err))
			}
		}
	}
}

// checkAuth fires the forced-logout hook once on the first authentication
// failure
func (e *Engine) checkAuth(err error) {
	if !mailapi.IsAuth(err) {
		return
	}
	e.mu.Lock()
	if e.loggedOut {
		e.mu.Unlock()
		return
	}
	e.loggedOut = true
	onLogout := e.onLogout
	e.mu.Unlock()

	e.logger.Warn("authentication failure, forcing logout")
	if onLogout != nil {
		onLogout()
	}
}

func (e *Engine) setLoading(r ResourceType, loading bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.statusLocked(r)
	s.Loading = loading
}

func (e *Engine) setError(r ResourceType, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.statusLocked(r)
	s.Loading = false
	s.Err = err
}

func (e *Engine) setSynced(r ResourceType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.statusLocked(r)
	s.Loading = false
	s.Err = nil
	s.LastSyncedAt = time.Now()
}

func (e *Engine) statusLocked(r ResourceType) *ResourceStatus {
	s, ok := e.statuses[r]
	if !ok {
		s = &ResourceStatus{}
		e.statuses[r] = s
	}
	return s
}

func (e *Engine) status(r ResourceType) ResourceStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.statuses[r]; ok {
		return *s
	}
	return ResourceStatus{}
}

// Close stops the background loops and the debounce timers. Pending read
// marks are dropped, not flushed.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	cancel := e.cancelBg
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.viewport.Close()
	e.bgDone.Wait()
	e.readMarker.Close()
	e.search.Close()
}
