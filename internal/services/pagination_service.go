package services

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/suitenumerique/messages-sub000/internal/mailapi"
)

// PaginationServiceImpl implements Paginator over the thread listing
// operation. Pages land in the slot of the page index they were requested
// with, so a response arriving late can never reorder the collection.
type PaginationServiceImpl struct {
	client mailapi.Client
	logger *zap.Logger

	mu   sync.Mutex
	seqs map[CacheKey]*pageSequence
}

type pageSequence struct {
	// pages by requested page index, 1-based
	pages    map[int]*mailapi.ThreadPage
	lastPage int
	atEnd    bool
	inFlight bool
	lastErr  error
}

// NewPaginationService creates a paginator backed by the transport client
func NewPaginationService(client mailapi.Client) *PaginationServiceImpl {
	return &PaginationServiceImpl{
		client: client,
		seqs:   make(map[CacheKey]*pageSequence),
	}
}

// SetLogger sets the logger for debug output
func (p *PaginationServiceImpl) SetLogger(logger *zap.Logger) {
	p.logger = logger
}

// LoadNext fetches the next unfetched page for (mailboxID, filterSig). A call
// made while a load for the same key is outstanding returns immediately
// without issuing a duplicate request. A failed fetch leaves previously
// accumulated pages intact.
func (p *PaginationServiceImpl) LoadNext(ctx context.Context, mailboxID, filterSig string) error {
	if mailboxID == "" {
		return fmt.Errorf("mailboxID cannot be empty")
	}
	key := ThreadsKey(mailboxID, filterSig)

	p.mu.Lock()
	seq, ok := p.seqs[key]
	if !ok {
		seq = &pageSequence{pages: make(map[int]*mailapi.ThreadPage)}
		p.seqs[key] = seq
	}
	if seq.inFlight {
		// Coalesce: the outstanding request covers this call
		p.mu.Unlock()
		return nil
	}
	if seq.atEnd {
		p.mu.Unlock()
		return nil
	}
	pageNum := seq.lastPage + 1
	seq.inFlight = true
	p.mu.Unlock()

	page, err := p.client.ListThreads(ctx, mailboxID, filterSig, pageNum)

	p.mu.Lock()
	defer p.mu.Unlock()
	seq.inFlight = false
	if err != nil {
		seq.lastErr = err
		if p.logger != nil {
			p.logger.Warn("thread page fetch failed",
				zap.String("mailbox", mailboxID),
				zap.Int("page", pageNum),
				zap.Error(err))
		}
		return fmt.Errorf("failed to fetch thread page %d: %w", pageNum, err)
	}
	seq.lastErr = nil
	seq.pages[pageNum] = page
	if pageNum > seq.lastPage {
		seq.lastPage = pageNum
	}
	if page.Next == "" {
		seq.atEnd = true
	}
	return nil
}

// Refresh refetches every already-loaded page of the key in page order,
// committing each page into its original slot. Used after invalidation so the
// visible window survives a refetch.
func (p *PaginationServiceImpl) Refresh(ctx context.Context, mailboxID, filterSig string) error {
	key := ThreadsKey(mailboxID, filterSig)

	p.mu.Lock()
	seq, ok := p.seqs[key]
	if !ok || seq.lastPage == 0 {
		p.mu.Unlock()
		// Nothing fetched yet; a refresh is just the first load
		return p.LoadNext(ctx, mailboxID, filterSig)
	}
	if seq.inFlight {
		p.mu.Unlock()
		return nil
	}
	seq.inFlight = true
	last := seq.lastPage
	p.mu.Unlock()

	fetched := make(map[int]*mailapi.ThreadPage, last)
	var fetchErr error
	atEnd := false
	for n := 1; n <= last; n++ {
		page, err := p.client.ListThreads(ctx, mailboxID, filterSig, n)
		if err != nil {
			fetchErr = fmt.Errorf("failed to refresh thread page %d: %w", n, err)
			break
		}
		fetched[n] = page
		if page.Next == "" {
			atEnd = true
			break
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	seq.inFlight = false
	if fetchErr != nil {
		// Keep the old pages; the collection stays coherent, just stale
		seq.lastErr = fetchErr
		return fetchErr
	}
	seq.pages = fetched
	seq.lastPage = len(fetched)
	seq.atEnd = atEnd
	seq.lastErr = nil
	return nil
}

// Flatten folds all fetched pages in page order into one collection. Count
// and the has-more pointer come from the highest fetched page; duplicate
// thread identities collapse to their first occurrence.
func (p *PaginationServiceImpl) Flatten(mailboxID, filterSig string) *ThreadCollection {
	key := ThreadsKey(mailboxID, filterSig)

	p.mu.Lock()
	defer p.mu.Unlock()

	seq, ok := p.seqs[key]
	if !ok || seq.lastPage == 0 {
		return &ThreadCollection{}
	}

	seen := make(map[string]bool)
	var threads []*mailapi.Thread
	var count int
	hasMore := false
	for n := 1; n <= seq.lastPage; n++ {
		page, ok := seq.pages[n]
		if !ok {
			continue
		}
		for _, t := range page.Results {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			threads = append(threads, t)
		}
		count = page.Count
		hasMore = page.Next != ""
	}
	return &ThreadCollection{Threads: threads, Count: count, HasMore: hasMore}
}

// AtEnd reports whether the last fetched page said there is nothing further
func (p *PaginationServiceImpl) AtEnd(mailboxID, filterSig string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	seq, ok := p.seqs[ThreadsKey(mailboxID, filterSig)]
	return ok && seq.atEnd
}

// Loaded reports whether at least one page was fetched for the key
func (p *PaginationServiceImpl) Loaded(mailboxID, filterSig string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	seq, ok := p.seqs[ThreadsKey(mailboxID, filterSig)]
	return ok && seq.lastPage > 0
}

// LastError returns the most recent fetch error for the key, if any
func (p *PaginationServiceImpl) LastError(mailboxID, filterSig string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	seq, ok := p.seqs[ThreadsKey(mailboxID, filterSig)]
	if !ok {
		return nil
	}
	return seq.lastErr
}

// Reset discards everything accumulated for the key
func (p *PaginationServiceImpl) Reset(mailboxID, filterSig string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.seqs, ThreadsKey(mailboxID, filterSig))
}
