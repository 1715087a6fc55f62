package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suitenumerique/messages-sub000/internal/db"
)

// SearchServiceImpl normalizes raw query text into canonical filters. Every
// keystroke is mirrored to the navigator immediately so the address state
// never lags the input, but parsing and application are debounced: the filter
// only changes once typing pauses. Applying a filter equal to the current one
// is a no-op even when the raw text differs.
type SearchServiceImpl struct {
	navigator Navigator
	debounce  time.Duration
	logger    *zap.Logger

	// onApplied fires with the new filter after a debounce window settles on
	// a filter different from the current one
	onApplied func(old, new Filter)

	// history, when set, receives one row per applied search filter
	history        *db.SearchStore
	historyAccount string

	mu      sync.Mutex
	raw     string
	current Filter
	timer   *time.Timer
	closed  bool
}

// NewSearchService creates a normalizer applying filters after debounce of
// input inactivity
func NewSearchService(navigator Navigator, debounce time.Duration) *SearchServiceImpl {
	return &SearchServiceImpl{
		navigator: navigator,
		debounce:  debounce,
	}
}

// SetLogger sets the logger for debug output
func (s *SearchServiceImpl) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

// SetAppliedCallback registers the hook invoked when a settled query changes
// the filter
func (s *SearchServiceImpl) SetAppliedCallback(fn func(old, new Filter)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onApplied = fn
}

// SetHistoryStore enables search history persistence. Each applied filter
// that actually narrows the listing records one history row under account;
// intermediate keystrokes inside the debounce window never do.
func (s *SearchServiceImpl) SetHistoryStore(store *db.SearchStore, account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = store
	s.historyAccount = account
}

// SetQuery records a keystroke. The raw text reaches the navigator at once;
// the canonical filter follows after the debounce window.
func (s *SearchServiceImpl) SetQuery(query string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.raw = query
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.apply)
	nav := s.navigator
	s.mu.Unlock()

	if nav != nil {
		nav.QueryChanged(query)
	}
}

// Current returns the last applied filter
func (s *SearchServiceImpl) Current() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ApplyNow parses and applies the latest raw text immediately, bypassing the
// debounce. Used when the user submits explicitly.
func (s *SearchServiceImpl) ApplyNow() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.apply()
}

func (s *SearchServiceImpl) apply() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	next := ParseQuery(s.raw)
	if next.Signature() == s.current.Signature() {
		s.mu.Unlock()
		return
	}
	old := s.current
	s.current = next
	onApplied := s.onApplied
	history := s.history
	account := s.historyAccount
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug("search filter applied",
			zap.String("signature", next.Signature()))
	}
	if history != nil && next.IsSearch() {
		if err := history.RecordHistory(context.Background(), account, next.Signature()); err != nil && s.logger != nil {
			s.logger.Warn("failed to record search history", zap.Error(err))
		}
	}
	if onApplied != nil {
		onApplied(old, next)
	}
}

// Close stops the pending timer; a query still in its window is never applied
func (s *SearchServiceImpl) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
