package services

import (
	"go.uber.org/zap"
)

// InvalidationServiceImpl maps settled mutation effects to the cache keys
// they dirty. KeysFor is a pure function of the effect; Apply marks all
// derived keys stale in one pass so a consumer never observes a
// half-invalidated state between two keys of the same mutation.
type InvalidationServiceImpl struct {
	cache  CacheService
	logger *zap.Logger
}

// NewInvalidationService creates the coordinator over the shared cache
func NewInvalidationService(cache CacheService) *InvalidationServiceImpl {
	return &InvalidationServiceImpl{cache: cache}
}

// SetLogger sets the logger for debug output
func (i *InvalidationServiceImpl) SetLogger(logger *zap.Logger) {
	i.logger = logger
}

// KeysFor returns the cache keys dirtied by the effect.
//
// Read flags touch the mailbox's thread lists, the affected message lists,
// and the mailbox collection carrying unread counters. Trash flags touch the
// thread lists under every filter, since visibility is filter-dependent, plus
// the per-mailbox aggregate. A sent message touches the thread list and the
// parent thread's messages. Draft mutations only move the draft counter.
// Access changes touch the message lists, where accesses are embedded.
func (i *InvalidationServiceImpl) KeysFor(effect Effect) []CacheKey {
	var keys []CacheKey

	threadsAllFilters := func() {
		keys = append(keys, CacheKey{Resource: ResourceThreads, Scope: effect.MailboxID})
	}
	messages := func() {
		for _, id := range effect.ThreadIDs {
			keys = append(keys, MessagesKey(id))
		}
	}

	switch effect.Kind {
	case EffectFlagRead:
		threadsAllFilters()
		messages()
		keys = append(keys, MailboxesKey(), StatsKey(effect.MailboxID))
	case EffectFlagTrashed:
		threadsAllFilters()
		keys = append(keys, StatsKey(effect.MailboxID))
	case EffectMessageSent:
		threadsAllFilters()
		messages()
	case EffectDraftChanged:
		keys = append(keys, StatsKey(effect.MailboxID), MailboxesKey())
	case EffectAccessChanged:
		messages()
	}
	return keys
}

// Apply marks every key derived from the effect stale. A thread-list key with
// an empty filter stands for the mailbox's lists under all filter signatures.
func (i *InvalidationServiceImpl) Apply(effect Effect) {
	keys := i.KeysFor(effect)
	for _, key := range keys {
		if key.Resource == ResourceThreads && key.Filter == "" {
			scope := key.Scope
			i.cache.InvalidateWhere(func(k CacheKey) bool {
				return k.Resource == ResourceThreads && k.Scope == scope
			})
			continue
		}
		i.cache.Invalidate(key)
	}
	if i.logger != nil {
		i.logger.Debug("invalidation applied",
			zap.String("effect", string(effect.Kind)),
			zap.String("mailbox", effect.MailboxID),
			zap.Int("keys", len(keys)))
	}
}
