package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededCache() *CacheServiceImpl {
	cache := NewCacheService()
	cache.Put(MailboxesKey(), "mailboxes")
	cache.Put(ThreadsKey("mb1", ""), "threads-plain")
	cache.Put(ThreadsKey("mb1", "is:unread"), "threads-unread")
	cache.Put(ThreadsKey("mb2", ""), "threads-other")
	cache.Put(MessagesKey("t1"), "messages-t1")
	cache.Put(MessagesKey("t2"), "messages-t2")
	cache.Put(StatsKey("mb1"), "stats-mb1")
	cache.Put(StatsKey("mb2"), "stats-mb2")
	return cache
}

func staleSet(cache *CacheServiceImpl) map[CacheKey]bool {
	out := make(map[CacheKey]bool)
	for _, k := range cache.StaleKeys() {
		out[k] = true
	}
	return out
}

func TestInvalidation_FlagRead(t *testing.T) {
	cache := seededCache()
	inv := NewInvalidationService(cache)

	inv.Apply(Effect{Kind: EffectFlagRead, MailboxID: "mb1", ThreadIDs: []string{"t1"}})

	stale := staleSet(cache)
	assert.True(t, stale[ThreadsKey("mb1", "")])
	assert.True(t, stale[ThreadsKey("mb1", "is:unread")], "every filter of the mailbox is dirtied")
	assert.True(t, stale[MessagesKey("t1")])
	assert.True(t, stale[MailboxesKey()], "unread counters live on the mailbox collection")
	assert.False(t, stale[ThreadsKey("mb2", "")])
	assert.False(t, stale[MessagesKey("t2")])
}

func TestInvalidation_FlagTrashed(t *testing.T) {
	cache := seededCache()
	inv := NewInvalidationService(cache)

	inv.Apply(Effect{Kind: EffectFlagTrashed, MailboxID: "mb1", ThreadIDs: []string{"t1"}})

	stale := staleSet(cache)
	assert.True(t, stale[ThreadsKey("mb1", "")])
	assert.True(t, stale[ThreadsKey("mb1", "is:unread")])
	assert.True(t, stale[StatsKey("mb1")])
	assert.False(t, stale[MessagesKey("t1")], "trashing moves list visibility, not message content")
	assert.False(t, stale[MailboxesKey()])
}

func TestInvalidation_MessageSent(t *testing.T) {
	cache := seededCache()
	inv := NewInvalidationService(cache)

	inv.Apply(Effect{Kind: EffectMessageSent, MailboxID: "mb1", ThreadIDs: []string{"t2"}})

	stale := staleSet(cache)
	assert.True(t, stale[ThreadsKey("mb1", "")])
	assert.True(t, stale[MessagesKey("t2")])
	assert.False(t, stale[MessagesKey("t1")])
}

func TestInvalidation_DraftChanged(t *testing.T) {
	cache := seededCache()
	inv := NewInvalidationService(cache)

	inv.Apply(Effect{Kind: EffectDraftChanged, MailboxID: "mb1"})

	stale := staleSet(cache)
	assert.True(t, stale[StatsKey("mb1")])
	assert.True(t, stale[MailboxesKey()], "draft counters ride on the mailbox collection")
	assert.False(t, stale[ThreadsKey("mb1", "")], "a draft save must not churn the thread list")
	assert.False(t, stale[StatsKey("mb2")])
}

func TestInvalidation_AccessChanged(t *testing.T) {
	cache := seededCache()
	inv := NewInvalidationService(cache)

	inv.Apply(Effect{Kind: EffectAccessChanged, ThreadIDs: []string{"t1", "t2"}})

	stale := staleSet(cache)
	assert.True(t, stale[MessagesKey("t1")])
	assert.True(t, stale[MessagesKey("t2")])
	assert.False(t, stale[MailboxesKey()])
	assert.False(t, stale[ThreadsKey("mb1", "")])
}

func TestInvalidation_KeysForIsPure(t *testing.T) {
	inv := NewInvalidationService(NewCacheService())
	effect := Effect{Kind: EffectFlagRead, MailboxID: "mb1", ThreadIDs: []string{"t1"}}

	first := inv.KeysFor(effect)
	second := inv.KeysFor(effect)

	require.Equal(t, first, second, "the mapping depends on nothing but the effect")
	assert.NotEmpty(t, first)
}

func TestInvalidation_PayloadsSurviveApply(t *testing.T) {
	cache := seededCache()
	inv := NewInvalidationService(cache)

	inv.Apply(Effect{Kind: EffectFlagRead, MailboxID: "mb1", ThreadIDs: []string{"t1"}})

	entry, ok := cache.Get(ThreadsKey("mb1", ""))
	require.True(t, ok)
	assert.Equal(t, "threads-plain", entry.Value)
}
