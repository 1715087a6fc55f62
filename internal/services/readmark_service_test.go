package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/suitenumerique/messages-sub000/internal/mailapi"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestReadMark_BatchesBurstIntoOneMutation(t *testing.T) {
	client := &MockClient{}
	r := NewReadMarkService(client, 20*time.Millisecond)
	defer r.Close()

	var mu sync.Mutex
	var flushed []string
	client.On("SetFlag", mock.Anything, mailapi.FlagUnread, false, []string(nil), mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			flushed = args.Get(4).([]string)
			mu.Unlock()
		}).
		Return(nil).Once()

	r.MarkVisible("m1")
	r.MarkVisible("m2")
	r.MarkVisible("m3")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flushed) == 3
	})
	client.AssertNumberOfCalls(t, "SetFlag", 1)
	assert.Empty(t, r.Pending())
}

func TestReadMark_QueueIsASet(t *testing.T) {
	client := &MockClient{}
	r := NewReadMarkService(client, time.Hour)
	defer r.Close()

	r.MarkVisible("m1")
	r.MarkVisible("m1")
	r.MarkVisible("m1")

	assert.Len(t, r.Pending(), 1)
}

func TestReadMark_EachEventRestartsWindow(t *testing.T) {
	client := &MockClient{}
	r := NewReadMarkService(client, 300*time.Millisecond)
	defer r.Close()

	client.On("SetFlag", mock.Anything, mailapi.FlagUnread, false, []string(nil), mock.Anything).
		Return(nil).Maybe()

	r.MarkVisible("m1")
	time.Sleep(180 * time.Millisecond)
	r.MarkVisible("m2")
	time.Sleep(180 * time.Millisecond)

	// 360ms elapsed but the window restarted at 180ms; nothing flushed yet
	client.AssertNumberOfCalls(t, "SetFlag", 0)
	assert.Len(t, r.Pending(), 2)
}

func TestReadMark_FailedFlushRetainsQueue(t *testing.T) {
	client := &MockClient{}
	r := NewReadMarkService(client, 20*time.Millisecond)
	defer r.Close()

	var calls int
	var mu sync.Mutex
	client.On("SetFlag", mock.Anything, mailapi.FlagUnread, false, []string(nil), mock.Anything).
		Run(func(mock.Arguments) {
			mu.Lock()
			calls++
			mu.Unlock()
		}).
		Return(errors.New("network down")).Once()
	client.On("SetFlag", mock.Anything, mailapi.FlagUnread, false, []string(nil), mock.Anything).
		Run(func(mock.Arguments) {
			mu.Lock()
			calls++
			mu.Unlock()
		}).
		Return(nil).Once()

	r.MarkVisible("m1")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	})
	require.Len(t, r.Pending(), 1, "failed IDs go back into the queue")

	// No reschedule on its own: the retry rides on the next visibility event
	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	r.MarkVisible("m2")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
	assert.Empty(t, r.Pending())
}

func TestReadMark_CloseDropsQueueWithoutFlushing(t *testing.T) {
	client := &MockClient{}
	r := NewReadMarkService(client, 20*time.Millisecond)

	r.MarkVisible("m1")
	r.Close()

	time.Sleep(50 * time.Millisecond)
	client.AssertNumberOfCalls(t, "SetFlag", 0)
	assert.Empty(t, r.Pending())
}

func TestReadMark_FlushedCallbackFires(t *testing.T) {
	client := &MockClient{}
	r := NewReadMarkService(client, 10*time.Millisecond)
	defer r.Close()

	client.On("SetFlag", mock.Anything, mailapi.FlagUnread, false, []string(nil), mock.Anything).
		Return(nil).Once()

	var mu sync.Mutex
	var got []string
	r.SetFlushedCallback(func(ids []string) {
		mu.Lock()
		got = ids
		mu.Unlock()
	})

	r.MarkVisible("m1")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	assert.Equal(t, []string{"m1"}, got)
	mu.Unlock()
}
