package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/suitenumerique/messages-sub000/internal/mailapi"
)

// scriptedClient is an in-process mailapi.Client over fixture data. It keeps
// enough mutable state (read flags, drafts, tasks) for the demo session to
// exercise the whole engine surface without a server.
type scriptedClient struct {
	mu        sync.Mutex
	mailboxes []*mailapi.Mailbox
	threads   map[string][]*mailapi.Thread
	messages  map[string]*mailapi.MessageList
	drafts    map[string]*mailapi.Message
	tasks     map[string]*mailapi.SendTask
	pageSize  int
}

func newScriptedClient() *scriptedClient {
	now := time.Now()
	c := &scriptedClient{
		threads:  make(map[string][]*mailapi.Thread),
		messages: make(map[string]*mailapi.MessageList),
		drafts:   make(map[string]*mailapi.Message),
		tasks:    make(map[string]*mailapi.SendTask),
		pageSize: 3,
	}
	c.mailboxes = []*mailapi.Mailbox{
		{ID: "mb-work", Email: "pat@example.org", CountUnread: 4},
		{ID: "mb-personal", Email: "pat@example.net"},
	}
	for i := 0; i < 7; i++ {
		threadID := fmt.Sprintf("th-%02d", i)
		msgID := fmt.Sprintf("msg-%02d", i)
		unread := 0
		var readAt *time.Time
		if i < 4 {
			unread = 1
		} else {
			at := now.Add(-time.Duration(i) * time.Hour)
			readAt = &at
		}
		c.threads["mb-work"] = append(c.threads["mb-work"], &mailapi.Thread{
			ID:            threadID,
			Subject:       fmt.Sprintf("thread %d", i),
			MessageIDs:    []string{msgID},
			CountMessages: 1,
			CountUnread:   unread,
			UpdatedAt:     now.Add(-time.Duration(i) * time.Hour),
			SenderNames:   []string{"Sam"},
		})
		c.messages[threadID] = &mailapi.MessageList{
			Results: []*mailapi.Message{{
				ID:       msgID,
				ThreadID: threadID,
				Sender:   mailapi.Contact{Name: "Sam", Email: "sam@example.org"},
				To:       []mailapi.Contact{{Email: "pat@example.org"}},
				Subject:  fmt.Sprintf("thread %d", i),
				TextBody: "hello",
				ReadAt:   readAt,
				SentAt:   now.Add(-time.Duration(i) * time.Hour),
			}},
			Count: 1,
		}
	}
	return c
}

func (c *scriptedClient) ListMailboxes(ctx context.Context) ([]*mailapi.Mailbox, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*mailapi.Mailbox, len(c.mailboxes))
	copy(out, c.mailboxes)
	return out, nil
}

func (c *scriptedClient) ListThreads(ctx context.Context, mailboxID, filter string, page int) (*mailapi.ThreadPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.threads[mailboxID]
	if strings.Contains(filter, "is:unread") {
		var filtered []*mailapi.Thread
		for _, t := range all {
			if t.CountUnread > 0 {
				filtered = append(filtered, t)
			}
		}
		all = filtered
	}

	start := (page - 1) * c.pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + c.pageSize
	if end > len(all) {
		end = len(all)
	}
	next := ""
	if end < len(all) {
		next = fmt.Sprintf("page-%d", page+1)
	}
	return &mailapi.ThreadPage{
		Results: all[start:end],
		Count:   len(all),
		Next:    next,
	}, nil
}

func (c *scriptedClient) ListMessages(ctx context.Context, threadID string) (*mailapi.MessageList, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.messages[threadID]
	if !ok {
		return nil, mailapi.NewError(mailapi.KindNotFound, "ListMessages", nil)
	}
	return list, nil
}

func (c *scriptedClient) SetFlag(ctx context.Context, flag mailapi.Flag, value bool, threadIDs, messageIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if flag != mailapi.FlagUnread || value {
		return nil
	}
	now := time.Now()
	for _, list := range c.messages {
		for _, m := range list.Results {
			for _, id := range messageIDs {
				if m.ID == id && m.ReadAt == nil {
					m.ReadAt = &now
				}
			}
		}
	}
	return nil
}

func (c *scriptedClient) CreateDraft(ctx context.Context, payload mailapi.DraftPayload) (*mailapi.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := &mailapi.Message{
		ID:        uuid.New().String(),
		ParentID:  payload.ParentID,
		Subject:   payload.Subject,
		DraftBody: payload.DraftBody,
		IsDraft:   true,
	}
	c.drafts[msg.ID] = msg
	return msg, nil
}

func (c *scriptedClient) UpdateDraft(ctx context.Context, messageID string, payload mailapi.DraftPayload) (*mailapi.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.drafts[messageID]
	if !ok {
		return nil, mailapi.NewError(mailapi.KindNotFound, "UpdateDraft", nil)
	}
	msg.Subject = payload.Subject
	msg.DraftBody = payload.DraftBody
	return msg, nil
}

func (c *scriptedClient) DeleteDraft(ctx context.Context, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.drafts[messageID]; !ok {
		return mailapi.NewError(mailapi.KindNotFound, "DeleteDraft", nil)
	}
	delete(c.drafts, messageID)
	return nil
}

func (c *scriptedClient) SendMessage(ctx context.Context, draftID, htmlBody, textBody string) (*mailapi.SendTask, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.drafts[draftID]; !ok {
		return nil, mailapi.NewError(mailapi.KindNotFound, "SendMessage", nil)
	}
	delete(c.drafts, draftID)
	task := &mailapi.SendTask{TaskID: uuid.New().String(), State: mailapi.TaskPending}
	c.tasks[task.TaskID] = task
	return task, nil
}

func (c *scriptedClient) GetTask(ctx context.Context, taskID string) (*mailapi.SendTask, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[taskID]
	if !ok {
		return nil, mailapi.NewError(mailapi.KindNotFound, "GetTask", nil)
	}
	// The first poll still sees the task pending, the second sees it done
	if task.State == mailapi.TaskPending {
		done := *task
		c.tasks[taskID] = &mailapi.SendTask{TaskID: taskID, State: mailapi.TaskSuccess}
		return &done, nil
	}
	return task, nil
}
