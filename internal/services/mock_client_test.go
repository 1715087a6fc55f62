package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/suitenumerique/messages-sub000/internal/mailapi"
)

// MockClient is a testify mock of the transport collaborator
type MockClient struct {
	mock.Mock
}

func (m *MockClient) ListMailboxes(ctx context.Context) ([]*mailapi.Mailbox, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*mailapi.Mailbox), args.Error(1)
}

func (m *MockClient) ListThreads(ctx context.Context, mailboxID, filter string, page int) (*mailapi.ThreadPage, error) {
	args := m.Called(ctx, mailboxID, filter, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailapi.ThreadPage), args.Error(1)
}

func (m *MockClient) ListMessages(ctx context.Context, threadID string) (*mailapi.MessageList, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailapi.MessageList), args.Error(1)
}

func (m *MockClient) SetFlag(ctx context.Context, flag mailapi.Flag, value bool, threadIDs, messageIDs []string) error {
	args := m.Called(ctx, flag, value, threadIDs, messageIDs)
	return args.Error(0)
}

func (m *MockClient) CreateDraft(ctx context.Context, payload mailapi.DraftPayload) (*mailapi.Message, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailapi.Message), args.Error(1)
}

func (m *MockClient) UpdateDraft(ctx context.Context, messageID string, payload mailapi.DraftPayload) (*mailapi.Message, error) {
	args := m.Called(ctx, messageID, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailapi.Message), args.Error(1)
}

func (m *MockClient) DeleteDraft(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MockClient) SendMessage(ctx context.Context, draftID, htmlBody, textBody string) (*mailapi.SendTask, error) {
	args := m.Called(ctx, draftID, htmlBody, textBody)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailapi.SendTask), args.Error(1)
}

func (m *MockClient) GetTask(ctx context.Context, taskID string) (*mailapi.SendTask, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailapi.SendTask), args.Error(1)
}

// MockNavigator records the corrections pushed back into navigation
type MockNavigator struct {
	mock.Mock
}

func (m *MockNavigator) Replace(mailboxID, threadID string) {
	m.Called(mailboxID, threadID)
}

func (m *MockNavigator) QueryChanged(query string) {
	m.Called(query)
}
