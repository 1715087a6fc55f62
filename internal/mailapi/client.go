package mailapi

import "context"

// Client is the transport collaborator. Implementations own HTTP, retries at
// the wire level and serialization; the engine only sees these operations.
type Client interface {
	// ListMailboxes returns the user's mailboxes in stable order
	ListMailboxes(ctx context.Context) ([]*Mailbox, error)

	// ListThreads returns one page of the mailbox's thread collection scoped
	// by the serialized filter. Pages are numbered from 1.
	ListThreads(ctx context.Context, mailboxID, filter string, page int) (*ThreadPage, error)

	// ListMessages returns the full message collection of a thread
	ListMessages(ctx context.Context, threadID string) (*MessageList, error)

	// SetFlag sets or clears a flag on every listed thread and message in one
	// request
	SetFlag(ctx context.Context, flag Flag, value bool, threadIDs, messageIDs []string) error

	CreateDraft(ctx context.Context, payload DraftPayload) (*Message, error)
	UpdateDraft(ctx context.Context, messageID string, payload DraftPayload) (*Message, error)
	DeleteDraft(ctx context.Context, messageID string) error

	// SendMessage submits a saved draft for asynchronous delivery. The caller
	// polls the returned task with GetTask until it leaves TaskPending.
	SendMessage(ctx context.Context, draftID, htmlBody, textBody string) (*SendTask, error)

	// GetTask reports the state of an asynchronous task. Implementations must
	// not trigger the uniform forced-logout handling on 401 for this call;
	// send polling opts out of it (the poller surfaces the error instead).
	GetTask(ctx context.Context, taskID string) (*SendTask, error)
}
