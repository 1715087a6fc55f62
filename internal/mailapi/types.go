package mailapi

import "time"

// Contact identifies a mail participant
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Mailbox represents one of the user's mailboxes with its counters.
// Counters only change as a side effect of server-confirmed flag, send or
// delete operations; the engine never adjusts them optimistically.
type Mailbox struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	CountUnread int    `json:"count_unread"`
	CountDrafts int    `json:"count_drafts"`
}

// Thread represents a conversation summary as returned by the thread list
type Thread struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	MessageIDs    []string  `json:"message_ids"`
	CountMessages int       `json:"count_messages"`
	CountUnread   int       `json:"count_unread"`
	CountTrashed  int       `json:"count_trashed"`
	UpdatedAt     time.Time `json:"updated_at"`
	SenderNames   []string  `json:"sender_names"`
	Labels        []string  `json:"labels"`
}

// Valid reports whether the thread's aggregate counters are coherent
func (t *Thread) Valid() bool {
	if t == nil {
		return false
	}
	return t.CountUnread <= t.CountMessages && t.CountTrashed <= t.CountMessages
}

// Message is a single mail message. ReadAt == nil means unread. ParentID, when
// set, points at the message this one replies to; an in-progress reply draft
// uses it to attach to its parent for display.
type Message struct {
	ID            string     `json:"id"`
	ThreadID      string     `json:"thread_id"`
	ParentID      string     `json:"parent_id,omitempty"`
	Sender        Contact    `json:"sender"`
	To            []Contact  `json:"to"`
	CC            []Contact  `json:"cc,omitempty"`
	BCC           []Contact  `json:"bcc,omitempty"`
	Subject       string     `json:"subject"`
	TextBody      string     `json:"text_body,omitempty"`
	HTMLBody      string     `json:"html_body,omitempty"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	IsDraft       bool       `json:"is_draft"`
	IsTrashed     bool       `json:"is_trashed"`
	DraftBody     string     `json:"draft_body,omitempty"`
	AttachmentIDs []string   `json:"attachment_ids,omitempty"`
	SentAt        time.Time  `json:"sent_at"`
}

// IsUnread reports whether the message has never been marked read
func (m *Message) IsUnread() bool {
	return m != nil && m.ReadAt == nil
}

// ThreadPage is one page of a paginated thread listing. Next and Previous are
// opaque cursors; empty means no page in that direction.
type ThreadPage struct {
	Results  []*Thread `json:"results"`
	Count    int       `json:"count"`
	Next     string    `json:"next,omitempty"`
	Previous string    `json:"previous,omitempty"`
}

// MessageList is the full message collection of one thread
type MessageList struct {
	Results []*Message `json:"results"`
	Count   int        `json:"count"`
}

// DraftPayload is the body of a draft create or update request. Drafts are
// recreated wholesale on every autosave, never patched field by field.
type DraftPayload struct {
	SenderMailboxID string   `json:"sender_mailbox_id"`
	ParentID        string   `json:"parent_id,omitempty"`
	To              []string `json:"to"`
	CC              []string `json:"cc,omitempty"`
	BCC             []string `json:"bcc,omitempty"`
	Subject         string   `json:"subject"`
	DraftBody       string   `json:"draft_body"`
}

// TaskState is the lifecycle state of an asynchronous server-side task
type TaskState string

const (
	TaskPending TaskState = "pending"
	TaskSuccess TaskState = "success"
	TaskFailure TaskState = "failure"
)

// SendTask tracks an asynchronous message send
type SendTask struct {
	TaskID string    `json:"task_id"`
	State  TaskState `json:"state"`
	Detail string    `json:"detail,omitempty"`
}

// Flag is a mutable per-message boolean attribute
type Flag string

const (
	FlagUnread  Flag = "unread"
	FlagTrashed Flag = "trashed"
)
