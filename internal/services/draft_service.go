package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/suitenumerique/messages-sub000/internal/mailapi"
)

// DraftServiceImpl owns the draft lifecycle of compose sessions. A session
// starts unsaved, creates its server draft on the first save, updates it in
// place afterwards, and moves it between sender mailboxes with a
// delete-then-recreate transfer. At most one save per session is in flight;
// the form snapshot captured at call time is what gets persisted.
type DraftServiceImpl struct {
	client mailapi.Client
	logger *zap.Logger

	// onDraftChanged, when set, fires after any settled draft mutation with
	// the mailbox IDs whose draft listings it touched
	onDraftChanged func(mailboxIDs []string)

	mu       sync.Mutex
	sessions map[string]*composeSession
}

type composeSession struct {
	state    DraftState
	draft    *mailapi.Message
	lastForm DraftForm
	// senderMailboxID is the mailbox the draft belongs to: the session's
	// initial sender before the first save, the server draft's mailbox after
	senderMailboxID string
	parentID        string
}

// NewDraftService creates a draft manager backed by the transport client
func NewDraftService(client mailapi.Client) *DraftServiceImpl {
	return &DraftServiceImpl{
		client:   client,
		sessions: make(map[string]*composeSession),
	}
}

// SetLogger sets the logger for debug output
func (d *DraftServiceImpl) SetLogger(logger *zap.Logger) {
	d.logger = logger
}

// SetDraftChangedCallback registers the hook invoked after settled draft
// mutations
func (d *DraftServiceImpl) SetDraftChangedCallback(fn func(mailboxIDs []string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDraftChanged = fn
}

// NewSession opens a compose session sending from senderMailboxID. parentID,
// when set, makes the draft a reply to that message.
func (d *DraftServiceImpl) NewSession(senderMailboxID, parentID string) string {
	id := uuid.New().String()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[id] = &composeSession{
		state:           DraftStateNew,
		senderMailboxID: senderMailboxID,
		parentID:        parentID,
	}
	if d.logger != nil {
		d.logger.Debug("compose session opened",
			zap.String("session", id),
			zap.String("sender", senderMailboxID),
			zap.String("parent", parentID))
	}
	return id
}

// State returns the session's lifecycle state
func (d *DraftServiceImpl) State(sessionID string) (DraftState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sess, ok := d.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	return sess.state, nil
}

// Draft returns the server draft of the session, if one exists
func (d *DraftServiceImpl) Draft(sessionID string) (*mailapi.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sess, ok := d.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.draft == nil {
		return nil, ErrDraftNotSaved
	}
	return sess.draft, nil
}

// SaveDraft persists the form snapshot. An unsaved session creates the server
// draft; a saved one updates it; a saved one whose sender mailbox changed
// deletes the old draft and creates a new one under the new sender. A save
// while another save of the same session is in flight is rejected, and a save
// of an unchanged form is skipped.
func (d *DraftServiceImpl) SaveDraft(ctx context.Context, sessionID string, form DraftForm) (*mailapi.Message, error) {
	if err := validateForm(form); err != nil {
		return nil, err
	}

	d.mu.Lock()
	sess, ok := d.sessions[sessionID]
	if !ok {
		d.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	switch sess.state {
	case DraftStateCreating, DraftStateUpdating, DraftStateTransferring:
		d.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	if sess.state == DraftStateSaved && formsEqual(sess.lastForm, form) {
		d.mu.Unlock()
		return nil, ErrNothingToSave
	}

	switch {
	case sess.draft == nil:
		sess.state = DraftStateCreating
		d.mu.Unlock()
		return d.createDraft(ctx, sessionID, sess, form)
	case form.SenderMailboxID != sess.senderMailboxID:
		sess.state = DraftStateTransferring
		d.mu.Unlock()
		return d.transferDraft(ctx, sessionID, sess, form)
	default:
		sess.state = DraftStateUpdating
		d.mu.Unlock()
		return d.updateDraft(ctx, sessionID, sess, form)
	}
}

func (d *DraftServiceImpl) createDraft(ctx context.Context, sessionID string, sess *composeSession, form DraftForm) (*mailapi.Message, error) {
	msg, err := d.client.CreateDraft(ctx, payloadFrom(form, sess.parentID))

	d.mu.Lock()
	if err != nil {
		sess.state = DraftStateNew
		d.mu.Unlock()
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}
	sess.state = DraftStateSaved
	sess.draft = msg
	sess.lastForm = form
	sess.senderMailboxID = form.SenderMailboxID
	onChanged := d.onDraftChanged
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("draft created",
			zap.String("session", sessionID),
			zap.String("draft", msg.ID))
	}
	if onChanged != nil {
		onChanged([]string{form.SenderMailboxID})
	}
	return msg, nil
}

func (d *DraftServiceImpl) updateDraft(ctx context.Context, sessionID string, sess *composeSession, form DraftForm) (*mailapi.Message, error) {
	d.mu.Lock()
	draftID := sess.draft.ID
	d.mu.Unlock()

	msg, err := d.client.UpdateDraft(ctx, draftID, payloadFrom(form, sess.parentID))

	d.mu.Lock()
	if err != nil {
		sess.state = DraftStateSaved
		d.mu.Unlock()
		return nil, fmt.Errorf("failed to update draft: %w", err)
	}
	sess.state = DraftStateSaved
	sess.draft = msg
	sess.lastForm = form
	onChanged := d.onDraftChanged
	mailboxID := sess.senderMailboxID
	d.mu.Unlock()

	if onChanged != nil {
		onChanged([]string{mailboxID})
	}
	return msg, nil
}

// transferDraft moves a saved draft to a new sender mailbox. A draft is bound
// to the mailbox that created it, so the move is a delete under the old
// sender followed by a create under the new one. When the delete lands but
// the create fails, the old draft is gone for good; the session falls back to
// unsaved with the form intact, so the user's content survives and the next
// save is a plain create.
func (d *DraftServiceImpl) transferDraft(ctx context.Context, sessionID string, sess *composeSession, form DraftForm) (*mailapi.Message, error) {
	d.mu.Lock()
	oldID := sess.draft.ID
	oldMailbox := sess.senderMailboxID
	d.mu.Unlock()

	if err := d.client.DeleteDraft(ctx, oldID); err != nil {
		d.mu.Lock()
		sess.state = DraftStateSaved
		d.mu.Unlock()
		return nil, fmt.Errorf("failed to delete draft for transfer: %w", err)
	}

	msg, createErr := d.client.CreateDraft(ctx, payloadFrom(form, sess.parentID))

	d.mu.Lock()
	if createErr != nil {
		// The old draft no longer exists; forget it entirely and let the next
		// save recreate from scratch.
		sess.state = DraftStateNew
		sess.draft = nil
		sess.senderMailboxID = ""
		sess.lastForm = DraftForm{}
		onChanged := d.onDraftChanged
		d.mu.Unlock()

		if d.logger != nil {
			d.logger.Warn("draft transfer lost server copy",
				zap.String("session", sessionID),
				zap.String("deleted_draft", oldID),
				zap.Error(createErr))
		}
		if onChanged != nil {
			onChanged([]string{oldMailbox})
		}
		return nil, fmt.Errorf("failed to recreate draft under new sender: %w", createErr)
	}
	sess.state = DraftStateSaved
	sess.draft = msg
	sess.lastForm = form
	sess.senderMailboxID = form.SenderMailboxID
	onChanged := d.onDraftChanged
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("draft transferred",
			zap.String("session", sessionID),
			zap.String("from_mailbox", oldMailbox),
			zap.String("to_mailbox", form.SenderMailboxID))
	}
	if onChanged != nil {
		onChanged([]string{oldMailbox, form.SenderMailboxID})
	}
	return msg, nil
}

// Send saves the current form if needed, then submits the draft. The body
// goes out in both HTML and plain-text variants; the text variant is derived
// from the HTML.
func (d *DraftServiceImpl) Send(ctx context.Context, sessionID string, form DraftForm) (*mailapi.SendTask, error) {
	if len(form.To) == 0 {
		return nil, ErrInvalidRecipient
	}

	draft, err := d.SaveDraft(ctx, sessionID, form)
	if err != nil && err != ErrNothingToSave {
		return nil, err
	}
	if draft == nil {
		var derr error
		draft, derr = d.Draft(sessionID)
		if derr != nil {
			return nil, derr
		}
	}

	textBody, err := HTMLToText(form.DraftBody)
	if err != nil {
		// Fall back to the raw body rather than refusing to send
		textBody = form.DraftBody
	}
	task, err := d.client.SendMessage(ctx, draft.ID, form.DraftBody, textBody)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	d.mu.Lock()
	sess, ok := d.sessions[sessionID]
	var mailboxID string
	if ok {
		mailboxID = sess.senderMailboxID
		delete(d.sessions, sessionID)
	}
	onChanged := d.onDraftChanged
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("message submitted",
			zap.String("session", sessionID),
			zap.String("task", task.TaskID))
	}
	if onChanged != nil && mailboxID != "" {
		onChanged([]string{mailboxID})
	}
	return task, nil
}

// DiscardSession closes the session, deleting its server draft if one exists
func (d *DraftServiceImpl) DiscardSession(ctx context.Context, sessionID string) error {
	d.mu.Lock()
	sess, ok := d.sessions[sessionID]
	if !ok {
		d.mu.Unlock()
		return ErrSessionNotFound
	}
	draft := sess.draft
	mailboxID := sess.senderMailboxID
	delete(d.sessions, sessionID)
	onChanged := d.onDraftChanged
	d.mu.Unlock()

	if draft == nil {
		return nil
	}
	if err := d.client.DeleteDraft(ctx, draft.ID); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	if onChanged != nil {
		onChanged([]string{mailboxID})
	}
	return nil
}

func payloadFrom(form DraftForm, parentID string) mailapi.DraftPayload {
	return mailapi.DraftPayload{
		SenderMailboxID: form.SenderMailboxID,
		ParentID:        parentID,
		To:              form.To,
		CC:              form.CC,
		BCC:             form.BCC,
		Subject:         form.Subject,
		DraftBody:       form.DraftBody,
	}
}

func validateForm(form DraftForm) error {
	if form.SenderMailboxID == "" {
		return fmt.Errorf("sender mailbox cannot be empty")
	}
	for _, addr := range append(append(append([]string{}, form.To...), form.CC...), form.BCC...) {
		if !strings.Contains(addr, "@") {
			return fmt.Errorf("%w: %s", ErrInvalidRecipient, addr)
		}
	}
	return nil
}

func formsEqual(a, b DraftForm) bool {
	return a.SenderMailboxID == b.SenderMailboxID &&
		a.Subject == b.Subject &&
		a.DraftBody == b.DraftBody &&
		sliceEqual(a.To, b.To) &&
		sliceEqual(a.CC, b.CC) &&
		sliceEqual(a.BCC, b.BCC)
}

func sliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
