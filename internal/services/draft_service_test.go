package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/suitenumerique/messages-sub000/internal/mailapi"
)

func draftForm(sender string) DraftForm {
	return DraftForm{
		SenderMailboxID: sender,
		To:              []string{"dest@example.com"},
		Subject:         "hello",
		DraftBody:       "<p>hi</p>",
	}
}

func TestDraft_FirstSaveCreates(t *testing.T) {
	client := &MockClient{}
	d := NewDraftService(client)
	ctx := context.Background()

	client.On("CreateDraft", ctx, mock.Anything).Return(&mailapi.Message{ID: "d1", IsDraft: true}, nil).Once()

	sid := d.NewSession("mb1", "")
	state, err := d.State(sid)
	require.NoError(t, err)
	assert.Equal(t, DraftStateNew, state)

	msg, err := d.SaveDraft(ctx, sid, draftForm("mb1"))
	require.NoError(t, err)
	assert.Equal(t, "d1", msg.ID)

	state, _ = d.State(sid)
	assert.Equal(t, DraftStateSaved, state)
	client.AssertExpectations(t)
}

func TestDraft_SessionSenderDoesNotForceTransferOnFirstSave(t *testing.T) {
	client := &MockClient{}
	d := NewDraftService(client)
	ctx := context.Background()

	client.On("CreateDraft", ctx, mock.Anything).Return(&mailapi.Message{ID: "d1"}, nil).Once()

	// The session opens under one sender, but the user switches before the
	// first save; with no server draft yet there is nothing to transfer
	sid := d.NewSession("mb1", "")
	_, err := d.SaveDraft(ctx, sid, draftForm("mb2"))
	require.NoError(t, err)

	client.AssertNumberOfCalls(t, "DeleteDraft", 0)
	client.AssertExpectations(t)
}

func TestDraft_SecondSaveUpdatesInPlace(t *testing.T) {
	client := &MockClient{}
	d := NewDraftService(client)
	ctx := context.Background()

	client.On("CreateDraft", ctx, mock.Anything).Return(&mailapi.Message{ID: "d1"}, nil).Once()
	client.On("UpdateDraft", ctx, "d1", mock.Anything).Return(&mailapi.Message{ID: "d1"}, nil).Once()

	sid := d.NewSession("mb1", "")
	_, err := d.SaveDraft(ctx, sid, draftForm("mb1"))
	require.NoError(t, err)

	form := draftForm("mb1")
	form.Subject = "hello again"
	_, err = d.SaveDraft(ctx, sid, form)
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestDraft_UnchangedFormIsSkipped(t *testing.T) {
	client := &MockClient{}
	d := NewDraftService(client)
	ctx := context.Background()

	client.On("CreateDraft", ctx, mock.Anything).Return(&mailapi.Message{ID: "d1"}, nil).Once()

	sid := d.NewSession("mb1", "")
	_, err := d.SaveDraft(ctx, sid, draftForm("mb1"))
	require.NoError(t, err)

	_, err = d.SaveDraft(ctx, sid, draftForm("mb1"))
	assert.ErrorIs(t, err, ErrNothingToSave)
	client.AssertNumberOfCalls(t, "UpdateDraft", 0)
}

func TestDraft_FailedCreateStaysNew(t *testing.T) {
	client := &MockClient{}
	d := NewDraftService(client)
	ctx := context.Background()

	client.On("CreateDraft", ctx, mock.Anything).Return(nil, errors.New("boom")).Once()
	client.On("CreateDraft", ctx, mock.Anything).Return(&mailapi.Message{ID: "d1"}, nil).Once()

	sid := d.NewSession("mb1", "")
	_, err := d.SaveDraft(ctx, sid, draftForm("mb1"))
	require.Error(t, err)

	state, _ := d.State(sid)
	assert.Equal(t, DraftStateNew, state)

	// The next save retries the create
	_, err = d.SaveDraft(ctx, sid, draftForm("mb1"))
	require.NoError(t, err)
}

func TestDraft_SenderChangeTransfers(t *testing.T) {
	client := &MockClient{}
	d := NewDraftService(client)
	ctx := context.Background()

	client.On("CreateDraft", ctx, mock.MatchedBy(func(p mailapi.DraftPayload) bool {
		return p.SenderMailboxID == "mb1"
	})).Return(&mailapi.Message{ID: "d1"}, nil).Once()
	client.On("DeleteDraft", ctx, "d1").Return(nil).Once()
	client.On("CreateDraft", ctx, mock.MatchedBy(func(p mailapi.DraftPayload) bool {
		return p.SenderMailboxID == "mb2"
	})).Return(&mailapi.Message{ID: "d2"}, nil).Once()

	sid := d.NewSession("mb1", "")
	_, err := d.SaveDraft(ctx, sid, draftForm("mb1"))
	require.NoError(t, err)

	msg, err := d.SaveDraft(ctx, sid, draftForm("mb2"))
	require.NoError(t, err)
	assert.Equal(t, "d2", msg.ID, "the draft gets a fresh identity under the new sender")

	state, _ := d.State(sid)
	assert.Equal(t, DraftStateSaved, state)
	client.AssertExpectations(t)
}

func TestDraft_TransferDeleteFailureKeepsOldDraft(t *testing.T) {
	client := &MockClient{}
	d := NewDraftService(client)
	ctx := context.Background()

	client.On("CreateDraft", ctx, mock.Anything).Return(&mailapi.Message{ID: "d1"}, nil).Once()
	client.On("DeleteDraft", ctx, "d1").Return(errors.New("boom")).Once()

	sid := d.NewSession("mb1", "")
	_, err := d.SaveDraft(ctx, sid, draftForm("mb1"))
	require.NoError(t, err)

	_, err = d.SaveDraft(ctx, sid, draftForm("mb2"))
	require.Error(t, err)

	state, _ := d.State(sid)
	assert.Equal(t, DraftStateSaved, state, "nothing was lost; the old draft still exists")
	got, err := d.Draft(sid)
	require.NoError(t, err)
	assert.Equal(t, "d1", got.ID)
}

func TestDraft_TransferCreateFailureFallsBackToUnsaved(t *testing.T) {
	client := &MockClient{}
	d := NewDraftService(client)
	ctx := context.Background()

	client.On("CreateDraft", ctx, mock.MatchedBy(func(p mailapi.DraftPayload) bool {
		return p.SenderMailboxID == "mb1"
	})).Return(&mailapi.Message{ID: "d1"}, nil).Once()
	client.On("DeleteDraft", ctx, "d1").Return(nil).Once()
	client.On("CreateDraft", ctx, mock.MatchedBy(func(p mailapi.DraftPayload) bool {
		return p.SenderMailboxID == "mb2"
	})).Return(nil, errors.New("boom")).Once()
	// The recovery save creates from scratch, never touching d1 again
	client.On("CreateDraft", ctx, mock.MatchedBy(func(p mailapi.DraftPayload) bool {
		return p.SenderMailboxID == "mb2"
	})).Return(&mailapi.Message{ID: "d2"}, nil).Once()

	sid := d.NewSession("mb1", "")
	_, err := d.SaveDraft(ctx, sid, draftForm("mb1"))
	require.NoError(t, err)

	_, err = d.SaveDraft(ctx, sid, draftForm("mb2"))
	require.Error(t, err)

	state, _ := d.State(sid)
	assert.Equal(t, DraftStateNew, state, "the server copy is gone; the session is unsaved again")
	_, err = d.Draft(sid)
	assert.ErrorIs(t, err, ErrDraftNotSaved)

	// The form content survived in the caller; a retry is a plain create
	msg, err := d.SaveDraft(ctx, sid, draftForm("mb2"))
	require.NoError(t, err)
	assert.Equal(t, "d2", msg.ID)
	client.AssertExpectations(t)
}

func TestDraft_SendSubmitsAndClosesSession(t *testing.T) {
	client := &MockClient{}
	d := NewDraftService(client)
	ctx := context.Background()

	client.On("CreateDraft", ctx, mock.Anything).Return(&mailapi.Message{ID: "d1"}, nil).Once()
	client.On("SendMessage", ctx, "d1", "<p>hi</p>", "hi").
		Return(&mailapi.SendTask{TaskID: "task1", State: mailapi.TaskPending}, nil).Once()

	sid := d.NewSession("mb1", "")
	task, err := d.Send(ctx, sid, draftForm("mb1"))
	require.NoError(t, err)
	assert.Equal(t, "task1", task.TaskID)

	_, err = d.State(sid)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	client.AssertExpectations(t)
}

func TestDraft_SendWithoutRecipientsRejected(t *testing.T) {
	client := &MockClient{}
	d := NewDraftService(client)

	sid := d.NewSession("mb1", "")
	form := draftForm("mb1")
	form.To = nil

	_, err := d.Send(context.Background(), sid, form)
	assert.ErrorIs(t, err, ErrInvalidRecipient)
	client.AssertNumberOfCalls(t, "SendMessage", 0)
}

func TestDraft_InvalidRecipientRejectedBeforeTransport(t *testing.T) {
	client := &MockClient{}
	d := NewDraftService(client)

	sid := d.NewSession("mb1", "")
	form := draftForm("mb1")
	form.To = []string{"not-an-address"}

	_, err := d.SaveDraft(context.Background(), sid, form)
	assert.ErrorIs(t, err, ErrInvalidRecipient)
	client.AssertNumberOfCalls(t, "CreateDraft", 0)
}

func TestDraft_DiscardDeletesServerCopy(t *testing.T) {
	client := &MockClient{}
	d := NewDraftService(client)
	ctx := context.Background()

	client.On("CreateDraft", ctx, mock.Anything).Return(&mailapi.Message{ID: "d1"}, nil).Once()
	client.On("DeleteDraft", ctx, "d1").Return(nil).Once()

	sid := d.NewSession("mb1", "")
	_, err := d.SaveDraft(ctx, sid, draftForm("mb1"))
	require.NoError(t, err)

	require.NoError(t, d.DiscardSession(ctx, sid))
	_, err = d.State(sid)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	client.AssertExpectations(t)
}

func TestDraft_DiscardUnsavedSessionSkipsTransport(t *testing.T) {
	client := &MockClient{}
	d := NewDraftService(client)

	sid := d.NewSession("mb1", "")
	require.NoError(t, d.DiscardSession(context.Background(), sid))
	client.AssertNumberOfCalls(t, "DeleteDraft", 0)
}

func TestDraft_UnknownSessionErrors(t *testing.T) {
	d := NewDraftService(&MockClient{})

	_, err := d.SaveDraft(context.Background(), "ghost", draftForm("mb1"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDraft_ChangedCallbackReportsTouchedMailboxes(t *testing.T) {
	client := &MockClient{}
	d := NewDraftService(client)
	ctx := context.Background()

	var touched [][]string
	d.SetDraftChangedCallback(func(ids []string) { touched = append(touched, ids) })

	client.On("CreateDraft", ctx, mock.MatchedBy(func(p mailapi.DraftPayload) bool {
		return p.SenderMailboxID == "mb1"
	})).Return(&mailapi.Message{ID: "d1"}, nil).Once()
	client.On("DeleteDraft", ctx, "d1").Return(nil).Once()
	client.On("CreateDraft", ctx, mock.MatchedBy(func(p mailapi.DraftPayload) bool {
		return p.SenderMailboxID == "mb2"
	})).Return(&mailapi.Message{ID: "d2"}, nil).Once()

	sid := d.NewSession("mb1", "")
	_, err := d.SaveDraft(ctx, sid, draftForm("mb1"))
	require.NoError(t, err)
	_, err = d.SaveDraft(ctx, sid, draftForm("mb2"))
	require.NoError(t, err)

	require.Len(t, touched, 2)
	assert.Equal(t, []string{"mb1"}, touched[0])
	assert.Equal(t, []string{"mb1", "mb2"}, touched[1], "a transfer dirties both mailboxes' counters")
}
