package services

import (
	"time"

	"go.uber.org/zap"

	"github.com/suitenumerique/messages-sub000/internal/mailapi"
)

// SelectionServiceImpl derives the effective selection from candidate
// identifiers and the current thread collection. It keeps no authority of its
// own: every pass recomputes the selection from what the cache actually
// holds, remembering only the previous outcome to detect transitions.
type SelectionServiceImpl struct {
	logger *zap.Logger

	prev          SelectionState
	prevUpdatedAt time.Time
}

// NewSelectionService creates a resolver with no previous selection
func NewSelectionService() *SelectionServiceImpl {
	return &SelectionServiceImpl{}
}

// SetLogger sets the logger for debug output
func (s *SelectionServiceImpl) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

// Resolve computes the selection for candidate identifiers against the
// mailbox list and the flattened thread collection.
//
// Mailbox resolution: an explicit candidate that exists wins; an absent or
// empty candidate falls back to the first mailbox, flagging the correction.
// Thread resolution: a candidate present in the collection is selected; a
// candidate absent from a fully paginated collection is cleared with a
// correction; absent from a partial collection it stays pending, judged again
// once more pages arrive.
func (s *SelectionServiceImpl) Resolve(candidate SelectionState, mailboxes []*mailapi.Mailbox, threads *ThreadCollection, atEnd bool) Resolution {
	var res Resolution

	mailboxID, mailboxCorrected := resolveMailbox(candidate.MailboxID, mailboxes)
	res.Selection.MailboxID = mailboxID
	res.MailboxChanged = mailboxID != s.prev.MailboxID
	if mailboxCorrected {
		res.NeedsReplace = true
	}

	// A mailbox switch discards the thread candidate; a thread belongs to
	// exactly one mailbox, so carrying it over would select a ghost. The
	// first pass has no previous mailbox and keeps the candidate, or deep
	// links into a thread would never resolve.
	threadCandidate := candidate.ThreadID
	if res.MailboxChanged && s.prev.MailboxID != "" {
		threadCandidate = ""
	}

	if threadCandidate != "" {
		if t := findThread(threads, threadCandidate); t != nil {
			res.Selection.ThreadID = threadCandidate
			if threadCandidate == s.prev.ThreadID && !s.prevUpdatedAt.IsZero() && t.UpdatedAt.After(s.prevUpdatedAt) {
				res.ThreadContentChanged = true
			}
			s.prevUpdatedAt = t.UpdatedAt
		} else if !atEnd {
			// Not fetched yet is not the same as absent; hold the candidate
			// without committing to it.
			res.ThreadPending = true
		} else {
			// Fully paginated and still missing: the thread is gone
			res.NeedsReplace = true
			if s.logger != nil {
				s.logger.Debug("selection candidate absent after full pagination",
					zap.String("thread", threadCandidate),
					zap.String("mailbox", mailboxID))
			}
		}
	}

	res.ThreadChanged = res.Selection.ThreadID != s.prev.ThreadID
	if res.Selection.ThreadID == "" {
		s.prevUpdatedAt = time.Time{}
	}

	s.prev = res.Selection
	return res
}

// Previous returns the selection of the last resolution pass
func (s *SelectionServiceImpl) Previous() SelectionState {
	return s.prev
}

// ResetThread forgets the remembered thread so the next pass reports a
// transition even for the same identifier
func (s *SelectionServiceImpl) ResetThread() {
	s.prev.ThreadID = ""
	s.prevUpdatedAt = time.Time{}
}

func resolveMailbox(candidate string, mailboxes []*mailapi.Mailbox) (string, bool) {
	if len(mailboxes) == 0 {
		return "", candidate != ""
	}
	if candidate != "" {
		for _, mb := range mailboxes {
			if mb.ID == candidate {
				return candidate, false
			}
		}
	}
	return mailboxes[0].ID, true
}

func findThread(threads *ThreadCollection, id string) *mailapi.Thread {
	if threads == nil {
		return nil
	}
	for _, t := range threads.Threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}
