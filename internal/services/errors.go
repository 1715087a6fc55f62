package services

import (
	"errors"

	"github.com/suitenumerique/messages-sub000/internal/mailapi"
)

// Standard service errors
var (
	// Selection and cache errors
	ErrNoMailbox   = errors.New("no mailbox available")
	ErrNoSelection = errors.New("nothing selected")
	ErrCacheMiss   = errors.New("cache miss")

	// Draft errors
	ErrSessionNotFound = errors.New("compose session not found")
	ErrDraftNotSaved   = errors.New("draft not saved")
	ErrSaveInFlight    = errors.New("draft save already in flight")
	ErrNothingToSave   = errors.New("nothing changed since last save")

	// Input errors
	ErrInvalidRecipient = errors.New("invalid recipient address")
	ErrEmptyQuery       = errors.New("query cannot be empty")

	// Engine errors
	ErrEngineClosed = errors.New("engine closed")
)

// IsRetryableError determines if an error may succeed on a user-triggered
// retry
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *mailapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == mailapi.KindTransient
	}
	return false
}

// IsPermanentError determines if an error is permanent and should not be
// retried with the same input
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidRecipient) || errors.Is(err, ErrSessionNotFound) {
		return true
	}
	var apiErr *mailapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == mailapi.KindValidation || apiErr.Kind == mailapi.KindNotFound
	}
	return false
}

// IsAuthError reports whether err must trigger the uniform forced-logout path
func IsAuthError(err error) bool {
	return mailapi.IsAuth(err)
}
