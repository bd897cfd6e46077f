package entity

import "errors"

// Domain errors for chat logs
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMalformedSender      = errors.New("sender has no identity/origin separator")
	ErrRunInProgress        = errors.New("another chat log run is in progress")
	ErrArchiveDisabled      = errors.New("conversation archive is not configured")
)
