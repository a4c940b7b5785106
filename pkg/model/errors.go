package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrConversationNotFound is returned when a conversation ID does not
	// match any stored conversation.
	ErrConversationNotFound = goerr.New("conversation not found")

	// ErrInvalidRole is returned for message roles other than patient or
	// assistant.
	ErrInvalidRole = goerr.New("invalid message role")

	// ErrEmptyMessage is returned when a patient message has no text.
	// Assistant placeholders may be empty; patient input may not.
	ErrEmptyMessage = goerr.New("patient message text is empty")

	// ErrInvalidFilename is returned when a note filename is empty or
	// would resolve outside the target directory.
	ErrInvalidFilename = goerr.New("invalid note filename")

	// ErrSaveFailed is returned when the file system rejects a note write.
	ErrSaveFailed = goerr.New("failed to save note")

	// ErrInvalidRequest is returned for malformed generation requests.
	ErrInvalidRequest = goerr.New("invalid generation request")
)
