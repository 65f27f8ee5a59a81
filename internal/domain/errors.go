package domain

import "errors"

var (
	// ErrNoMaterial is returned when a quiz is started with nothing to run:
	// no stock, and no retained set to reuse.
	ErrNoMaterial = errors.New("no question set available")
	// ErrNoNotes is returned when generation is requested before any source
	// material has been uploaded.
	ErrNoNotes = errors.New("no source material uploaded")
	// ErrResumePending is returned for operations that must wait until the
	// administrator answers the resume-or-restart prompt.
	ErrResumePending = errors.New("resume decision pending")
	// ErrSetNotFound indicates the question bank has no archived set for the chat.
	ErrSetNotFound = errors.New("question set not found")
	// ErrChatNotFound indicates no quiz state exists for the chat.
	ErrChatNotFound = errors.New("chat not found")
)
