package chat

import "errors"

var (
	// ErrInvalidInput is returned for malformed or missing request data
	// (empty message body and image, group with fewer than 2 members, ...).
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a conversation, message, or user is absent.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when an authenticated caller is not a member
	// of the conversation being operated on.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned by stores when a direct-conversation insert
	// loses the creation race on the unordered pair key. Callers re-read
	// and return the winner's row.
	ErrConflict = errors.New("conflict")
)
