package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeInvalidUsername   = "invalid_username"
	ErrCodeUsernameTaken     = "username_taken"
	ErrCodeAlreadyRegistered = "already_registered"
	ErrCodeNotRegistered     = "not_registered"
	ErrCodeEmptyMessage      = "empty_message"
	ErrCodeNotInRoom         = "not_in_room"
	ErrCodeRoomNotFound      = "room_not_found"
	ErrCodeRecipientNotFound = "recipient_not_found"
	ErrCodeInvalidFileData   = "invalid_file_data"
	ErrCodeInternal          = "internal_error"
)

// Error kinds. Every *CoreError unwraps to one of these.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrNotRegistered     = errors.New("not registered")
	ErrNotInRoom         = errors.New("not in room")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrInvalidFileData   = errors.New("invalid file data")
	ErrInternal          = errors.New("internal error")
	ErrHubStopped        = errors.New("hub stopped")
)

// CoreError wraps a kind, a wire code and a human-readable message.
type CoreError struct {
	Kind    error
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Kind
}

func coreError(kind error, code, msg string) *CoreError {
	return &CoreError{Kind: kind, Code: code, Message: msg}
}

var (
	errInvalidUsername   = coreError(ErrInvalidInput, ErrCodeInvalidUsername, "Username is required")
	errReservedUsername  = coreError(ErrInvalidInput, ErrCodeInvalidUsername, `Username cannot contain "-" or be "all"`)
	errUsernameTaken     = coreError(ErrConflict, ErrCodeUsernameTaken, "Username is already taken")
	errAlreadyRegistered = coreError(ErrConflict, ErrCodeAlreadyRegistered, "Connection is already registered")
	errNotRegistered     = coreError(ErrNotRegistered, ErrCodeNotRegistered, "Not registered")
	errEmptyMessage      = coreError(ErrInvalidInput, ErrCodeEmptyMessage, "Message cannot be empty")
	errNotInRoom         = coreError(ErrNotInRoom, ErrCodeNotInRoom, "You are not in this room")
	errRoomNotFound      = coreError(ErrRoomNotFound, ErrCodeRoomNotFound, "Room does not exist")
	errRecipientNotFound = coreError(ErrRecipientNotFound, ErrCodeRecipientNotFound, "Recipient not found")
	errInvalidFileData   = coreError(ErrInvalidFileData, ErrCodeInvalidFileData, "Invalid file data")
	errInternal          = coreError(ErrInternal, ErrCodeInternal, "Internal server error")
)
