package core

import "errors"

var (
	ErrWeakPassword        = errors.New("Password must be at least 6 characters long")
	ErrDuplicateEmail      = errors.New("User with this email already exists")
	ErrInvalidCredentials  = errors.New("Invalid email or password")
	ErrUserNotFound        = errors.New("User not found")
	ErrDuplicateName       = errors.New("A project with this name already exists")
	ErrProjectNotFound     = errors.New("Project not found")
	ErrChatNotFound        = errors.New("Chat not found")
	ErrFileNotFound        = errors.New("File not found in project")
	ErrFileTooLarge        = errors.New("File too large. Maximum size is 10MB.")
	ErrUnsupportedFileType = errors.New("File type not supported")
	ErrFileStorageDisabled = errors.New("File storage not configured")
	// ErrUpstream wraps failures of the LLM provider or the file service.
	ErrUpstream = errors.New("upstream service failure")
)

// InputError is a validation failure whose message is safe to show the client.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func invalidInput(msg string) error {
	return &InputError{Message: msg}
}
