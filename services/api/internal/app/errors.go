package app

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is shown to end users and must not enable account enumeration.
	ErrInvalidCredentials = errors.New("incorrect email address or password")

	// ErrUserDisabled is returned when an account is deactivated. Handlers
	// report it as ErrInvalidCredentials to clients.
	ErrUserDisabled = errors.New("user disabled")

	ErrUnauthenticated      = errors.New("authentication required")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrEmailAlreadyExists   = errors.New("email already exists")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrRefreshTokenRequired = errors.New("refresh token required")
	ErrInvalidVerifyToken   = errors.New("invalid or expired verification token")
	ErrAlreadyVerified      = errors.New("email already verified")
	ErrSlugTaken            = errors.New("slug already in use")
	ErrAlreadyLiked         = errors.New("project already liked")
	ErrAlreadyExists        = errors.New("already exists")
	ErrInUse                = errors.New("still referenced by other records")
	ErrUnsupportedFile      = errors.New("file type not allowed")
	ErrStorageUnavailable   = errors.New("object storage not configured")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
