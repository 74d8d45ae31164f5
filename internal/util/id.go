package util

import "github.com/google/uuid"

// NewID returns a random (v4) UUID string. Every entity and job id uses it.
func NewID() string {
	return uuid.NewString()
}

// IsID reports whether s is a canonical UUID.
func IsID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
