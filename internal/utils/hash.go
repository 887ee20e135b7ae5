package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewOpaqueToken returns a random 36 character token string.
func NewOpaqueToken() string {
	return uuid.NewString()
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
