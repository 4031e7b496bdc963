package model

import (
	"strings"

	"github.com/google/uuid"
)

// NewUID returns a random 32 character hex identifier.
func NewUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
