package types

import "github.com/google/uuid"

// NewID returns a fresh record identifier: a UUID v7, or a random v4 if the
// v7 generator fails.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
