// internal/types/ids.go
package types

import (
	"fmt"

	"github.com/google/uuid"
)

type RunID string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// AuthorID is the identity stamped on every automatically imported event row.
type AuthorID string

// ParseAuthorID validates s as a UUID and returns it in canonical form.
func ParseAuthorID(s string) (AuthorID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse author id %q: %w", s, err)
	}
	return AuthorID(id.String()), nil
}
