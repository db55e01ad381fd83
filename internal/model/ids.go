package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidID is returned when an entity id is not a UUID.
var ErrInvalidID = errors.New("invalid id")

// NewID returns a fresh client-generated entity id.
func NewID() string {
	return uuid.NewString()
}

// ValidateID rejects ids that are not UUIDs.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	return nil
}

// ValidateIDs rejects the first id that is not a UUID.
func ValidateIDs(ids ...string) error {
	for _, id := range ids {
		if err := ValidateID(id); err != nil {
			return err
		}
	}
	return nil
}
