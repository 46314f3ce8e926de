package queue

import (
	"fmt"

	"github.com/venue-queue-system/pkg/models"
)

// ValidationError means the input was absent or malformed. Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError means the referenced entity does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// InvalidStateError means the entry exists but is in the wrong lifecycle
// state for the requested transition. Surfaced as a conflict; the losing side
// of an advance race sees this.
type InvalidStateError struct {
	EntryID       string
	CurrentStatus models.EntryStatus
	Message       string
}

func (e *InvalidStateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("entry %s is in state %q", e.EntryID, e.CurrentStatus)
}
