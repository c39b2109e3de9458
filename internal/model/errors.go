package model

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownItem matches any UnknownItemError via errors.Is.
	ErrUnknownItem = errors.New("unknown item")
	// ErrCorruptSnapshot matches any CorruptSnapshotError via errors.Is.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// UnknownItemError is returned when an item id is not present in the question bank.
type UnknownItemError struct {
	ItemID int64
}

func (e *UnknownItemError) Error() string {
	return fmt.Sprintf("unknown item %d", e.ItemID)
}

// Is lets errors.Is(err, ErrUnknownItem) succeed.
func (e *UnknownItemError) Is(target error) bool {
	return target == ErrUnknownItem
}

// CorruptSnapshotError reports a persisted snapshot that failed validation.
// The engine has already fallen back to an empty state when it is returned.
type CorruptSnapshotError struct {
	Learner string
	Reason  string
	Err     error
}

func (e *CorruptSnapshotError) Error() string {
	msg := fmt.Sprintf("corrupt snapshot for learner %q: %s", e.Learner, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptSnapshotError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrCorruptSnapshot) succeed.
func (e *CorruptSnapshotError) Is(target error) bool {
	return target == ErrCorruptSnapshot
}
