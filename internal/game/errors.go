package game

import (
	"errors"
	"fmt"
)

var (
	ErrNoActiveSession       = errors.New("no active session")
	ErrTurnSequenceViolation = errors.New("turn number does not match the current turn")
	ErrInvalidTurnCount      = errors.New("invalid turn count")
	ErrEmptyCandidateSet     = errors.New("empty candidate set")
	ErrUnknownArtist         = errors.New("unknown artist")
	ErrUnknownMode           = errors.New("unknown mode")
	ErrUnknownFocus          = errors.New("unknown artist focus")
	ErrSessionIncomplete     = errors.New("session has turns remaining")
	ErrNoTurnsRemaining      = errors.New("no turns remaining")
	ErrMissingUser           = errors.New("user id is required")
	ErrSessionNotFound       = errors.New("session not found")
)

// AdapterError wraps a failure reported by the session store.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("session store %s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// IsAdapterFailure reports whether err came from the session store.
func IsAdapterFailure(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae)
}
