// ABOUTME: Tagged error kinds and string sentinel codes for domain failures
// ABOUTME: Callers branch on Kind; the bot surfaces Code strings across the boundary

package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure. It decides how the dispatcher recovers:
// Validation and Conflict keep the active session (re-prompt in place),
// Denied and NotFound clear it and return the user to a safe menu,
// Storage produces a generic failure message and is logged.
type Kind int

const (
	// Validation is malformed or out-of-range user input.
	Validation Kind = iota
	// Denied means the actor lacks the required role.
	Denied
	// NotFound means a stale code/id referenced a missing or ended entity.
	NotFound
	// Conflict is a state conflict: double vote, inactive poll, terminal conference.
	Conflict
	// Storage is a persistence or transport failure.
	Storage
)

// Sentinel codes surfaced across the boundary.
const (
	CodeConferenceNotFound = "CONFERENCE_NOT_FOUND"
	CodeAccessDenied       = "ACCESS_DENIED"
	CodeTargetNotFound     = "TARGET_USER_NOT_FOUND"
	CodeTargetNotAdmin     = "TARGET_USER_NOT_ADMIN"
	CodeAlreadyVoted       = "ALREADY_VOTED"
	CodeNotSpeaker         = "NOT_SPEAKER"
	CodeQuestionNotForYou  = "QUESTION_NOT_FOR_YOU"
	CodePollNotFound       = "POLL_NOT_FOUND"
	CodeQuestionNotFound   = "QUESTION_NOT_FOUND"
	CodeStorageFailure     = "STORAGE_FAILURE"
)

// Error is a classified domain failure with a stable string code.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Code + ": " + e.Msg
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.err }

// New creates a fault with the given kind and code.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// Validationf creates a validation fault. The code carries the details so the
// boundary sees VALIDATION_ERROR:<details>.
func Validationf(format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: Validation, Code: "VALIDATION_ERROR:" + msg, Msg: msg}
}

// Storagef wraps a persistence failure.
func Storagef(err error, op string) *Error {
	return &Error{Kind: Storage, Code: CodeStorageFailure, Msg: op, err: err}
}

// KindOf returns the kind of err, or Storage for unclassified errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Storage
}

// CodeOf returns the sentinel code of err, or CodeStorageFailure for
// unclassified errors.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeStorageFailure
}

// IsCode reports whether err carries the given sentinel code.
func IsCode(err error, code string) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// Recoverable reports whether the active flow session should survive err.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case Validation, Conflict:
		return true
	default:
		return false
	}
}
