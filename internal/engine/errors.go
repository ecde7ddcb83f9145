package engine

import (
	"errors"
	"fmt"
)

// Error is returned by every Engine operation that fails.
//
// Code identifies the category; Term names the term the failure is about
// when there is one. Err carries the underlying cause for errors.Is.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Term is the affected term, if any.
	Term string

	// Err is the wrapped cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeStorage indicates the store rejected a read or write. The pass
	// was aborted and its working set discarded; nothing partial was written.
	ErrCodeStorage ErrorCode = "STORAGE"

	// ErrCodeNotReady indicates a term the change needs is already taking
	// part in an open commit. Nothing was staged.
	ErrCodeNotReady ErrorCode = "NOT_READY"

	// ErrCodeDangling indicates a rule body names a term that does not exist.
	ErrCodeDangling ErrorCode = "DANGLING_REFERENCE"

	// ErrCodeNameTaken indicates a rename or create targets an existing name.
	ErrCodeNameTaken ErrorCode = "NAME_TAKEN"

	// ErrCodeUnknownTerm indicates the named term does not exist.
	ErrCodeUnknownTerm ErrorCode = "UNKNOWN_TERM"

	// ErrCodeInvalidChange indicates the change failed validation.
	ErrCodeInvalidChange ErrorCode = "INVALID_CHANGE"

	// ErrCodeNoCommit indicates an approval or finish with no open commit.
	ErrCodeNoCommit ErrorCode = "NO_COMMIT"

	// ErrCodeCommitPending indicates a finish while participants still wait.
	ErrCodeCommitPending ErrorCode = "COMMIT_PENDING"

	// ErrCodeConflict indicates the store or the caller's snapshot no
	// longer matches what the engine staged against.
	ErrCodeConflict ErrorCode = "CONFLICT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Term != "" {
		msg = fmt.Sprintf("%s (term=%s)", msg, e.Term)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotReady returns true if err is a NOT_READY error.
func IsNotReady(err error) bool { return CodeOf(err) == ErrCodeNotReady }

// IsDangling returns true if err is a DANGLING_REFERENCE error.
func IsDangling(err error) bool { return CodeOf(err) == ErrCodeDangling }

// IsStorage returns true if err is a STORAGE error.
func IsStorage(err error) bool { return CodeOf(err) == ErrCodeStorage }

// IsConflict returns true if err is a CONFLICT error.
func IsConflict(err error) bool { return CodeOf(err) == ErrCodeConflict }

// IsCommitPending returns true if err is a COMMIT_PENDING error.
func IsCommitPending(err error) bool { return CodeOf(err) == ErrCodeCommitPending }

func newError(code ErrorCode, name, format string, args ...any) *Error {
	return &Error{Code: code, Term: name, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code ErrorCode, name string, err error, format string, args ...any) *Error {
	return &Error{Code: code, Term: name, Message: fmt.Sprintf(format, args...), Err: err}
}
