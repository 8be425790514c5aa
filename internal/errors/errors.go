package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeNotInitialized     ErrorType = "NOT_INITIALIZED"
	ErrorTypeAlreadyInitialized ErrorType = "ALREADY_INITIALIZED"
	ErrorTypeFileNotFound       ErrorType = "FILE_NOT_FOUND"
	ErrorTypeNothingStaged      ErrorType = "NOTHING_STAGED"
	ErrorTypeNotFound           ErrorType = "NOT_FOUND"
	ErrorTypeBrokenChain        ErrorType = "BROKEN_CHAIN"
	ErrorTypeRemoteUnreachable  ErrorType = "REMOTE_UNREACHABLE"
	ErrorTypeDivergentHistory   ErrorType = "DIVERGENT_HISTORY"
	ErrorTypeLocked             ErrorType = "LOCKED"
	ErrorTypeValidation         ErrorType = "VALIDATION"
)

// exitCodes maps each error type to the process exit status used by the CLI.
var exitCodes = map[ErrorType]int{
	ErrorTypeNotInitialized:     2,
	ErrorTypeAlreadyInitialized: 3,
	ErrorTypeFileNotFound:       4,
	ErrorTypeNothingStaged:      5,
	ErrorTypeNotFound:           6,
	ErrorTypeBrokenChain:        7,
	ErrorTypeRemoteUnreachable:  8,
	ErrorTypeDivergentHistory:   9,
	ErrorTypeLocked:             10,
	ErrorTypeValidation:         11,
}

// Error is the error type returned by every repository operation.
// Two errors are considered equal by errors.Is when their types match,
// so callers can compare against the sentinels below.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == e.Type
}

func newError(t ErrorType, err error, format string, args ...any) *Error {
	return &Error{
		Type:    t,
		Message: fmt.Sprintf(format, args...),
		Code:    exitCodes[t],
		Err:     err,
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotInitialized     = newError(ErrorTypeNotInitialized, nil, "not a drift repository")
	ErrAlreadyInitialized = newError(ErrorTypeAlreadyInitialized, nil, "repository already initialized")
	ErrFileNotFound       = newError(ErrorTypeFileNotFound, nil, "file not found")
	ErrNothingStaged      = newError(ErrorTypeNothingStaged, nil, "nothing staged")
	ErrNotFound           = newError(ErrorTypeNotFound, nil, "not found")
	ErrBrokenChain        = newError(ErrorTypeBrokenChain, nil, "broken commit chain")
	ErrRemoteUnreachable  = newError(ErrorTypeRemoteUnreachable, nil, "remote unreachable")
	ErrDivergentHistory   = newError(ErrorTypeDivergentHistory, nil, "divergent history")
	ErrLocked             = newError(ErrorTypeLocked, nil, "repository locked")
	ErrValidation         = newError(ErrorTypeValidation, nil, "invalid input")
)

func NotInitialized(root string) *Error {
	return newError(ErrorTypeNotInitialized, nil, "not a drift repository (or any parent up to /): %s", root)
}

func AlreadyInitialized(root string) *Error {
	return newError(ErrorTypeAlreadyInitialized, nil, "repository already initialized in %s", root)
}

func FileNotFound(path string, err error) *Error {
	return newError(ErrorTypeFileNotFound, err, "file not found: %s", path)
}

func NothingStaged() *Error {
	return newError(ErrorTypeNothingStaged, nil, "nothing staged for commit (use \"drift add <file>\")")
}

// NotFound reports a missing object; what is "blob", "commit" and so on.
func NotFound(what, id string) *Error {
	return newError(ErrorTypeNotFound, nil, "%s not found: %s", what, id)
}

func BrokenChain(commitID, parentID string) *Error {
	return newError(ErrorTypeBrokenChain, nil, "commit %s references missing parent %s", commitID, parentID)
}

// Corrupted reports an object whose content does not hash to its id. It
// shares the BrokenChain kind: history that cannot be trusted.
func Corrupted(what, id string, err error) *Error {
	return newError(ErrorTypeBrokenChain, err, "%s %s is corrupt", what, short(id))
}

func RemoteUnreachable(op string, err error) *Error {
	return newError(ErrorTypeRemoteUnreachable, err, "remote unreachable during %s", op)
}

func DivergentHistory(local, remote string) *Error {
	return newError(ErrorTypeDivergentHistory, nil,
		"local head %s and remote head %s have diverged (merging is not supported)", short(local), short(remote))
}

func Locked(root string, err error) *Error {
	return newError(ErrorTypeLocked, err, "repository %s is in use by another drift process", root)
}

func ValidationError(format string, args ...any) *Error {
	return newError(ErrorTypeValidation, nil, format, args...)
}

// TypeOf returns the ErrorType carried by err, or "" for foreign errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ""
}

// ExitCode returns the CLI exit status for err. Unknown errors exit with 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := exitCodes[TypeOf(err)]; ok {
		return code
	}
	return 1
}

func short(id string) string {
	if id == "" {
		return "(none)"
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
