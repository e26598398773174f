package durable

import (
	"errors"
	"fmt"

	ierrors "github.com/durablehq/sdk-go/internal/errors"
)

// Code is the failure-code taxonomy used both for terminal failures
// surfaced to user code and for ErrorMessages sent to the runtime.
type Code uint32

const (
	CodeOK              Code = Code(ierrors.CodeOK)
	CodeCancelled       Code = Code(ierrors.CodeCancelled)
	CodeUnknown         Code = Code(ierrors.CodeUnknown)
	CodeInvalidArgument Code = Code(ierrors.CodeInvalidArgument)
	CodeNotFound        Code = Code(ierrors.CodeNotFound)
	CodeInternal        Code = Code(ierrors.CodeInternal)
	CodeUnimplemented   Code = Code(ierrors.CodeUnimplemented)
)

func (c Code) String() string { return ierrors.Code(c).String() }

// ErrKeyNotFound is returned by Get for a key with no value, local or
// eager.
var ErrKeyNotFound = errors.New("durable: key not found")

// terminalError is the concrete error type produced by TerminalError and
// recognised by IsTerminalError/ErrorCode.
type terminalError struct {
	code    Code
	message string
}

func (e *terminalError) Error() string { return e.message }

// TerminalError wraps err so that, if it escapes a handler, the engine
// surfaces it to the runtime as the invocation's terminal failure instead
// of retrying the whole invocation. codes, if given, overrides the
// default CodeUnknown.
func TerminalError(err error, codes ...Code) error {
	if err == nil {
		return nil
	}
	code := CodeUnknown
	if len(codes) > 0 {
		code = codes[0]
	}
	if len(codes) > 1 {
		panic("durable: TerminalError accepts at most one code")
	}
	return &terminalError{code: code, message: err.Error()}
}

// IsTerminalError reports whether err (or something it wraps) was produced
// by TerminalError.
func IsTerminalError(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}

// ErrorCode extracts the Code carried by a TerminalError, or CodeInternal
// for any other error.
func ErrorCode(err error) Code {
	var t *terminalError
	if errors.As(err, &t) {
		return t.code
	}
	return CodeInternal
}

// TerminalErrorFrom reconstructs a terminal error from a (code, message)
// pair carried on the wire, used when a deferred result resolves with a
// failure so user code can observe it via errors.As.
func TerminalErrorFrom(code Code, message string) error {
	return &terminalError{code: code, message: fmt.Sprintf("%s: %s", code, message)}
}
