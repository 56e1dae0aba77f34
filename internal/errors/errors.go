// Package errors defines the structured error taxonomy for compile requests.
//
// Every failure a request can hit is an *Error with a Kind (auth, validation,
// compiler, timeout, internal) and a Reason. The HTTP layer maps kinds to status
// codes; compiler and timeout errors carry diagnostic tails for the client.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is the top-level category of a request failure.
type Kind string

const (
	KindAuth       Kind = "auth"
	KindValidation Kind = "validation"
	KindCompiler   Kind = "compiler"
	KindTimeout    Kind = "timeout"
	KindInternal   Kind = "internal"
)

// Reason narrows a Kind.
type Reason string

const (
	ReasonMissing Reason = "missing"
	ReasonInvalid Reason = "invalid"

	ReasonEmptyInput     Reason = "empty_input"
	ReasonMalformedJSON  Reason = "malformed_json"
	ReasonBodyTooLarge   Reason = "body_too_large"
	ReasonInvalidTimeout Reason = "invalid_timeout"

	ReasonNonzeroExit     Reason = "nonzero_exit"
	ReasonMissingArtifact Reason = "missing_artifact"

	ReasonDeadline Reason = "deadline"

	ReasonFilesystem        Reason = "filesystem"
	ReasonEngineUnavailable Reason = "engine_unavailable"
	ReasonUnexpected        Reason = "unexpected"
)

// Diagnostics are the truncated engine streams returned to clients.
type Diagnostics struct {
	ExitCode   *int   `json:"return_code,omitempty"`
	StdoutTail string `json:"stdout_tail"`
	StderrTail string `json:"stderr_tail"`
	LogTail    string `json:"log,omitempty"`
}

// Error is a classified request failure.
type Error struct {
	Kind        Kind
	Reason      Reason
	Message     string
	Cause       error
	Diagnostics *Diagnostics
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Reason, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Auth builds an authentication failure.
func Auth(reason Reason, message string) *Error {
	return &Error{Kind: KindAuth, Reason: reason, Message: message}
}

// Validation builds a request validation failure.
func Validation(reason Reason, message string) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Message: message}
}

// Compiler builds a compiler-reported failure with diagnostics attached.
func Compiler(reason Reason, message string, diag Diagnostics) *Error {
	return &Error{Kind: KindCompiler, Reason: reason, Message: message, Diagnostics: &diag}
}

// Timeout builds a wall-clock timeout failure. diag holds whatever output the
// engine produced before it was terminated.
func Timeout(message string, diag Diagnostics) *Error {
	return &Error{Kind: KindTimeout, Reason: ReasonDeadline, Message: message, Diagnostics: &diag}
}

// Internal builds a server-side failure. The cause is for logs only.
func Internal(reason Reason, message string, cause error) *Error {
	return &Error{Kind: KindInternal, Reason: reason, Message: message, Cause: cause}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf classifies err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
