package auth

import (
	"errors"
	"fmt"
)

// Kind classifies authentication failures.
type Kind string

const (
	// KindConnection means the directory was unreachable or misconfigured.
	KindConnection Kind = "connection"
	// KindInvalidCredentials means the directory rejected the bind.
	KindInvalidCredentials Kind = "invalid_credentials"
	// KindSearch means the attribute search failed after a successful bind.
	KindSearch Kind = "search"
	// KindNotFound means the search returned no entry for the account.
	KindNotFound Kind = "not_found"
	// KindNotAuthorized means the identity lacks the required group.
	KindNotAuthorized Kind = "not_authorized"
	// KindSessionRestore means the session payload was malformed.
	KindSessionRestore Kind = "session_restore"
	// KindUnexpected covers everything else.
	KindUnexpected Kind = "unexpected"
)

// Sentinels for errors.Is checks.
var (
	ErrDirectoryUnavailable = errors.New("directory unavailable")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSearchFailed         = errors.New("directory search failed")
	ErrAccountNotFound      = errors.New("account not found")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrSessionRestore       = errors.New("malformed session identity")
	ErrUnexpected           = errors.New("unexpected authentication error")
)

var kindSentinels = map[Kind]error{
	KindConnection:         ErrDirectoryUnavailable,
	KindInvalidCredentials: ErrInvalidCredentials,
	KindSearch:             ErrSearchFailed,
	KindNotFound:           ErrAccountNotFound,
	KindNotAuthorized:      ErrNotAuthorized,
	KindSessionRestore:     ErrSessionRestore,
	KindUnexpected:         ErrUnexpected,
}

// Error is a classified authentication error. Detail carries raw directory text for
// logs and must never be rendered to end users.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

// NewError builds an Error, capturing the cause's text as Detail.
func NewError(kind Kind, op string, cause error) *Error {
	e := &Error{Kind: kind, Op: op, Err: cause}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf classifies err. Unclassified non-nil errors are KindUnexpected.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnexpected
}

// Outcome is the caller-visible result of an authentication attempt.
type Outcome string

const (
	OutcomeSuccess              Outcome = "success"
	OutcomeInvalidCredentials   Outcome = "invalid_credentials"
	OutcomeDirectoryUnavailable Outcome = "directory_unavailable"
	OutcomeNotAuthorized        Outcome = "not_authorized"
	OutcomeUnexpectedError      Outcome = "unexpected_error"
)

// OutcomeOf maps err onto an Outcome. Account-not-found is reported as invalid
// credentials so the response does not reveal whether an account exists.
func OutcomeOf(err error) Outcome {
	switch KindOf(err) {
	case "":
		return OutcomeSuccess
	case KindInvalidCredentials, KindNotFound:
		return OutcomeInvalidCredentials
	case KindConnection:
		return OutcomeDirectoryUnavailable
	case KindNotAuthorized:
		return OutcomeNotAuthorized
	default:
		return OutcomeUnexpectedError
	}
}

// UserMessage returns the end-user text for a failure kind.
func UserMessage(kind Kind) string {
	switch kind {
	case KindConnection:
		return "Unable to reach the directory service. Please try again later."
	case KindInvalidCredentials, KindNotFound:
		return "Invalid username or password."
	case KindSearch:
		return "We could not retrieve your directory information. Please try again."
	case KindNotAuthorized:
		return "You are not authorized to use this tool."
	case KindSessionRestore:
		return "Your session expired. Please sign in again."
	default:
		return "An unexpected error occurred while attempting to sign you in."
	}
}
