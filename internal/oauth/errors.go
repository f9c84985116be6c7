package oauth

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind is the stable, caller-visible name of a sign-in failure.
type ErrorKind string

const (
	KindMissingState          ErrorKind = "missing_state"
	KindInvalidState          ErrorKind = "invalid_state"
	KindInvalidCode           ErrorKind = "invalid_code"
	KindTokenExchangeFailed   ErrorKind = "token_exchange_failed"
	KindInvalidProfile        ErrorKind = "invalid_profile"
	KindEmailNotVerified      ErrorKind = "email_not_verified"
	KindNotLinked             ErrorKind = "oauth_not_linked"
	KindUserExists            ErrorKind = "user_exists"
	KindAccountCreationFailed ErrorKind = "account_creation_failed"
	KindRollbackFailed        ErrorKind = "rollback_failed"
	KindSessionFetchFailed    ErrorKind = "session_fetch_failed"
	KindCredentialsMissing    ErrorKind = "credentials_missing"
	KindInitFailed            ErrorKind = "oauth_init_failed"
	KindUnexpected            ErrorKind = "unexpected_error"
)

// Error is a classified sign-in failure. Email, Provider and UserID are set
// where the kind needs them: Email for conflicts, all three for
// rollback_failed so the orphaned account can be reconciled by hand.
type Error struct {
	Kind     ErrorKind
	Message  string
	Email    string
	Provider string
	UserID   uuid.UUID
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error of the given kind wrapping err.
func Errorf(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindUnexpected for any other non-nil error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
