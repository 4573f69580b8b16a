package usecase

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound: the referenced CRM item does not exist.
	KindNotFound
	// KindExternalService: CRM or messaging provider unreachable or rejected the call.
	KindExternalService
	// KindValidation: malformed input or a missing required field such as the phone number.
	KindValidation
	// KindConflict: a lead with the same external id already exists.
	KindConflict
	// KindInternal: local persistence failure.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindExternalService:
		return "EXTERNAL_SERVICE_ERROR"
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindConflict:
		return "CONFLICT"
	case KindInternal:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsExpected reports errors that callers acknowledge as a skip rather than a failure.
func IsExpected(err error) bool {
	return IsKind(err, KindConflict) || IsKind(err, KindValidation)
}
