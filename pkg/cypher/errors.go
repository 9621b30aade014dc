package cypher

import (
	"context"
	"errors"

	"github.com/orneryd/nexus/pkg/storage"
	"github.com/orneryd/nexus/pkg/value"
)

// Statement errors. Every error returned by the kernel wraps one of these.
var (
	ErrSyntax                = errors.New("syntax error")
	ErrUnknownVariable       = errors.New("unknown variable")
	ErrUnsupportedExpression = errors.New("unsupported expression")
	ErrTypeMismatch          = value.ErrTypeMismatch
	ErrInvalidNumber         = value.ErrInvalidNumber
	ErrConstraintViolation   = errors.New("constraint violation")
	ErrQueryTimeout          = errors.New("query timeout")
	ErrStorage               = errors.New("storage error")
	ErrTransactionActive     = errors.New("transaction already active")
	ErrNoActiveTransaction   = errors.New("no active transaction")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionRequired       = errors.New("transaction statements require a session")
	ErrSessionsClosed        = errors.New("session manager closed")
)

// ErrorKind classifies a kernel error so the transport layer can pick a
// status code.
type ErrorKind string

const (
	KindNone                  ErrorKind = ""
	KindParse                 ErrorKind = "ParseError"
	KindUnknownVariable       ErrorKind = "UnknownVariable"
	KindUnsupportedExpression ErrorKind = "UnsupportedExpression"
	KindTypeMismatch          ErrorKind = "TypeMismatch"
	KindInvalidNumber         ErrorKind = "InvalidNumber"
	KindConstraint            ErrorKind = "ConstraintViolation"
	KindQueryTimeout          ErrorKind = "QueryTimeout"
	KindTransaction           ErrorKind = "TransactionError"
	KindSessionNotFound       ErrorKind = "SessionNotFound"
	KindStorage               ErrorKind = "StorageError"
	KindInternal              ErrorKind = "InternalError"
)

// Classify maps err onto the error taxonomy.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrSyntax):
		return KindParse
	case errors.Is(err, ErrQueryTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindQueryTimeout
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrUnknownVariable):
		return KindUnknownVariable
	case errors.Is(err, ErrUnsupportedExpression):
		return KindUnsupportedExpression
	case errors.Is(err, ErrTypeMismatch):
		return KindTypeMismatch
	case errors.Is(err, ErrInvalidNumber):
		return KindInvalidNumber
	case errors.Is(err, ErrConstraintViolation):
		return KindConstraint
	case errors.Is(err, ErrTransactionActive), errors.Is(err, ErrNoActiveTransaction), errors.Is(err, ErrSessionRequired):
		return KindTransaction
	case errors.Is(err, ErrSessionNotFound):
		return KindSessionNotFound
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrStorageClosed):
		return KindStorage
	}
	return KindInternal
}
