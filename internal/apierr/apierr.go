// Package apierr defines the error taxonomy shared by the catalog, blob
// store, signaling hub, and HTTP layer. Components return *Error so the
// HTTP boundary can map it to a status code without re-deriving intent from
// a bare error string.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the error taxonomy buckets. It is a kind, not a type
// hierarchy: callers switch on it, they don't type-assert concrete structs.
type Kind int

const (
	KindValidation Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindGone
	KindLocked
	KindUpstream
	KindCollision
	KindFatal
)

// Error carries a Kind plus a client-safe message. Detail is for logs only
// and is never serialized to the client.
type Error struct {
	Kind    Kind
	Message string
	Detail  error
}

func (e *Error) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Detail)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Detail }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, detail error) *Error {
	return &Error{Kind: kind, Message: message, Detail: detail}
}

func NotFound(message string) *Error        { return New(KindNotFound, message) }
func Validation(message string) *Error      { return New(KindValidation, message) }
func Forbidden(message string) *Error       { return New(KindForbidden, message) }
func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }
func Gone(message string) *Error            { return New(KindGone, message) }
func Locked(message string) *Error          { return New(KindLocked, message) }
func Collision(message string) *Error       { return New(KindCollision, message) }
func Upstream(message string, detail error) *Error {
	return Wrap(KindUpstream, message, detail)
}

// As extracts *Error from err, returning ok=false when err is nil or not of
// this type (or wrapped to it).
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
