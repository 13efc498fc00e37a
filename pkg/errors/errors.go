// Package errors contains the error helpers used throughout versync. Errors
// are wrapped with short context strings as they propagate, so that the final
// message reads like a trace of what was being attempted, e.g.
// "sync v00000005: upload files: connection refused".
package errors

import (
	goerrors "errors"
	"fmt"
)

// New returns an error with the given message. The message is formatted with
// fmt.Sprintf if args are given.
func New(msg string, args ...interface{}) error {
	if len(args) == 0 {
		return goerrors.New(msg)
	}
	return fmt.Errorf(msg, args...)
}

// WithContext wraps `err` with a description of what was being attempted when
// it occurred. It returns nil if `err` is nil.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{context: context, cause: err}
}

type contextError struct {
	context string
	cause   error
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.cause)
}

func (err contextError) Unwrap() error {
	return err.cause
}

// RootCause returns the innermost error wrapped by WithContext.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(contextError)
		if !ok {
			return err
		}
		err = ctxErr.cause
	}
}

// Is and As expose the standard library helpers so that callers don't need to
// import both error packages.
func Is(err, target error) bool {
	return goerrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return goerrors.As(err, target)
}

type friendlyError interface {
	FriendlyMessage() string
}

// FriendlyError is an error whose message is meant to be shown to users as is,
// without the context that led up to it.
type FriendlyError struct {
	msg string
}

// NewFriendlyError creates a FriendlyError from the given template.
func NewFriendlyError(template string, args ...interface{}) FriendlyError {
	return FriendlyError{fmt.Sprintf(template, args...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage returns the message to show to users.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}

// GetPrintableMessage returns the friendly message if the root cause of `err`
// has one. Otherwise, it returns the full error string.
func GetPrintableMessage(err error) string {
	var friendly friendlyError
	if As(err, &friendly) {
		return friendly.FriendlyMessage()
	}
	return err.Error()
}
