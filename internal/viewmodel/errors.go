// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package viewmodel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/revgeo/internal/vartype"
)

// ErrorKind classifies a LookupError.
type ErrorKind string

const (
	KindPermissionDenied    ErrorKind = "PermissionDenied"
	KindPositionFetchFailed ErrorKind = "PositionFetchFailed"
	KindGeocodeLookupFailed ErrorKind = "GeocodeLookupFailed"
	KindNoLocationSelected  ErrorKind = "NoLocationSelected"
)

// LookupError is the user visible error of the last operation. Message is shown inline, Cause is the
// unprefixed message of the underlying error. Stack holds the chain of wrapped errors that led to it
// and is unset for errors that wrap nothing.
type LookupError struct {
	Kind    ErrorKind         `json:"kind" yaml:"kind"`
	Message string            `json:"message" yaml:"message"`
	Cause   string            `json:"cause,omitempty" yaml:"cause,omitempty"`
	Stack   vartype.VarString `json:"stack" yaml:"stack"`
}

func newLookupError(kind ErrorKind, message string, cause error) *LookupError {
	lookupErr := &LookupError{Kind: kind, Message: message}
	if cause != nil {
		lookupErr.Cause = cause.Error()
	}
	if stack := errorStack(cause); stack != "" {
		lookupErr.Stack.Set(stack)
	}
	return lookupErr
}

// AlertBody returns the text of the blocking notification. It carries the raw cause, the inline
// Message prefix is left out.
func (e *LookupError) AlertBody() string {
	message := e.Cause
	if message == "" {
		message = e.Message
	}
	stack := NoStackLabel
	if e.Stack.IsSet() {
		stack = e.Stack.Value()
	}
	return fmt.Sprintf("Error: %s\n\nStack: %s", message, stack)
}

// errorStack renders the chain of wrapped errors, one error per line, indented by depth. Joined
// errors are listed one after another. Errors that wrap nothing have no stack.
func errorStack(err error) string {
	if err == nil || !wraps(err) {
		return ""
	}
	var b strings.Builder
	writeStack(&b, err, 0)
	return strings.TrimRight(b.String(), "\n")
}

func writeStack(b *strings.Builder, err error, depth int) {
	fmt.Fprintf(b, "%s%T: %s\n", strings.Repeat("  ", depth), err, err.Error())
	switch wrapped := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range wrapped.Unwrap() {
			if inner != nil {
				writeStack(b, inner, depth+1)
			}
		}
	default:
		if inner := errors.Unwrap(err); inner != nil {
			writeStack(b, inner, depth+1)
		}
	}
}

func wraps(err error) bool {
	switch wrapped := err.(type) {
	case interface{ Unwrap() []error }:
		return len(wrapped.Unwrap()) > 0
	case interface{ Unwrap() error }:
		return wrapped.Unwrap() != nil
	}
	return false
}
