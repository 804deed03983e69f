package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping and logging. The pipeline
// kinds mirror the processing failure taxonomy; the remaining kinds cover
// ambient concerns (config, bootstrap, transport, cache).
type Kind string

const (
	KindConfig    Kind = "config"
	KindBootstrap Kind = "bootstrap"
	KindTransport Kind = "transport"
	KindCache     Kind = "cache"

	KindUnsupportedFormat Kind = "unsupported_format"
	KindRawDecode         Kind = "raw_decode"
	KindMissingCapability Kind = "missing_capability"
	KindMetadataCorrupt   Kind = "metadata_corrupt"
	KindInvalidParameter  Kind = "invalid_parameter"
	KindBusy              Kind = "busy"
	KindInternal          Kind = "internal"

	KindUnknown Kind = "unknown"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap attaches a kind, operation and message to err. An err that already
// carries a kind passes through unchanged so the original classification
// survives multi-layer wrapping.
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// IsKind checks whether any error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	for err != nil {
		if errors.As(err, &target) {
			return target.Kind == kind
		}
		err = errors.Unwrap(err)
	}
	return false
}

// KindOf returns the kind of the first classified error in the chain, or
// KindUnknown when none carries one.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}
