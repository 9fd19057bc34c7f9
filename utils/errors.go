package utils

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorKind classifies pipeline failures
type ErrorKind int

const (
	KindUpstream ErrorKind = iota
	KindInvalidInput
	KindUnsupported
	KindNotFound
	KindTimeout
	KindNoSuitableFormat
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "INVALID_INPUT"
	case KindUnsupported:
		return "UNSUPPORTED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindTimeout:
		return "TIMEOUT"
	case KindNoSuitableFormat:
		return "NO_SUITABLE_FORMAT"
	default:
		return "UPSTREAM_ERROR"
	}
}

// Status is the HTTP status a kind maps to before any byte is committed.
// Timeout is a kind of upstream failure and shares its 502.
func (k ErrorKind) Status() int {
	switch k {
	case KindInvalidInput, KindNoSuitableFormat:
		return fiber.StatusBadRequest
	case KindUnsupported:
		return fiber.StatusUnprocessableEntity
	case KindNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusBadGateway
	}
}

// Error is a classified failure. Message is safe to show to callers.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error wrapping cause (which may be nil)
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf reports the kind of err; unclassified errors count as upstream failures
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// IsKind reports whether err is a classified error of kind k
func IsKind(err error, k ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
