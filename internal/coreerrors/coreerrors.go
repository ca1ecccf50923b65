// Package coreerrors defines the structured error taxonomy shared across
// the coordination core, and its mapping onto gRPC status codes at the RPC
// boundary.
//
// Grounded on the teacher's StorageError in
// storage-node/internal/errors/codes.go, trimmed to the coordination core's
// own failure taxonomy.
package coreerrors

import (
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code identifies the category of a CoreError.
type Code int

const (
	Unknown Code = iota
	NotFound
	Transport
	Storage
	QuorumUnmet
	InvariantViolation
	PeerUnavailable
)

func (c Code) String() string {
	switch c {
	case NotFound:
		return "NotFound"
	case Transport:
		return "Transport"
	case Storage:
		return "Storage"
	case QuorumUnmet:
		return "QuorumUnmet"
	case InvariantViolation:
		return "InvariantViolation"
	case PeerUnavailable:
		return "PeerUnavailable"
	default:
		return "Unknown"
	}
}

// CoreError is the structured error type returned by every component.
type CoreError struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Cause   error
}

// New builds a CoreError with no cause.
func New(code Code, message string) *CoreError {
	return &CoreError{Code: code, Message: message, Details: make(map[string]interface{})}
}

// Wrap builds a CoreError carrying an underlying cause.
func Wrap(code Code, message string, cause error) *CoreError {
	return &CoreError{Code: code, Message: message, Details: make(map[string]interface{}), Cause: cause}
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value detail and returns the same error for
// chaining.
func (e *CoreError) WithDetail(key string, value interface{}) *CoreError {
	e.Details[key] = value
	return e
}

// ToGRPCStatus converts a CoreError into a gRPC status carrying its code.
func (e *CoreError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

func (e *CoreError) toGRPCCode() codes.Code {
	switch e.Code {
	case NotFound:
		return codes.NotFound
	case Transport, PeerUnavailable:
		return codes.Unavailable
	case QuorumUnmet:
		return codes.Aborted
	case InvariantViolation:
		return codes.Internal
	case Storage:
		return codes.DataLoss
	default:
		return codes.Unknown
	}
}

// GetCode extracts the Code from err, returning Unknown if err is not (or
// does not wrap) a CoreError.
func GetCode(err error) Code {
	var ce *CoreError
	if As(err, &ce) {
		return ce.Code
	}
	return Unknown
}

// As walks err's Unwrap chain and stores the first *CoreError it finds in
// target, reporting whether one was found. It follows single-error Unwrap
// only; errors joined with errors.Join are not searched.
func As(err error, target **CoreError) bool {
	for err != nil {
		if ce, ok := err.(*CoreError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Escalate logs err as fatal via logger and terminates the process. No code
// in this module calls it; cmd/node logs its own fatal startup errors
// directly.
func Escalate(logger *zap.Logger, msg string, err error) {
	logger.Fatal(msg, zap.Error(err))
}
