package chat

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound: the referenced conversation or listing does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized: the caller is authenticated but not a participant.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput: the request is malformed or violates a precondition.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict: a storage uniqueness constraint rejected the write.
	ErrConflict = errors.New("conflict")
)

// OpError is a typed operation error. Kind is one of the sentinels above; Msg is
// safe to show to clients.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

func notFound(op, msg string) error {
	return OpError{Op: op, Kind: ErrNotFound, Msg: msg}
}

func unauthorized(op string) error {
	return OpError{Op: op, Kind: ErrUnauthorized, Msg: "Unauthorized"}
}

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }

// ClientMessage returns the client-safe text of err. ok is false for persistence
// failures, whose details stay in the server log.
func ClientMessage(err error) (msg string, ok bool) {
	var oe OpError
	if errors.As(err, &oe) && oe.Msg != "" && oe.Kind != ErrConflict {
		return oe.Msg, true
	}
	return "", false
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsUnauthorized(err):
		return http.StatusForbidden
	case IsInvalidInput(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
