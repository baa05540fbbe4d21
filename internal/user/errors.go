package user

import "errors"

var (
	// ErrMissingToken is returned when no bearer credential was presented.
	ErrMissingToken = errors.New("missing token")

	// ErrInvalidToken is returned when the credential fails signature, issuer or expiry checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUserNotFound is returned when the token subject no longer exists in the directory.
	ErrUserNotFound = errors.New("user not found")
)
