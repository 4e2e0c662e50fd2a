package graph

import "errors"

var (
	// ErrConstraintViolation reports that a create lost a uniqueness race.
	ErrConstraintViolation = errors.New("uniqueness constraint violated")

	// ErrSessionClosed reports an operation on a session already torn down.
	ErrSessionClosed = errors.New("session closed")
)
