package domain

import "errors"

var (
	// ErrUnauthorized caller is not allowed on this group or message
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAuthRejected credential did not resolve to an identity
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrInvalidArgument bad input, e.g. empty text
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTransportFailure realtime connection failed
	ErrTransportFailure = errors.New("transport failure")
	// ErrPersistenceFailure message store failed
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrNotFound message or group not found
	ErrNotFound = errors.New("not found")
	// ErrSessionClosed session already closed
	ErrSessionClosed = errors.New("session closed")
)
