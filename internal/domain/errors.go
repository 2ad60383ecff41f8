package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common failures across the storage gateway, the room registry
// and the message router.
var (
	// ErrNotFound is returned when a referenced user, room or message does
	// not exist.
	ErrNotFound = errors.New("requested resource not found")

	// ErrTransportUnavailable is returned when the broadcast backbone or the
	// room registry cannot be reached.
	ErrTransportUnavailable = errors.New("broadcast backbone unavailable")

	// ErrMalformedEvent is returned when an inbound client event is missing a
	// required field or carries an identity that does not match the session.
	ErrMalformedEvent = errors.New("malformed client event")

	// ErrStorage is returned when the storage gateway fails on a write.
	ErrStorage = errors.New("storage gateway failure")
)
