package call

import "errors"

var (
	// ErrValidation indicates a missing or malformed identifier, rejected
	// before any store write.
	ErrValidation = errors.New("call: missing or malformed identifier")

	// ErrNotFound indicates the referenced session or token is absent,
	// meaning the call was already resolved or expired.
	ErrNotFound = errors.New("call: session not found")

	// ErrNotParticipant indicates the requesting user is not a party to the
	// session.
	ErrNotParticipant = errors.New("call: user is not a party to the session")
)
