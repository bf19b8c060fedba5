package goSession

import "errors"

var (
	// ErrOriginRequired is returned when an operation is called with an empty origin.
	ErrOriginRequired = errors.New("origin is required")
	// ErrOriginNotConfigured is returned when an operation names an origin that was never defined.
	ErrOriginNotConfigured = errors.New("origin not configured")
	// ErrInvalidOriginConfig wraps every DefineOrigin validation failure.
	ErrInvalidOriginConfig = errors.New("invalid origin configuration")
	// ErrUserIDRequired is returned by operations that act on a user's sessions without a user id.
	ErrUserIDRequired = errors.New("user id is required")
	// ErrInvalidSessionType is returned by GenerateRefreshToken when WithSessionType
	// names a type other than session.TypeRefresh or session.TypeSession.
	ErrInvalidSessionType = errors.New("invalid session type")
	// ErrStoreRequired is returned when a Manager is built without a session store.
	ErrStoreRequired = errors.New("session store is required")
	// ErrBuilderUsed is returned by a second Build call on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
)
