package attendance

import "errors"

var (
	// ErrUnknownUser is returned when no user has the given id.
	ErrUnknownUser = errors.New("unknown user")
	// ErrInactiveUser is returned when the user's enrollment window does not cover today.
	ErrInactiveUser = errors.New("user is not currently active")
	// ErrAmbiguousRole is returned when a dual-role user toggles without choosing a role.
	ErrAmbiguousRole = errors.New("user is both student and tutor, role required")
	// ErrInvalidRole is returned when the requested role is not one the user holds.
	ErrInvalidRole = errors.New("role not available for user")
	// ErrDuplicateOpenEntry is returned when the user already has an open entry.
	ErrDuplicateOpenEntry = errors.New("user already has an open entry")
	// ErrNoOpenEntry is returned when a sign-out finds no open entry.
	ErrNoOpenEntry = errors.New("user has no open entry")
	// ErrClockSkew is returned when a sign-out instant precedes the sign-in.
	ErrClockSkew = errors.New("sign-out time precedes sign-in time")
	// ErrStorageUnavailable wraps persistence failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
