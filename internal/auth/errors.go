package auth

import "errors"

var (
	// ErrUnauthorized means the request carried no token at all.
	ErrUnauthorized = errors.New("auth: missing bearer token")
	// ErrInvalidToken covers bad signatures, expiry and claims the vibration
	// API cannot map to a caller.
	ErrInvalidToken = errors.New("auth: token rejected")
	// ErrForbidden means the caller's role is below the route's requirement.
	ErrForbidden = errors.New("auth: role not permitted")
)
